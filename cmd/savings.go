package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/settings"
	"github.com/sells-group/truecost/pkg/truecost"
)

var (
	savingsPeriod string
	savingsStart  string
	savingsEnd    string
	savingsBest   bool
	savingsToken  string
	savingsUser   string
)

var savingsCmd = &cobra.Command{
	Use:   "savings",
	Short: "Show skipped-purchase totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, savingsToken, savingsUser)
		if err != nil {
			return err
		}
		defer env.Close()

		local, err := settings.TotalSaved(ctx, env.Local)
		if err != nil {
			return err
		}
		if !env.Identity.IsAuthenticated() {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Local total: %.2f (signed out)\n", local)
			return nil
		}

		totals, err := fetchTotals(ctx, env.Client, savingsPeriod, savingsStart, savingsEnd)
		if err != nil {
			return err
		}
		var best *model.BestVariant
		if savingsBest {
			if best, err = env.Client.BestVariant(ctx); err != nil {
				return err
			}
		}
		formatTotals(cmd.OutOrStdout(), totals, local, best)
		return nil
	},
}

func fetchTotals(ctx context.Context, c *truecost.Client, period, start, end string) (*model.Totals, error) {
	if start == "" && end == "" {
		return c.Savings(ctx, period)
	}
	if start == "" || end == "" {
		return nil, eris.New("--start and --end must be given together")
	}
	s, err := time.ParseInLocation(time.DateOnly, start, time.Local)
	if err != nil {
		return nil, eris.Wrap(err, "parse --start")
	}
	e, err := time.ParseInLocation(time.DateOnly, end, time.Local)
	if err != nil {
		return nil, eris.Wrap(err, "parse --end")
	}
	return c.SavingsBetween(ctx, s, e)
}

func formatTotals(out io.Writer, t *model.Totals, local float64, best *model.BestVariant) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Skipped purchases:\t%d\n", t.Count)
	_, _ = fmt.Fprintf(w, "Total saved:\t%.2f\n", t.Total)
	_, _ = fmt.Fprintf(w, "Local total:\t%.2f\n", local)
	if best != nil {
		text := best.VariantID
		if best.Variant != nil {
			text = best.Variant.QuestionText
		}
		_, _ = fmt.Fprintf(w, "Best question:\t%s (%.0f%% skipped of %d)\n", text, best.SkipRate*100, best.TimesShown)
	}
	_ = w.Flush()
}

func init() {
	savingsCmd.Flags().StringVar(&savingsPeriod, "period", "all", "today, week, month, ytd or all")
	savingsCmd.Flags().StringVar(&savingsStart, "start", "", "range start date (YYYY-MM-DD)")
	savingsCmd.Flags().StringVar(&savingsEnd, "end", "", "range end date, exclusive (YYYY-MM-DD)")
	savingsCmd.Flags().BoolVar(&savingsBest, "best", false, "also show the most effective question")
	savingsCmd.Flags().StringVar(&savingsToken, "token", "", "bearer token overriding the stored session")
	savingsCmd.Flags().StringVar(&savingsUser, "user", "", "user id for --token")
	rootCmd.AddCommand(savingsCmd)
}
