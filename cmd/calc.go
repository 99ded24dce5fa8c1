package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/opcost"
	"github.com/sells-group/truecost/internal/price"
)

var (
	calcRate  float64
	calcYears int
	calcHost  string
)

var calcCmd = &cobra.Command{
	Use:   "calc <price>",
	Short: "Show what a price could grow to if invested",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := cfg.Engine
		if cmd.Flags().Changed("rate") {
			s.ReturnRate = calcRate
		}
		if cmd.Flags().Changed("years") {
			s.Years = calcYears
		}
		return runCalc(cmd.OutOrStdout(), args[0], calcHost, s)
	},
}

func runCalc(out io.Writer, text, host string, s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	amt := price.ParseAmount(text, host)
	if !amt.Actionable() {
		return eris.Wrapf(model.ErrParseFailure, "calc: %q", text)
	}

	f := opcost.NewFormatter(price.DetectCurrency(host).Symbol)
	p := opcost.NewCalculator(s).Project(amt.Value)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Price:\t%s (%s)\n", f.FormatExact(p.Present), amt.Currency)
	_, _ = fmt.Fprintf(w, "Rate:\t%g%%\n", s.ReturnRate)
	_, _ = fmt.Fprintf(w, "Future value:\t%s\n", f.Format(p.Future))
	_, _ = fmt.Fprintf(w, "Badge:\t%s\n", f.BadgeText(p))
	_, _ = fmt.Fprintf(w, "Prompt:\t%s\n", f.ProjectionText(p))
	return w.Flush()
}

func init() {
	calcCmd.Flags().Float64Var(&calcRate, "rate", 0, "annual return in percent (default from config)")
	calcCmd.Flags().IntVar(&calcYears, "years", 0, "investment horizon (default from config)")
	calcCmd.Flags().StringVar(&calcHost, "host", "www.amazon.com", "storefront host, selects the currency")
	rootCmd.AddCommand(calcCmd)
}
