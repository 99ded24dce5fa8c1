package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/decision"
	"github.com/sells-group/truecost/internal/dom"
	"github.com/sells-group/truecost/internal/engine"
	"github.com/sells-group/truecost/internal/intercept"
	"github.com/sells-group/truecost/internal/scanner"
	"github.com/sells-group/truecost/internal/settings"
	"github.com/sells-group/truecost/internal/variant"
)

var (
	scanURL   string
	scanFile  string
	scanOut   string
	scanWatch time.Duration
	scanToken string
	scanUser  string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Badge prices and bind checkout controls on a product page",
	Long:  "Loads a storefront page from --file or by fetching --url, runs the price scanner and the checkout interceptor against it and prints the badges.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if scanURL == "" {
			return eris.New("page url is required (--url)")
		}
		ctx := cmd.Context()

		doc, err := loadPage(ctx, scanURL, scanFile)
		if err != nil {
			return err
		}

		env, err := initClient(ctx, scanToken, scanUser)
		if err != nil {
			return err
		}
		defer env.Close()

		recorder := decision.NewRecorder(env.Client, env.Identity, cfg.Decision.Timeout())
		defer recorder.Wait()

		tab, err := engine.Open(ctx, doc, engine.Config{
			Local:             env.Local,
			Settings:          settings.NewRemote(env.Local, env.Client, env.Identity),
			Variants:          variant.New(env.Client, env.Identity),
			Recorder:          recorder,
			Selectors:         cfg.Scanner,
			CheckoutSelectors: cfg.Intercept.CheckoutSelectors,
			VariantTimeout:    cfg.Intercept.VariantTimeout(),
		})
		if err != nil {
			return err
		}

		if scanWatch > 0 {
			if err := watchTab(ctx, tab, env.Session, scanWatch); err != nil {
				return err
			}
		}

		formatScan(cmd.OutOrStdout(), doc, tab)

		if scanOut != "" {
			rendered, err := doc.Render()
			if err != nil {
				return err
			}
			if err := os.WriteFile(scanOut, []byte(rendered), 0o644); err != nil {
				return eris.Wrap(err, "write rendered page")
			}
		}
		return nil
	},
}

// loadPage parses file when given, otherwise fetches rawURL.
func loadPage(ctx context.Context, rawURL, file string) (*dom.HTMLDocument, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, eris.Wrap(err, "open page file")
		}
		defer f.Close() //nolint:errcheck
		return dom.ParseHTML(rawURL, f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create page request")
	}
	req.Header.Set("Accept", "text/html")
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch page")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("fetch page: status %d", resp.StatusCode)
	}
	return dom.ParseHTML(rawURL, resp.Body)
}

// watchTab keeps the tab live for d, rescanning on page changes and
// refreshing the session on its schedule.
func watchTab(ctx context.Context, tab *engine.Tab, session *auth.Session, d time.Duration) error {
	refresher, err := auth.NewRefresher(session, cfg.Auth.RefreshSchedule)
	if err != nil {
		return err
	}
	refresher.Start()
	defer refresher.Stop()

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	zap.L().Info("watching page", zap.Duration("for", d))
	return tab.Run(ctx)
}

func formatScan(out io.Writer, doc dom.Document, tab *engine.Tab) {
	s := tab.Settings()
	_, _ = fmt.Fprintf(out, "Page:     %s (%s)\n", doc.URL(), scanner.Classify(doc.Path()))
	_, _ = fmt.Fprintf(out, "Settings: enabled=%t confirm=%t rate=%g%% years=%d min=%g\n",
		s.Enabled, s.ConfirmBeforePurchase, s.ReturnRate, s.Years, s.MinPrice)

	badges := doc.QueryAll("." + scanner.BadgeClass)
	_, _ = fmt.Fprintf(out, "Badges:   %d\n", len(badges))
	for _, b := range badges {
		_, _ = fmt.Fprintf(out, "  - %s\n", strings.TrimSpace(b.Text()))
	}
	_, _ = fmt.Fprintf(out, "Bound checkout controls: %d\n", len(doc.QueryAll("["+intercept.BoundAttr+"]")))
}

func init() {
	scanCmd.Flags().StringVar(&scanURL, "url", "", "page url (required; fetched unless --file is set)")
	scanCmd.Flags().StringVar(&scanFile, "file", "", "saved HTML of the page")
	scanCmd.Flags().StringVar(&scanOut, "out", "", "write the annotated page here")
	scanCmd.Flags().DurationVar(&scanWatch, "watch", 0, "keep rescanning on page changes for this long")
	scanCmd.Flags().StringVar(&scanToken, "token", "", "bearer token overriding the stored session")
	scanCmd.Flags().StringVar(&scanUser, "user", "", "user id for --token")
	rootCmd.AddCommand(scanCmd)
}
