package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/api"
	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/resilience"
	"github.com/sells-group/truecost/internal/savings"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the savings data service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		validator, err := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return eris.Wrap(err, "jwt secret is required (TRUECOST_AUTH_JWT_SECRET)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if serveMigrate {
			if err := st.Migrate(ctx); err != nil {
				return err
			}
		}

		svc := savings.NewService(st, savings.WithRetry(resilience.RetryConfig{
			MaxAttempts:    cfg.Store.RetryAttempts,
			InitialBackoff: 20 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
		}))

		serverCfg := cfg.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}
		srv := api.New(svc, validator, serverCfg)

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("shutdown incomplete", zap.Error(err))
			}
		}()

		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
	rootCmd.AddCommand(serveCmd)
}
