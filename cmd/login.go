package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/settings"
)

var (
	loginAccess  string
	loginRefresh string
	loginUser    string
	loginEmail   string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session issued by the auth service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if loginRefresh == "" || loginUser == "" {
			return eris.New("--refresh-token and --user are required")
		}
		ctx := cmd.Context()

		local, err := settings.Open(ctx, cfg.Local)
		if err != nil {
			return err
		}
		defer local.Close() //nolint:errcheck

		session := auth.NewSession(local, cfg.Auth.BaseURL)
		if err := session.SignIn(ctx, loginAccess, loginRefresh, auth.User{ID: loginUser, Email: loginEmail}); err != nil {
			return err
		}
		if loginAccess == "" {
			if err := session.Refresh(ctx); err != nil {
				return err
			}
		}
		zap.L().Info("signed in", zap.String("user_id", session.UserID()))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		local, err := settings.Open(ctx, cfg.Local)
		if err != nil {
			return err
		}
		defer local.Close() //nolint:errcheck

		return auth.NewSession(local, cfg.Auth.BaseURL).SignOut(ctx)
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginAccess, "access-token", "", "access token (refreshed when empty)")
	loginCmd.Flags().StringVar(&loginRefresh, "refresh-token", "", "refresh token (required)")
	loginCmd.Flags().StringVar(&loginUser, "user", "", "user id (required)")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
