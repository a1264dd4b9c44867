package login

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/telecord/cmd/telecord/internal"
	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/qr"
	"github.com/tinyland-inc/telecord/pkg/telegram"
)

func NewLoginCommand() *cobra.Command {
	var (
		configPath string
		password   string
		status     bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log the Telegram account in by scanning a QR code",
		Args:  cobra.NoArgs,
		Example: `  telecord login
  telecord login --password "my 2fa password"
  telecord login --status`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateTelegram(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			client := telegram.New(telegram.Config{
				APIID:       cfg.Telegram.APIID,
				APIHash:     cfg.Telegram.APIHash,
				SessionPath: cfg.SessionPath(),
			})
			defer client.Close(context.Background())

			controller := auth.NewController(client,
				auth.WithScanBuffer(time.Duration(cfg.Auth.ScanBufferSeconds)*time.Second))

			if status {
				if err := client.Connect(ctx); err != nil {
					return err
				}
				return printStatus(ctx, cmd, controller)
			}

			p := &terminalPresenter{
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
				password: password,
				renderer: qr.Renderer{Invert: true},
				account:  client.DescribeAccount,
			}
			_, err = controller.Login(ctx, "cli", p)
			if auth.Surfaced(err) {
				return fmt.Errorf("login not completed")
			}
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "",
		"Config file path (default: ~/.telecord/config.json)")
	cmd.Flags().StringVarP(&password, "password", "p", "",
		"Two-factor password; prompted for when needed and not given")
	cmd.Flags().BoolVar(&status, "status", false,
		"Only show whether the stored session is logged in")

	return cmd
}

func printStatus(ctx context.Context, cmd *cobra.Command, c *auth.Controller) error {
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case st.Authorized && st.Account != "":
		fmt.Fprintf(out, "Logged in as %s\n", st.Account)
	case st.Authorized:
		fmt.Fprintln(out, "Logged in")
	default:
		fmt.Fprintln(out, "Not logged in (run: telecord login)")
	}
	return nil
}
