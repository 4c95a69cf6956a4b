package chat

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"chatrelay/internal/client"
	"chatrelay/internal/infra/obs"
)

func NewChatCommand() *cobra.Command {
	var (
		server   string
		user     string
		token    string
		peer     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal client",
		Example: `  chatrelay chat --user alice --to bob
  chatrelay chat --server https://chat.example.com --token $TOKEN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds := client.Credentials{Token: strings.TrimSpace(token)}
			self := strings.TrimSpace(user)
			if creds.Token == "" {
				if self == "" {
					return errors.New("either --user or --token is required")
				}
				creds = client.Credentials{Token: self, TrustHeader: true}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := obs.NewLogger("dev", logLevel)

			conn, err := client.Dial(ctx, server, creds)
			if err != nil {
				return err
			}
			defer conn.Close()

			changes := make(chan struct{}, 1)
			session := client.NewSession(self, client.NewAPI(server, creds), conn, logger,
				client.WithOnChange(func() {
					select {
					case changes <- struct{}{}:
					default:
					}
				}))
			if err := session.Sync(ctx); err != nil {
				return err
			}
			return interactive(ctx, session, strings.TrimSpace(peer), changes)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Server base URL")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id (header auth mode)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (static or mongo auth mode)")
	cmd.Flags().StringVar(&peer, "to", "", "Open the conversation with this user on start")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Client log level")
	return cmd
}
