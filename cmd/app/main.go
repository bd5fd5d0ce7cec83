package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/deskkeys/internal/app"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

func main() {
	cmd := &cli.Command{
		Name:  "deskkeys",
		Usage: "Access-key and short-link engine for a customer-support desk",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("DESKKEYS_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./deskkeys.sqlite",
				Sources: cli.EnvVars("DESKKEYS_DB_PATH"),
				Usage:   "SQLite file path for agents, events and the sqlite key store",
			},
			&cli.StringFlag{
				Name:    "key-store",
				Value:   app.KeyStoreMemory,
				Sources: cli.EnvVars("DESKKEYS_KEY_STORE"),
				Usage:   "Where keys and aliases live: memory or sqlite",
			},
			&cli.IntFlag{
				Name:    "cutoff-hour",
				Value:   domain.DefaultCutoffHour,
				Sources: cli.EnvVars("DESKKEYS_CUTOFF_HOUR"),
				Usage:   "Hour of day (0-23) at which keys expire",
			},
			&cli.StringFlag{
				Name:    "timezone",
				Sources: cli.EnvVars("DESKKEYS_TIMEZONE"),
				Usage:   "IANA zone for the expiry cutoff (defaults to the host zone)",
			},
			&cli.DurationFlag{
				Name:    "cleanup-interval",
				Value:   time.Hour,
				Sources: cli.EnvVars("DESKKEYS_CLEANUP_INTERVAL"),
				Usage:   "How often expired keys and aliases are swept",
			},
			&cli.DurationFlag{
				Name:    "request-timeout",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("DESKKEYS_REQUEST_TIMEOUT"),
				Usage:   "Per-request handler deadline",
			},
			&cli.BoolFlag{
				Name:    "bootstrap-admin",
				Value:   true,
				Sources: cli.EnvVars("DESKKEYS_BOOTSTRAP_ADMIN"),
				Usage:   "Issue an admin key at startup when no live one exists",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("DESKKEYS_WEBHOOK_URL"),
				Usage:   "Key event webhook target URL",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("DESKKEYS_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := app.Config{
				Addr:            c.String("addr"),
				DBPath:          c.String("db-path"),
				KeyStore:        c.String("key-store"),
				CutoffHour:      int(c.Int("cutoff-hour")),
				Timezone:        c.String("timezone"),
				CleanupInterval: c.Duration("cleanup-interval"),
				RequestTimeout:  c.Duration("request-timeout"),
				BootstrapAdmin:  c.Bool("bootstrap-admin"),
				WebhookURL:      c.String("webhook-url"),
				WebhookSecret:   c.String("webhook-secret"),
			}

			server, closer, err := app.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.Printf("close resources: %v", closeErr)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on %s", cfg.Addr)
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				return shutdown(server)
			case sig := <-sigCh:
				log.Printf("received signal %s", sig)
				return shutdown(server)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
