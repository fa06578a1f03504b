package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"bookshare/api"
	"bookshare/market"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		addr          string
		overdueEvery  time.Duration
		authRateLimit float64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			if a.cfg.UsesDevSecret() {
				a.log.Warn("BOOKSHARE_JWT_SECRET is not set; signing tokens with the development key")
			}
			if a.cfg.AdminEmail != "" {
				created, err := a.mgr.Users.EnsureAdmin(ctx, a.cfg.AdminEmail, a.cfg.AdminPassword)
				if err != nil {
					return err
				}
				if created {
					a.log.Info("administrator created", "email", a.cfg.AdminEmail)
				}
			}

			e := api.New(a.mgr, api.Config{
				JWTSecret:     a.cfg.JWTSecret,
				TokenTTL:      time.Duration(a.cfg.TokenTTLHours) * time.Hour,
				Logger:        a.log,
				AuthRateLimit: rate.Limit(authRateLimit),
			})

			if overdueEvery > 0 {
				go a.sweepOverdue(ctx, overdueEvery)
			}

			errc := make(chan error, 1)
			go func() {
				a.log.Info("listening", "addr", addr)
				errc <- e.Start(addr)
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides BOOKSHARE_HTTP_ADDR)")
	cmd.Flags().DurationVar(&overdueEvery, "overdue-every", time.Hour, "how often to remind overdue borrowers; 0 disables")
	cmd.Flags().Float64Var(&authRateLimit, "auth-rate", 20, "register/login requests per second per client; 0 disables")
	return cmd
}

// sweepOverdue runs the overdue check on a ticker until ctx ends.
func (a *app) sweepOverdue(ctx context.Context, every time.Duration) {
	system := market.Caller{Role: market.RoleAdmin}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			txs, err := a.mgr.Admin.CheckOverdue(ctx, system)
			if err != nil {
				a.log.Error("overdue sweep failed", "error", err)
				continue
			}
			if len(txs) > 0 {
				a.log.Info("overdue sweep", "overdue", len(txs))
			}
		}
	}
}
