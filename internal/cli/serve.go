package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reifenwerk/ledger/internal/httpapi"
)

func newServeCommand(get func() *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			h := httpapi.New(a.svc, a.store, httpapi.Options{
				Currency:    a.cfg.Currency,
				JWTSecret:   a.cfg.HTTP.JWTSecret,
				JWTIssuer:   a.cfg.HTTP.JWTIssuer,
				JWTAudience: a.cfg.HTTP.JWTAudience,
			}, a.log).Handler()

			srv := &http.Server{
				Addr:              addr,
				Handler:           h,
				ReadTimeout:       5 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("ledger service listening", "addr", srv.Addr, "auth", a.cfg.HTTP.JWTSecret != "")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.log.Error("server shutdown error", "err", err)
					return err
				}
				a.log.Info("server stopped")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
