package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization decision API",
	Long: `Starts the HTTP decision API used by the dashboard and the API gateway.

The admin id is taken from QLP_PRINCIPAL_HEADER, which the authenticating gateway
must set; never expose this listener directly. Send SIGHUP to reload policy from
the role table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger()

		bundle, err := cmdutil.NewIAMServiceBundle(cfg)
		if err != nil {
			return err
		}
		defer bundle.Close()

		corsOpts := server.DefaultCORSOptions(cfg.CORSOrigins, cfg.PrincipalHeader)
		r, err := server.NewRouter(server.RouterOptions{
			Service:         bundle.Service,
			Decider:         bundle.Enforcer,
			Gatherer:        bundle.Registry,
			Logger:          bundle.Logger,
			PrincipalHeader: cfg.PrincipalHeader,
			CORSOptions:     &corsOpts,
			RateLimit:       cfg.RateLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to build router: %w", err)
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.WithField("addr", cfg.ServerAddr).Info("starting decision API")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)

		for {
			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server error: %w", err)

			case sig := <-reload:
				if err := bundle.Enforcer.Reload(); err != nil {
					log.WithError(err).Error("policy reload failed")
				} else {
					log.WithField("signal", sig.String()).Info("policy reloaded")
				}

			case sig := <-shutdown:
				log.WithField("signal", sig.String()).Info("shutting down gracefully")

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				log.Info("server stopped")
				return nil
			}
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (env: QLP_SERVER_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
