/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/opentdf/drmpolicy/api"
	"github.com/opentdf/drmpolicy/api/middleware/auth"
	"github.com/opentdf/drmpolicy/internal/metrics"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured store over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default serve.addr)")
	_ = v.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.Store.Driver == "http" {
		return errors.Join(media.ErrConfiguration, errors.New("serve needs a memory or postgres store"))
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := api.Options{
		Store:          store,
		Logger:         logger.Named("api"),
		Metrics:        metrics.New(nil),
		AllowedOrigins: cfg.Serve.CORS,
	}
	if cfg.Serve.Issuer != "" {
		jwks, err := auth.DiscoverJWKS(ctx, cfg.Serve.Issuer)
		if err != nil {
			return err
		}
		verifier, err := auth.NewVerifier(ctx, jwks, cfg.Serve.Issuer, logger.Named("auth"))
		if err != nil {
			return err
		}
		opts.Auth = verifier.Middleware
	} else {
		logger.Warn("serve.issuer is not set, the store api is unauthenticated")
	}

	r := api.NewRouter(opts)
	if err := api.Walk(r, logger); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	// Start the HTTP server in a goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// If it doesn't complete in 15 seconds, it will be forcefully stopped
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
