package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	_ "fleetops/api/swagger" // swagger docs
	"fleetops/internal/metrics"
	"fleetops/internal/otp"
	"fleetops/internal/pdf"
	"fleetops/internal/routes"
	"fleetops/internal/storage"
	"fleetops/internal/websocket"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

// buildInfra opens every outbound dependency the services need.
func buildInfra(ctx context.Context, db *gorm.DB, hub *websocket.Hub, reg prometheus.Registerer, gatherer prometheus.Gatherer) (routes.Infra, error) {
	files, err := storage.New(ctx, cfg.Storage, cfg.Server.PublicURL, cfg.JWT.Secret, routes.Policy(cfg.Outbound))
	if err != nil {
		return routes.Infra{}, pkgerrors.Wrap(err, "storage setup failed")
	}

	codes, err := otp.New(cfg.OTP)
	if err != nil {
		return routes.Infra{}, pkgerrors.Wrap(err, "otp store setup failed")
	}

	m := metrics.NewNop()
	if reg != nil {
		m = metrics.New(reg)
	}

	return routes.Infra{
		Config:   cfg,
		DB:       db,
		Files:    files,
		OTP:      codes,
		Renderer: pdf.NewRenderer(cfg.Mail.FromName),
		Metrics:  m,
		Gatherer: gatherer,
		Hub:      hub,
	}, nil
}

func serve(ctx context.Context) error {
	gin.SetMode(cfg.Server.Mode)

	db, err := openDatabase()
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	infra, err := buildInfra(ctx, db, hub, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return err
	}
	if closer, ok := infra.OTP.(io.Closer); ok {
		defer closer.Close()
	}

	services := routes.NewServices(infra)
	router := routes.NewRouter(infra, services)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("mode", cfg.Server.Mode).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return pkgerrors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return pkgerrors.Wrap(err, "graceful shutdown failed")
	}
	return nil
}
