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

	"github.com/avatarctic/offline-cache/internal/application/services"
	"github.com/avatarctic/offline-cache/internal/infrastructure/httpserver"
	"github.com/avatarctic/offline-cache/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP front server (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	cfg := a.cfg

	logger.WithField("version", version.Version).Info("Starting offline cache server...")

	// An install failure is not fatal: the previous version, if any, keeps serving.
	if err := a.host.Register(cmd.Context(), version.Version); err != nil {
		if services.IsInstallFailure(err) {
			logger.WithError(err).Error("Cache controller install failed")
		} else {
			logger.WithError(err).Warn("Cache controller activated with errors")
		}
	}

	serverConfig := &httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		TLSCertFile:  cfg.Server.TLSCertFile,
		TLSKeyFile:   cfg.Server.TLSKeyFile,
		PublicOrigin: cfg.Origin.Public,
		Version:      version.Version,
	}
	if cfg.Control.JWTSecret == "" {
		logger.Warn("CONTROL_JWT_SECRET not set - protected control endpoints are disabled")
	}

	server := httpserver.NewServer(serverConfig, cfg.Control.JWTSecret, logger, httpserver.ServerDeps{
		Host:           a.host,
		HealthCheckers: a.checkers,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("Server exited")
	return nil
}
