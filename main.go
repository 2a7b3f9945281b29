package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaSeidel/covid-no2-viewer/internal/config"
	"github.com/PaSeidel/covid-no2-viewer/internal/logger"
	"github.com/PaSeidel/covid-no2-viewer/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	log := logger.GetGlobalLogger().WithComponent("main")
	log.Infof("Starting NO2 Map Service %s on port %s", config.GetVersion(), cfg.Port)
	log.Infof("Environment: %s", cfg.Environment)
	log.Infof("Raster base: %s", cfg.GeotiffBaseURL)
	log.Infof("City data base: %s", cfg.CitiesDataURL)
	if cfg.BaselineGeotiffURL != "" {
		log.Infof("Baseline raster base: %s", cfg.BaselineGeotiffURL)
	}

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create server", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // overlays for large rasters take a while
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	log.Info("Server stopped")
}
