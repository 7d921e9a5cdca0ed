package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/config"
	"github.com/mantonx/scormbridge/internal/database"
	"github.com/mantonx/scormbridge/internal/logger"
	"github.com/mantonx/scormbridge/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("SCORMBRIDGE_CONFIG_PATH"), "path to a yaml or json config file")
	flag.Parse()

	if *configPath == "" {
		if _, err := os.Stat("./scormbridge.yaml"); err == nil {
			*configPath = "./scormbridge.yaml"
		}
	}

	if err := run(*configPath); err != nil {
		logger.Error("scormbridge exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := config.Get()

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if configPath != "" {
		logger.Info("configuration loaded", "path", configPath)
	} else {
		logger.Info("using default configuration")
	}

	if !logger.Get().IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.Initialize(cfg.Database, logger.Named("database")); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	router, err := server.SetupRouter()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting scormbridge", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("module shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
