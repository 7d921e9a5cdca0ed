// Package server assembles the HTTP router, the event bus and the module
// system.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/apiroutes"
	"github.com/mantonx/scormbridge/internal/config"
	"github.com/mantonx/scormbridge/internal/database"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/logger"
	"github.com/mantonx/scormbridge/internal/middleware"
	"github.com/mantonx/scormbridge/internal/modules/modulemanager"

	// Import all modules to trigger their registration
	_ "github.com/mantonx/scormbridge/internal/modules/coursemodule"
	_ "github.com/mantonx/scormbridge/internal/modules/scormmodule"
)

var (
	systemEventBus    events.EventBus
	moduleInitialized bool
	startedAt         = time.Now()
)

// SetupRouter starts the event bus, loads all modules and returns the router
// serving their routes. The database must be initialized first.
func SetupRouter() (*gin.Engine, error) {
	cfg := config.Get()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger.Get()))
	r.Use(middleware.ErrorLogger(logger.Get()))

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("invalid trusted proxies: %w", err)
		}
	}
	if cfg.Server.EnableCORS {
		r.Use(corsMiddleware())
	}

	if err := initializeEventBus(); err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	if err := initializeModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize modules: %w", err)
	}

	setupRoutes(r)
	return r, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// initializeEventBus sets up the system-wide event bus
func initializeEventBus() error {
	if systemEventBus != nil {
		return nil
	}

	bus := events.NewEventBus(events.DefaultEventBusConfig(), logger.Get())
	if err := bus.Start(context.Background()); err != nil {
		return err
	}

	systemEventBus = bus
	events.SetGlobalEventBus(bus)
	logger.Info("system event bus started")
	return nil
}

// initializeModules migrates and initializes every registered module
func initializeModules() error {
	if moduleInitialized {
		return nil
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := modulemanager.LoadAll(db); err != nil {
		return err
	}

	moduleInitialized = true
	logModuleStatus()

	systemEventBus.PublishAsync(events.NewEvent(events.EventSystemStarted, "system", "System started",
		fmt.Sprintf("%d modules loaded", len(modulemanager.ListModules()))))
	return nil
}

func logModuleStatus() {
	modules := modulemanager.ListModules()
	logger.Info("module system initialized", "count", len(modules))
	for _, module := range modules {
		logger.Info("module ready", "id", module.ID(), "name", module.Name(), "core", module.Core())
	}
}

func setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", handleHealthCheck)
		apiroutes.Register(api.BasePath()+"/health", "GET", "System and module health.")
	}

	modulemanager.RegisterRoutes(r)

	r.GET("/api", handleAPIRoot)
	apiroutes.Register("/api", "GET", "Lists all available API endpoints.")
}

// GetEventBus returns the system event bus instance
func GetEventBus() events.EventBus {
	return systemEventBus
}

// Shutdown stops modules in reverse order, then the event bus
func Shutdown(ctx context.Context) error {
	var firstErr error
	if moduleInitialized {
		if err := modulemanager.Shutdown(ctx); err != nil {
			logger.Error("module shutdown failed", "error", err)
			firstErr = err
		}
	}

	if systemEventBus != nil {
		systemEventBus.Publish(ctx, events.NewEvent(events.EventSystemStopped, "system", "System stopped", "shutting down"))
		if err := systemEventBus.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
