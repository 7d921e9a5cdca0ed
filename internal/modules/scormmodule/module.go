// Package scormmodule loads SCORM packages and hosts their Run-Time
// Environment.
//
// A launch request runs the load pipeline:
//
//	PackageStore → archive → manifest → launch handle → runtime session
//
// The session is installed for the requesting view and reached by content
// through the API and API_1484_11 bindings. Completion is written back to the
// package store asynchronously.
package scormmodule

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/config"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/logger"
	"github.com/mantonx/scormbridge/internal/modules/modulemanager"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/api"
	"github.com/mantonx/scormbridge/internal/services"
	"gorm.io/gorm"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	// ModuleID is the unique identifier for the SCORM module
	ModuleID = "system.scorm"

	// ModuleName is the display name for the SCORM module
	ModuleName = "SCORM Runtime"

	// ContentRoutePrefix is where launch handles serve package content
	ContentRoutePrefix = api.ContentPath
)

// Module exposes the SCORM manager to the module system
type Module struct {
	manager  *Manager
	store    services.PackageStore
	eventBus events.EventBus
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return true
}

// Migrate is a no-op: sessions and handles live in memory only
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the manager around the registered package store
func (m *Module) Init() error {
	logger.Info("initializing scorm module")

	if m.store == nil {
		store, err := services.GetService[services.PackageStore](services.PackageStoreService)
		if err != nil {
			return fmt.Errorf("package store not available: %w", err)
		}
		m.store = store
	}
	if m.eventBus == nil {
		m.eventBus = events.GetGlobalEventBus()
	}

	cfg := config.Get()
	m.manager = NewManager(m.store, m.eventBus, ManagerConfig{
		ContentBaseURL: ContentRoutePrefix,
		MaxEntrySize:   cfg.Content.MaxEntrySize,
		LoadTimeout:    cfg.Content.LoadTimeout,
		WriteTimeout:   cfg.Completion.WriteTimeout,
	}, logger.Get())

	logger.Info("scorm module initialized",
		"max_entry_size", cfg.Content.MaxEntrySize,
		"load_timeout", cfg.Content.LoadTimeout)
	return nil
}

// Manager returns the module's manager, nil before Init
func (m *Module) Manager() *Manager {
	return m.manager
}

// RegisterRoutes registers the SCORM HTTP routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if m.manager == nil {
		logger.Error("cannot register scorm routes: module not initialized")
		return
	}
	handler := api.NewHandler(m.manager, m.eventBus, logger.Get())
	api.RegisterRoutes(router, handler)
}

// Shutdown tears down all views and drains completion writes
func (m *Module) Shutdown(ctx context.Context) error {
	if m.manager == nil {
		return nil
	}
	logger.Info("shutting down scorm module")
	return m.manager.Shutdown(ctx)
}

// HealthCheck reports live views and handles
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	status := modulemanager.HealthStatus{
		Status:      modulemanager.HealthStateHealthy,
		LastChecked: time.Now(),
	}
	if m.manager == nil {
		status.Status = modulemanager.HealthStateUnknown
		status.Message = "not initialized"
		return status
	}
	status.Details = map[string]interface{}{
		"views":   len(m.manager.registry.Views()),
		"handles": m.manager.handles.Len(),
	}
	return status
}

// RequiredServices returns the services this module consumes
func (m *Module) RequiredServices() []string {
	return []string{services.PackageStoreService}
}

// Register registers the SCORM module with the module system
func Register() {
	modulemanager.Register(&Module{})
}
