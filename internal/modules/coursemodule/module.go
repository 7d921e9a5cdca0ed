// Package coursemodule stores courses, their uploaded packages and learner
// completions. It provides the package store used by the SCORM module.
package coursemodule

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/config"
	"github.com/mantonx/scormbridge/internal/database"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/logger"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/api"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/core/importer"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/core/repository"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/models"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/service"
	"github.com/mantonx/scormbridge/internal/modules/modulemanager"
	"github.com/mantonx/scormbridge/internal/services"
	"gorm.io/gorm"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	// ModuleID is the unique identifier for the course module
	ModuleID = "system.courses"

	// ModuleName is the display name for the course module
	ModuleName = "Courses"
)

// Module owns the course service and the package directory importer
type Module struct {
	db       *gorm.DB
	service  *service.CourseService
	importer *importer.Importer
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

// Migrate creates the course tables
func (m *Module) Migrate(db *gorm.DB) error {
	logger.Info("migrating course schema")
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate course schema: %w", err)
	}
	return nil
}

// RegisterServices builds the course service and publishes it as the
// package store before consumers initialize
func (m *Module) RegisterServices() error {
	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.db == nil {
		return fmt.Errorf("database not initialized")
	}

	cfg := config.Get()
	m.service = service.NewCourseService(
		repository.NewRepository(m.db),
		events.GetGlobalEventBus(),
		cfg.Content.MaxPackageSize,
		logger.Get(),
	)
	services.RegisterService[services.PackageStore](services.PackageStoreService, m.service)
	return nil
}

// Init starts the package directory importer when one is configured
func (m *Module) Init() error {
	logger.Info("initializing course module")
	if m.service == nil {
		if err := m.RegisterServices(); err != nil {
			return err
		}
	}

	cfg := config.Get()
	if cfg.Content.PackageDir == "" {
		return nil
	}

	m.importer = importer.New(m.service, importer.Options{
		Dir:     cfg.Content.PackageDir,
		Watch:   cfg.Content.WatchPackages,
		MaxSize: cfg.Content.MaxPackageSize,
		Logger:  logger.Get(),
	})
	if err := m.importer.Start(); err != nil {
		// Packages can still be uploaded over HTTP
		logger.Error("package importer failed to start", "dir", cfg.Content.PackageDir, "error", err)
		m.importer = nil
	}
	return nil
}

// Service returns the course service, nil before RegisterServices
func (m *Module) Service() *service.CourseService {
	return m.service
}

// RegisterRoutes registers the course HTTP routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if m.service == nil {
		logger.Error("cannot register course routes: module not initialized")
		return
	}
	api.RegisterRoutes(router, api.NewHandler(m.service, logger.Get()))
}

// Shutdown stops the importer
func (m *Module) Shutdown(ctx context.Context) error {
	if m.importer == nil {
		return nil
	}
	logger.Info("stopping package importer")
	return m.importer.Stop()
}

// HealthCheck verifies the database is reachable
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	status := modulemanager.HealthStatus{
		Status:      modulemanager.HealthStateHealthy,
		LastChecked: time.Now(),
		Details: map[string]interface{}{
			"watching_packages": m.importer != nil,
		},
	}
	if m.db == nil {
		status.Status = modulemanager.HealthStateUnknown
		status.Message = "not initialized"
		return status
	}
	sqlDB, err := m.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status.Status = modulemanager.HealthStateUnhealthy
		status.Message = err.Error()
	}
	return status
}

// ProvidedServices returns the services this module provides
func (m *Module) ProvidedServices() []string {
	return []string{services.PackageStoreService}
}

// Register registers the course module with the module system
func Register() {
	modulemanager.Register(&Module{})
}
