// Package modulemanager registers the application modules and brings them up
// in dependency order.
package modulemanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/logger"
	"gorm.io/gorm"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string                // Unique identifier for the module
	Name() string              // Display name for the module
	Core() bool                // Whether this is a core module (cannot be disabled)
	Migrate(db *gorm.DB) error // Run database migrations
	Init() error               // Initialize the module
}

// RouteRegistrar is an optional interface for modules that need to register routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// ModuleRegistry manages module registration and initialization
type ModuleRegistry struct {
	modules         map[string]Module
	disabledModules map[string]bool
	order           []Module
	mu              sync.RWMutex
	initialized     bool
}

// Registry is the global module registry
var Registry = NewRegistry()

// NewRegistry creates an empty module registry
func NewRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules:         make(map[string]Module),
		disabledModules: make(map[string]bool),
	}
}

// Register adds a module to the global registry
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("module registered after initialization", "module", m.ID())
	}

	r.modules[m.ID()] = m
	logger.Debug("module registered", "module", m.ID(), "name", m.Name())
}

// LoadAll initializes all modules of the global registry
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

// LoadAll migrates and initializes all enabled modules in dependency order
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("module system already initialized")
		return nil
	}

	enabledModules := make(map[string]Module)
	for id, module := range r.modules {
		if r.disabledModules[id] {
			if module.Core() {
				return fmt.Errorf("attempted to disable core module: %s", id)
			}
			logger.Warn("skipping disabled module", "module", id)
			continue
		}
		enabledModules[id] = module
	}

	depGraph, err := BuildDependencyGraph(enabledModules)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	for _, err := range depGraph.ValidateServiceRequirements() {
		logger.Warn("service requirement warning", "error", err)
	}

	initOrder, err := depGraph.GetInitializationOrder()
	if err != nil {
		return fmt.Errorf("failed to determine initialization order: %w", err)
	}

	logger.Info("loading modules", "count", len(initOrder))

	// Providers register first so consumers can resolve them in Init
	for _, module := range initOrder {
		if registrar, ok := module.(ServiceRegistrar); ok {
			if err := registrar.RegisterServices(); err != nil {
				return fmt.Errorf("failed to register services for %s: %w", module.Name(), err)
			}
		}
	}

	for i, module := range initOrder {
		if err := module.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
		}
		if err := module.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}
		logger.Info("module loaded", "module", module.ID(), "position", i+1, "total", len(initOrder))
	}

	r.order = initOrder
	r.initialized = true
	return nil
}

// Shutdown stops modules in reverse initialization order
func Shutdown(ctx context.Context) error {
	return Registry.Shutdown(ctx)
}

// Shutdown stops modules in reverse initialization order
func (r *ModuleRegistry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	order := r.order
	r.mu.RUnlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		s, ok := order[i].(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			logger.Error("module shutdown failed", "module", order[i].ID(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DisableModule marks a module as disabled
func (r *ModuleRegistry) DisableModule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	module, exists := r.modules[id]
	if !exists {
		logger.Warn("attempted to disable non-existent module", "module", id)
		return
	}
	if module.Core() {
		logger.Error("cannot disable core module", "module", id)
		return
	}
	r.disabledModules[id] = true
}

// GetModule returns a module by ID
func GetModule(id string) (Module, bool) {
	return Registry.GetModule(id)
}

// GetModule returns a module by ID
func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, exists := r.modules[id]
	return module, exists
}

// ListModules returns all registered modules
func ListModules() []Module {
	return Registry.ListModules()
}

// ListModules returns all registered modules
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]Module, 0, len(r.modules))
	for _, id := range sortedKeys(r.modules) {
		modules = append(modules, r.modules[id])
	}
	return modules
}

// HealthCheck collects module health from the global registry
func HealthCheck(ctx context.Context) map[string]HealthStatus {
	return Registry.HealthCheck(ctx)
}

// HealthCheck collects the health of every module that reports one
func (r *ModuleRegistry) HealthCheck(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[string]HealthStatus)
	for id, module := range r.modules {
		if hc, ok := module.(HealthChecker); ok {
			statuses[id] = hc.HealthCheck(ctx)
		}
	}
	return statuses
}

// RegisterRoutes registers routes for all modules of the global registry
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes registers routes for all enabled modules that implement RouteRegistrar
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range sortedKeys(r.modules) {
		if r.disabledModules[id] {
			continue
		}
		if routeRegistrar, ok := r.modules[id].(RouteRegistrar); ok {
			logger.Debug("registering routes", "module", id)
			routeRegistrar.RegisterRoutes(router)
		}
	}
}
