package modulemanager

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mantonx/scormbridge/internal/logger"
)

// DependencyProvider is an optional interface for modules that declare dependencies
type DependencyProvider interface {
	// Dependencies returns the list of module IDs this module depends on
	Dependencies() []string
}

// ServiceProvider is an optional interface for modules that provide services
type ServiceProvider interface {
	// ProvidedServices returns the list of service names this module provides
	ProvidedServices() []string
}

// ServiceConsumer is an optional interface for modules that consume services
type ServiceConsumer interface {
	// RequiredServices returns the list of service names this module requires
	RequiredServices() []string
}

// ModuleDependencyGraph represents the dependency relationships between modules
type ModuleDependencyGraph struct {
	nodes        map[string]*DependencyNode
	serviceGraph map[string]string // service name -> module ID that provides it
}

// DependencyNode represents a module in the dependency graph
type DependencyNode struct {
	ModuleID         string
	Module           Module
	Dependencies     []string
	ProvidedServices []string
	RequiredServices []string
}

// BuildDependencyGraph creates a dependency graph from registered modules.
// Required services are resolved to a dependency on the providing module.
func BuildDependencyGraph(modules map[string]Module) (*ModuleDependencyGraph, error) {
	graph := &ModuleDependencyGraph{
		nodes:        make(map[string]*DependencyNode),
		serviceGraph: make(map[string]string),
	}

	for _, id := range sortedKeys(modules) {
		module := modules[id]
		node := &DependencyNode{ModuleID: id, Module: module}

		if p, ok := module.(DependencyProvider); ok {
			node.Dependencies = append(node.Dependencies, p.Dependencies()...)
		}
		if p, ok := module.(ServiceProvider); ok {
			node.ProvidedServices = p.ProvidedServices()
			for _, service := range node.ProvidedServices {
				if existing, exists := graph.serviceGraph[service]; exists {
					return nil, fmt.Errorf("service '%s' is provided by multiple modules: %s and %s",
						service, existing, id)
				}
				graph.serviceGraph[service] = id
			}
		}
		if c, ok := module.(ServiceConsumer); ok {
			node.RequiredServices = c.RequiredServices()
		}

		graph.nodes[id] = node
	}

	for _, id := range sortedKeys(graph.nodes) {
		node := graph.nodes[id]
		for _, service := range node.RequiredServices {
			providerID, exists := graph.serviceGraph[service]
			if !exists {
				logger.Warn("required service has no provider", "module", id, "service", service)
				continue
			}
			if providerID != id {
				node.Dependencies = append(node.Dependencies, providerID)
			}
		}
		for _, depID := range node.Dependencies {
			if _, exists := graph.nodes[depID]; !exists {
				return nil, fmt.Errorf("module %s depends on non-existent module %s", id, depID)
			}
		}
	}

	return graph, nil
}

// GetInitializationOrder returns modules with every dependency ahead of its
// dependents. Ties are broken by module ID so the order is stable.
func (g *ModuleDependencyGraph) GetInitializationOrder() ([]Module, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.nodes))
	order := make([]Module, 0, len(g.nodes))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular dependency detected: %s", strings.Join(append(path, id), " -> "))
		}

		state[id] = visiting
		deps := append([]string(nil), g.nodes[id].Dependencies...)
		sort.Strings(deps)
		for _, depID := range deps {
			if err := visit(depID, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, g.nodes[id].Module)
		return nil
	}

	for _, id := range sortedKeys(g.nodes) {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ValidateServiceRequirements checks if all required services are available
func (g *ModuleDependencyGraph) ValidateServiceRequirements() []error {
	var errs []error
	for _, id := range sortedKeys(g.nodes) {
		for _, service := range g.nodes[id].RequiredServices {
			if _, exists := g.serviceGraph[service]; !exists {
				errs = append(errs, fmt.Errorf("module %s requires service '%s' but no provider found", id, service))
			}
		}
	}
	return errs
}

// GetModuleDependencies returns the dependencies for a specific module
func (g *ModuleDependencyGraph) GetModuleDependencies(moduleID string) ([]string, error) {
	node, exists := g.nodes[moduleID]
	if !exists {
		return nil, fmt.Errorf("module %s not found", moduleID)
	}
	return node.Dependencies, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
