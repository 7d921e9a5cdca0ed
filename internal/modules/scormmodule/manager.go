package scormmodule

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/archive"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/bridge"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/launch"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/notifier"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/types"
	"github.com/mantonx/scormbridge/internal/services"
)

// ManagerConfig tunes the load pipeline and completion writes
type ManagerConfig struct {
	ContentBaseURL string        // prefix of launch handle URLs
	MaxEntrySize   int64         // per-entry uncompressed cap
	LoadTimeout    time.Duration // zero means no timeout
	WriteTimeout   time.Duration // per completion write
}

// DefaultManagerConfig returns the settings used when none are configured
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ContentBaseURL: ContentRoutePrefix,
		MaxEntrySize:   archive.DefaultMaxEntrySize,
		LoadTimeout:    60 * time.Second,
		WriteTimeout:   notifier.DefaultWriteTimeout,
	}
}

// Manager owns the live SCORM state: launch handles, per-view bindings and
// the completion notifier.
type Manager struct {
	store    services.PackageStore
	bus      events.EventBus
	config   ManagerConfig
	logger   hclog.Logger
	handles  *launch.Store
	resolver *launch.Resolver
	registry *bridge.Registry
	notifier *notifier.Notifier
}

var _ types.RuntimeService = (*Manager)(nil)

// NewManager wires the SCORM components around a package store. bus may be nil.
func NewManager(store services.PackageStore, bus events.EventBus, cfg ManagerConfig, logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.ContentBaseURL == "" {
		cfg.ContentBaseURL = ContentRoutePrefix
	}
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = archive.DefaultMaxEntrySize
	}
	logger = logger.Named("scorm")

	handles := launch.NewStore(cfg.ContentBaseURL, logger)
	m := &Manager{
		store:    store,
		bus:      bus,
		config:   cfg,
		logger:   logger,
		handles:  handles,
		resolver: launch.NewResolver(handles),
		registry: bridge.NewRegistry(logger),
	}
	m.notifier = notifier.New(store, notifier.Options{
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger,
		Events:       bus,
		ModuleID:     ModuleID,
		OnResult:     m.onCompletionResult,
	})
	return m
}

// Handle resolves a live launch handle for content serving
func (m *Manager) Handle(id string) (*launch.Handle, bool) {
	return m.handles.Get(id)
}

// Notices returns the soft warnings attached to viewID
func (m *Manager) Notices(viewID string) []bridge.Notice {
	return m.registry.Notices(viewID)
}

// Registry exposes the per-view bindings
func (m *Manager) Registry() *bridge.Registry {
	return m.registry
}

// Invoke runs one RTE call against the session bound to viewID
func (m *Manager) Invoke(viewID, apiName, method string, args []string) (string, error) {
	session, ok := m.registry.Lookup(viewID, apiName)
	if !ok {
		if apiName != bridge.APIName12 && apiName != bridge.APIName2004 {
			return "", fmt.Errorf("%w: %s", bridge.ErrUnknownAPI, apiName)
		}
		return "", types.ErrNoSession
	}
	return bridge.Invoke(session, apiName, method, args)
}

// Inspect reports the state of viewID. ok is false for an unknown view.
func (m *Manager) Inspect(viewID string) (*types.ViewInfo, bool) {
	info := &types.ViewInfo{
		ViewID:  viewID,
		Loading: m.registry.Loading(viewID),
		Notices: m.registry.Notices(viewID),
	}
	if info.Notices == nil {
		info.Notices = []bridge.Notice{}
	}

	b, ok := m.registry.Binding(viewID)
	if !ok {
		return info, info.Loading
	}

	snap := b.Session.Snapshot()
	info.Session = &snap
	info.InstalledAt = &b.InstalledAt
	info.Handle = &types.HandleInfo{
		ID:          b.Handle.ID,
		URL:         b.Handle.URL(),
		EntryPath:   b.Handle.EntryPath,
		ContentType: b.Handle.ContentType,
		Digest:      b.Handle.Digest,
		Revoked:     b.Handle.Revoked(),
		CreatedAt:   b.Handle.CreatedAt,
	}
	return info, true
}

// Teardown removes a view: its pending load is cancelled, its handle revoked
// and its bindings dropped.
func (m *Manager) Teardown(viewID string) bool {
	if !m.registry.Teardown(viewID) {
		return false
	}
	m.publish(events.EventSessionTornDown, viewID, "Content closed", "", map[string]interface{}{"view_id": viewID})
	m.logger.Info("view torn down", "view_id", viewID)
	return true
}

// Wait blocks until pending completion writes finish
func (m *Manager) Wait() {
	m.notifier.Wait()
}

// Shutdown tears down every view, lets in-flight completion writes finish
// until ctx expires and then cancels the rest.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.registry.TeardownAll()
	m.handles.RevokeAll()

	done := make(chan struct{})
	go func() {
		m.notifier.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.notifier.Close()
		return nil
	case <-ctx.Done():
		m.logger.Warn("cancelling pending completion writes")
		m.notifier.Close()
		return ctx.Err()
	}
}

func (m *Manager) onCompletionResult(o notifier.Outcome) {
	if o.Err == nil {
		return
	}
	m.registry.AddNotice(o.Event.ViewID, bridge.NoticeWarning,
		"Your progress could not be saved. Re-open the content to try again.")
}

func (m *Manager) publish(eventType events.EventType, viewID, title, message string, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	event := events.NewModuleEvent(eventType, ModuleID, title, message, data)
	event.Target = viewID
	if err := m.bus.PublishAsync(event); err != nil {
		m.logger.Debug("event not published", "type", eventType, "error", err)
	}
}
