// Package bridge keeps the per-view bindings that make a runtime session
// reachable under the well-known API names.
package bridge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/launch"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/runtime"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
)

// Binding names under which a session is reachable from content
const (
	APIName12   = "API"
	APIName2004 = "API_1484_11"
)

// maxNotices bounds the warnings kept per view
const maxNotices = 20

// NoticeLevel classifies a view notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is a soft message attached to a view, such as a failed completion write
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Binding is the session and launch handle installed for a view
type Binding struct {
	ViewID      string
	Session     *runtime.Session
	Handle      *launch.Handle
	InstalledAt time.Time
}

// Ticket identifies one load attempt for a view
type Ticket struct {
	ViewID string
	seq    uint64
	cancel context.CancelFunc
}

type view struct {
	loadSeq uint64
	cancel  context.CancelFunc
	binding *Binding
	notices []Notice
}

// Registry maps view ids to their bindings
type Registry struct {
	logger hclog.Logger

	mu    sync.Mutex
	seq   uint64
	views map[string]*view
}

// NewRegistry creates an empty registry
func NewRegistry(logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		logger: logger.Named("bridge"),
		views:  make(map[string]*view),
	}
}

// BeginLoad starts a load for viewID. Any earlier load still running for the
// same view is cancelled, and the session installed for the view is unbound
// and its handle revoked, so a view never holds two live handles. The
// returned context is cancelled when the load is superseded or the view is
// torn down.
func (r *Registry) BeginLoad(ctx context.Context, viewID string) (context.Context, *Ticket) {
	loadCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	v, ok := r.views[viewID]
	if !ok {
		v = &view{}
		r.views[viewID] = v
	}
	if v.cancel != nil {
		v.cancel()
		r.logger.Debug("superseded pending load", "view_id", viewID, "load", v.loadSeq)
	}
	prev := v.binding
	v.binding = nil
	r.seq++
	v.loadSeq = r.seq
	v.cancel = cancel
	t := &Ticket{ViewID: viewID, seq: r.seq, cancel: cancel}
	r.mu.Unlock()

	if prev != nil {
		prev.Handle.Revoke()
		r.logger.Debug("unbound session for reload", "view_id", viewID, "previous", prev.Session.ID())
	}
	return loadCtx, t
}

// Abandon ends a load that will not install anything
func (r *Registry) Abandon(t *Ticket) {
	r.mu.Lock()
	if v, ok := r.views[t.ViewID]; ok && v.loadSeq == t.seq {
		v.cancel = nil
		if v.binding == nil && len(v.notices) == 0 {
			delete(r.views, t.ViewID)
		}
	}
	r.mu.Unlock()
	t.cancel()
}

// Install binds session and handle to the ticket's view. A superseded or torn
// down ticket installs nothing: its handle is revoked and LoadCancelled is
// returned.
func (r *Registry) Install(t *Ticket, session *runtime.Session, handle *launch.Handle) error {
	r.mu.Lock()
	v, ok := r.views[t.ViewID]
	if !ok || v.loadSeq != t.seq {
		r.mu.Unlock()
		t.cancel()
		handle.Revoke()
		return scormerrors.New(scormerrors.KindLoadCancelled, "install_session", context.Canceled)
	}

	v.binding = &Binding{
		ViewID:      t.ViewID,
		Session:     session,
		Handle:      handle,
		InstalledAt: time.Now(),
	}
	v.cancel = nil
	r.mu.Unlock()

	t.cancel()
	r.logger.Debug("installed session", "view_id", t.ViewID, "session_id", session.ID(), "handle_id", handle.ID)
	return nil
}

// Lookup resolves a binding name on a view to its session
func (r *Registry) Lookup(viewID, apiName string) (*runtime.Session, bool) {
	if apiName != APIName12 && apiName != APIName2004 {
		return nil, false
	}
	b, ok := r.Binding(viewID)
	if !ok {
		return nil, false
	}
	return b.Session, true
}

// Binding returns a copy of the binding installed for viewID
func (r *Registry) Binding(viewID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.views[viewID]
	if !ok || v.binding == nil {
		return Binding{}, false
	}
	return *v.binding, true
}

// Loading reports whether a load is in flight for viewID
func (r *Registry) Loading(viewID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.views[viewID]
	return ok && v.cancel != nil
}

// Teardown cancels any pending load, revokes the handle and removes the
// bindings of viewID. It reports whether the view was known.
func (r *Registry) Teardown(viewID string) bool {
	r.mu.Lock()
	v, ok := r.views[viewID]
	delete(r.views, viewID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if v.cancel != nil {
		v.cancel()
	}
	if v.binding != nil {
		v.binding.Handle.Revoke()
	}
	r.logger.Debug("view torn down", "view_id", viewID)
	return true
}

// TeardownAll tears down every view
func (r *Registry) TeardownAll() {
	for _, id := range r.Views() {
		r.Teardown(id)
	}
}

// Views lists known view ids, sorted
func (r *Registry) Views() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddNotice attaches a notice to a view with an installed session. Notices
// for unknown views are dropped.
func (r *Registry) AddNotice(viewID string, level NoticeLevel, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.views[viewID]
	if !ok {
		return false
	}
	v.notices = append(v.notices, Notice{Level: level, Message: message, At: time.Now()})
	if len(v.notices) > maxNotices {
		v.notices = v.notices[len(v.notices)-maxNotices:]
	}
	return true
}

// Notices returns the notices attached to viewID, oldest first
func (r *Registry) Notices(viewID string) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.views[viewID]
	if !ok {
		return nil
	}
	return append([]Notice(nil), v.notices...)
}
