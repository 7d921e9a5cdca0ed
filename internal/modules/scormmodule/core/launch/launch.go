// Package launch turns the launchable resource into a revocable content handle
// served under a per-handle URL prefix.
package launch

import (
	"errors"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/archive"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/manifest"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
	"github.com/mantonx/scormbridge/internal/utils"
)

// ErrHandleRevoked is returned when content is requested through a dead handle
var ErrHandleRevoked = errors.New("launch handle revoked")

// Handle is a revocable reference to the launch entry of one loaded package.
// The launch entry is read eagerly; sibling assets are read on demand.
type Handle struct {
	ID          string
	Digest      string // blake3 of the launch entry
	ContentType string
	EntryPath   string
	Suffix      string // query and fragment carried over from href
	CreatedAt   time.Time

	store *Store

	mu      sync.RWMutex
	revoked bool
	archive *archive.Archive
	content []byte
}

// URL is where the host frames the content
func (h *Handle) URL() string {
	return h.store.baseURL + "/" + h.ID + "/" + escapePath(h.EntryPath) + h.Suffix
}

// Revoke releases the handle. It is idempotent and never touches other handles.
func (h *Handle) Revoke() {
	h.mu.Lock()
	if h.revoked {
		h.mu.Unlock()
		return
	}
	h.revoked = true
	h.archive = nil
	h.content = nil
	h.mu.Unlock()

	h.store.remove(h.ID)
}

// Revoked reports whether Revoke has been called
func (h *Handle) Revoked() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.revoked
}

// Open returns the bytes and content type of an entry under the handle.
// An empty path or the entry path returns the launch entry itself.
func (h *Handle) Open(p string) ([]byte, string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.revoked {
		return nil, "", ErrHandleRevoked
	}

	name := archive.CleanPath(p)
	if name == "" || name == h.EntryPath {
		return h.content, h.ContentType, nil
	}

	data, err := h.archive.ReadBinary(name)
	if err != nil {
		return nil, "", err
	}
	return data, DetectContentType(name, data), nil
}

// Store owns the live handles
type Store struct {
	baseURL string
	logger  hclog.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewStore creates a handle store whose URLs start with baseURL
func NewStore(baseURL string, logger hclog.Logger) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("launch"),
		handles: make(map[string]*Handle),
	}
}

// Get returns a live handle
func (s *Store) Get(id string) (*Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

// Len returns the number of live handles
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// RevokeAll revokes every live handle
func (s *Store) RevokeAll() {
	s.mu.RLock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	for _, h := range handles {
		h.Revoke()
	}
}

func (s *Store) add(h *Handle) {
	s.mu.Lock()
	s.handles[h.ID] = h
	s.mu.Unlock()
	s.logger.Debug("handle created", "handle_id", h.ID, "entry", h.EntryPath, "content_type", h.ContentType)
}

func (s *Store) remove(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
	s.logger.Debug("handle revoked", "handle_id", id)
}

// Resolver produces handles for launchable resources
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver registering handles in store
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve reads the resource's entry from the archive and creates a live
// handle for it. A missing entry fails with LaunchFileMissing.
func (r *Resolver) Resolve(a *archive.Archive, res *manifest.Resource) (*Handle, error) {
	entry := res.LaunchPath()
	data, err := a.ReadBinary(entry)
	if err != nil {
		if scormerrors.KindOf(err) == scormerrors.KindEntryNotFound {
			return nil, scormerrors.New(scormerrors.KindLaunchFileMissing, "resolve_launch", err).WithPath(entry)
		}
		return nil, err
	}

	h := &Handle{
		ID:          uuid.New().String(),
		Digest:      utils.ContentDigest(data),
		ContentType: DetectContentType(entry, data),
		EntryPath:   entry,
		Suffix:      res.LaunchSuffix(),
		CreatedAt:   time.Now(),
		store:       r.store,
		archive:     a,
		content:     data,
	}
	r.store.add(h)
	return h, nil
}

// DetectContentType prefers the extension and falls back to sniffing
func DetectContentType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
