// Package types holds the SCORM module's request and response shapes shared
// by the manager and the HTTP layer.
package types

import (
	"context"
	"errors"
	"time"

	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/bridge"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/launch"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/runtime"
)

// ErrNoSession is returned for RTE calls on a view without an installed session
var ErrNoSession = errors.New("no session installed for view")

// LoadRequest asks for a course to be launched in a view
type LoadRequest struct {
	ViewID      string `json:"-"`
	CourseID    string `json:"course_id" binding:"required"`
	LearnerID   string `json:"learner_id" binding:"required"`
	LearnerName string `json:"learner_name"`
}

// LoadResult describes an installed session
type LoadResult struct {
	ViewID      string    `json:"view_id"`
	SessionID   string    `json:"session_id"`
	HandleID    string    `json:"handle_id"`
	LaunchURL   string    `json:"launch_url"`
	ContentType string    `json:"content_type"`
	Title       string    `json:"title,omitempty"`
	Schema      string    `json:"schema_version,omitempty"`
	APINames    []string  `json:"api_names"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// HandleInfo describes the live launch handle of a view
type HandleInfo struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	EntryPath   string    `json:"entry_path"`
	ContentType string    `json:"content_type"`
	Digest      string    `json:"digest"`
	Revoked     bool      `json:"revoked"`
	CreatedAt   time.Time `json:"created_at"`
}

// ViewInfo is the read-only inspection of one view
type ViewInfo struct {
	ViewID      string            `json:"view_id"`
	Loading     bool              `json:"loading"`
	Session     *runtime.Snapshot `json:"session,omitempty"`
	Handle      *HandleInfo       `json:"handle,omitempty"`
	InstalledAt *time.Time        `json:"installed_at,omitempty"`
	Notices     []bridge.Notice   `json:"notices"`
}

// RuntimeService is what the HTTP layer needs from the SCORM module
type RuntimeService interface {
	Load(ctx context.Context, req LoadRequest) (*LoadResult, error)
	Invoke(viewID, apiName, method string, args []string) (string, error)
	Inspect(viewID string) (*ViewInfo, bool)
	Teardown(viewID string) bool
	Notices(viewID string) []bridge.Notice
	Handle(id string) (*launch.Handle, bool)
}
