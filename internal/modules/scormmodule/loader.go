package scormmodule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/archive"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/bridge"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/manifest"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/runtime"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/types"
)

// Load runs the pipeline for req and installs the resulting session under
// req.ViewID, replacing whatever that view showed before. A newer load or a
// teardown of the same view cancels it.
func (m *Manager) Load(ctx context.Context, req types.LoadRequest) (*types.LoadResult, error) {
	if m.config.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.LoadTimeout)
		defer cancel()
	}

	start := time.Now()
	loadCtx, ticket := m.registry.BeginLoad(ctx, req.ViewID)

	result, err := m.load(loadCtx, ticket, req)
	if err != nil {
		m.registry.Abandon(ticket)
		m.logger.Warn("content load failed",
			"view_id", req.ViewID,
			"course_id", req.CourseID,
			"reason", scormerrors.KindOf(err),
			"error", err)
		m.publish(events.EventSessionLoadFailed, req.ViewID, "Could not load content", err.Error(),
			map[string]interface{}{
				"view_id":   req.ViewID,
				"course_id": req.CourseID,
				"reason":    string(scormerrors.KindOf(err)),
			})
		return nil, err
	}

	m.logger.Info("content loaded",
		"view_id", req.ViewID,
		"course_id", req.CourseID,
		"session_id", result.SessionID,
		"handle_id", result.HandleID,
		"duration", time.Since(start))
	m.publish(events.EventSessionLoaded, req.ViewID, "Content loaded", result.Title,
		map[string]interface{}{
			"view_id":    req.ViewID,
			"course_id":  req.CourseID,
			"session_id": result.SessionID,
			"launch_url": result.LaunchURL,
		})
	return result, nil
}

func (m *Manager) load(ctx context.Context, ticket *bridge.Ticket, req types.LoadRequest) (*types.LoadResult, error) {
	if m.store == nil {
		return nil, fmt.Errorf("package store not available")
	}

	pkg, err := m.store.GetPackage(ctx, req.CourseID)
	if err != nil {
		if cerr := cancelled(ctx, "fetch_package"); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if !pkg.IsScorm {
		return nil, scormerrors.New(scormerrors.KindNotScormPackage, "check_package", nil).WithCourse(req.CourseID)
	}
	if err := cancelled(ctx, "open_archive"); err != nil {
		return nil, err
	}

	a, err := archive.Open(pkg.Data, archive.WithMaxEntrySize(m.config.MaxEntrySize))
	if err != nil {
		return nil, withCourse(err, req.CourseID)
	}

	mf, err := manifest.FromArchive(a)
	if err != nil {
		return nil, withCourse(err, req.CourseID)
	}
	res, err := mf.Launchable()
	if err != nil {
		return nil, withCourse(err, req.CourseID)
	}
	if err := cancelled(ctx, "resolve_launch"); err != nil {
		return nil, err
	}

	handle, err := m.resolver.Resolve(a, res)
	if err != nil {
		return nil, withCourse(err, req.CourseID)
	}

	moduleIDs := append([]string(nil), pkg.ModuleIDs...)
	session := runtime.NewSession(runtime.Options{
		ViewID:      req.ViewID,
		CourseID:    req.CourseID,
		LearnerID:   req.LearnerID,
		LearnerName: req.LearnerName,
		Logger:      m.logger,
		OnComplete: func(event runtime.CompletionEvent) {
			m.publish(events.EventCompletionRaised, event.ViewID, "Content completed", string(event.Status),
				map[string]interface{}{
					"session_id": event.SessionID,
					"course_id":  event.CourseID,
					"learner_id": event.LearnerID,
					"status":     string(event.Status),
				})
			m.notifier.Notify(event, moduleIDs)
		},
		OnTerminate: func(snap runtime.Snapshot) {
			handle.Revoke()
			m.publish(events.EventSessionTerminated, snap.ViewID, "Content finished", "",
				map[string]interface{}{
					"session_id":        snap.ID,
					"completion_status": string(snap.CompletionStatus),
				})
		},
	})

	// A cancellation that races the checks above is caught by Install
	if err := cancelled(ctx, "install_session"); err != nil {
		handle.Revoke()
		return nil, err
	}
	if err := m.registry.Install(ticket, session, handle); err != nil {
		return nil, withCourse(err, req.CourseID)
	}

	return &types.LoadResult{
		ViewID:      req.ViewID,
		SessionID:   session.ID(),
		HandleID:    handle.ID,
		LaunchURL:   handle.URL(),
		ContentType: handle.ContentType,
		Title:       mf.Title,
		Schema:      mf.SchemaVersion,
		APINames:    []string{bridge.APIName12, bridge.APIName2004},
		LoadedAt:    time.Now(),
	}, nil
}

// cancelled converts a done context into LoadCancelled
func cancelled(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return scormerrors.New(scormerrors.KindLoadCancelled, op, err)
	}
	return nil
}

func withCourse(err error, courseID string) error {
	var le *scormerrors.LoadError
	if errors.As(err, &le) && le.CourseID == "" {
		le.CourseID = courseID
	}
	return err
}
