// Package notifier forwards completion events to the package store without
// ever blocking the run-time call that raised them.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/runtime"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
)

// DefaultWriteTimeout bounds a single completion write
const DefaultWriteTimeout = 10 * time.Second

// Writer receives completion writes. services.PackageStore satisfies it.
type Writer interface {
	RecordCompletion(ctx context.Context, learnerID, courseID, moduleID string) error
}

// Outcome is the result of one completion write
type Outcome struct {
	Event    runtime.CompletionEvent
	ModuleID string
	Err      error
	Duration time.Duration
}

// Options configures a Notifier
type Options struct {
	WriteTimeout time.Duration
	Logger       hclog.Logger
	Events       events.EventBus // optional
	ModuleID     string          // event source
	OnResult     func(Outcome)   // optional, called from the write goroutine
}

// Notifier runs completion writes on detached goroutines
type Notifier struct {
	writer   Writer
	logger   hclog.Logger
	timeout  time.Duration
	bus      events.EventBus
	source   string
	onResult func(Outcome)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a notifier writing through w
func New(w Writer, opts Options) *Notifier {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.ModuleID == "" {
		opts.ModuleID = "scorm"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		writer:   w,
		logger:   opts.Logger.Named("notifier"),
		timeout:  opts.WriteTimeout,
		bus:      opts.Events,
		source:   opts.ModuleID,
		onResult: opts.OnResult,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Notify schedules one write per module id and returns immediately. With no
// module ids a single course-level write (empty module id) is made. Failures
// are reported but never retried.
func (n *Notifier) Notify(event runtime.CompletionEvent, moduleIDs []string) {
	ids := append([]string(nil), moduleIDs...)
	if len(ids) == 0 {
		ids = []string{""}
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.logger.Error("completion dropped, notifier closed",
			"session_id", event.SessionID, "course_id", event.CourseID, "learner_id", event.LearnerID)
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		for _, moduleID := range ids {
			n.write(event, moduleID)
		}
	}()
}

func (n *Notifier) write(event runtime.CompletionEvent, moduleID string) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(n.ctx, n.timeout)
	err := n.safeRecord(ctx, event, moduleID)
	cancel()

	outcome := Outcome{Event: event, ModuleID: moduleID, Duration: time.Since(start)}
	if err != nil {
		outcome.Err = scormerrors.New(scormerrors.KindCompletionWriteFailed, "record_completion", err).
			WithCourse(event.CourseID)
		n.logger.Error("completion write failed",
			"session_id", event.SessionID,
			"learner_id", event.LearnerID,
			"course_id", event.CourseID,
			"module_id", moduleID,
			"error", err)
	} else {
		n.logger.Info("completion recorded",
			"session_id", event.SessionID,
			"learner_id", event.LearnerID,
			"course_id", event.CourseID,
			"module_id", moduleID,
			"duration", outcome.Duration)
	}

	n.publish(outcome)
	n.report(outcome)
}

func (n *Notifier) safeRecord(ctx context.Context, event runtime.CompletionEvent, moduleID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion writer panicked: %v", r)
		}
	}()
	return n.writer.RecordCompletion(ctx, event.LearnerID, event.CourseID, moduleID)
}

func (n *Notifier) publish(o Outcome) {
	if n.bus == nil {
		return
	}

	data := map[string]interface{}{
		"session_id": o.Event.SessionID,
		"learner_id": o.Event.LearnerID,
		"course_id":  o.Event.CourseID,
		"module_id":  o.ModuleID,
		"status":     string(o.Event.Status),
	}

	var event events.Event
	if o.Err != nil {
		data["error"] = o.Err.Error()
		event = events.NewModuleEvent(events.EventCompletionFailed, n.source,
			"Completion not saved", "Your progress could not be saved. Re-open the content to try again.", data)
		event.Priority = events.PriorityHigh
	} else {
		event = events.NewModuleEvent(events.EventCompletionRecorded, n.source,
			"Completion saved", "", data)
	}
	event.Target = o.Event.ViewID

	if err := n.bus.PublishAsync(event); err != nil {
		n.logger.Warn("failed to publish completion event", "error", err)
	}
}

func (n *Notifier) report(o Outcome) {
	if n.onResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("completion result callback panicked", "panic", r)
		}
	}()
	n.onResult(o)
}

// Wait blocks until every scheduled write has finished
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close cancels in-flight writes, waits for them and rejects new ones
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()
}
