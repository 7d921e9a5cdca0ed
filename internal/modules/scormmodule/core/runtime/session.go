// Package runtime implements the SCORM run-time API that loaded content calls.
// Every entry point is synchronous, returns a string and never panics across
// the boundary; failures are reported through GetLastError.
package runtime

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

const (
	resultTrue  = "true"
	resultFalse = "false"

	// DataModelVersion is reported for cmi._version
	DataModelVersion = "1.0"
)

// State is the lifecycle state of a Session
type State string

const (
	StateNotInitialized State = "not_initialized"
	StateRunning        State = "running"
	StateTerminated     State = "terminated"
)

var stateTransitions = map[State][]State{
	StateNotInitialized: {StateRunning},
	StateRunning:        {StateTerminated},
	StateTerminated:     {}, // Terminal state
}

func canTransition(from, to State) bool {
	for _, s := range stateTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CompletionStatus is the value of cmi.completion_status
type CompletionStatus string

const (
	StatusUnknown    CompletionStatus = "unknown"
	StatusIncomplete CompletionStatus = "incomplete"
	StatusCompleted  CompletionStatus = "completed"
	StatusPassed     CompletionStatus = "passed"
	StatusFailed     CompletionStatus = "failed"
)

// IsTerminalSuccess reports whether terminating with this status counts as completion
func (c CompletionStatus) IsTerminalSuccess() bool {
	return c == StatusCompleted || c == StatusPassed
}

func parseCompletionStatus(v string) (CompletionStatus, bool) {
	switch c := CompletionStatus(v); c {
	case StatusUnknown, StatusIncomplete, StatusCompleted, StatusPassed, StatusFailed:
		return c, true
	}
	return "", false
}

// CompletionEvent is raised at most once per session, by a successful
// Terminate while the status is completed or passed.
type CompletionEvent struct {
	SessionID  string           `json:"session_id"`
	ViewID     string           `json:"view_id"`
	LearnerID  string           `json:"learner_id"`
	CourseID   string           `json:"course_id"`
	Status     CompletionStatus `json:"status"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Options configures a Session
type Options struct {
	ID          string // generated when empty
	ViewID      string
	CourseID    string
	LearnerID   string
	LearnerName string
	Logger      hclog.Logger

	// OnComplete receives the completion event before Terminate returns.
	// It must not block.
	OnComplete func(CompletionEvent)

	// OnTerminate runs after every successful Terminate
	OnTerminate func(Snapshot)
}

// Snapshot is a read-only view of a session for the host
type Snapshot struct {
	ID               string           `json:"id"`
	ViewID           string           `json:"view_id"`
	CourseID         string           `json:"course_id"`
	LearnerID        string           `json:"learner_id"`
	State            State            `json:"state"`
	CompletionStatus CompletionStatus `json:"completion_status"`
	LastError        ErrorCode        `json:"last_error"`
	LastErrorString  string           `json:"last_error_string,omitempty"`
	CompletionRaised bool             `json:"completion_raised"`
	Calls            int64            `json:"calls"`
	CreatedAt        time.Time        `json:"created_at"`
	InitializedAt    *time.Time       `json:"initialized_at,omitempty"`
	TerminatedAt     *time.Time       `json:"terminated_at,omitempty"`
}

// Session is one content attempt. It is safe for concurrent use.
type Session struct {
	opts   Options
	logger hclog.Logger

	mu               sync.Mutex
	state            State
	status           CompletionStatus // empty until content sets it
	lastError        ErrorCode
	lastDiagnostic   string
	completionRaised bool
	calls            int64
	createdAt        time.Time
	initializedAt    time.Time
	terminatedAt     time.Time
}

// NewSession creates a session in the NotInitialized state
func NewSession(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Session{
		opts:      opts,
		logger:    logger.Named("rte").With("session_id", opts.ID, "view_id", opts.ViewID),
		state:     StateNotInitialized,
		createdAt: time.Now(),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.opts.ID
}

// Initialize starts the session. Repeated calls while running succeed
// without side effects; calls after Terminate fail with 104.
func (s *Session) Initialize(param string) (result string) {
	defer s.recoverCall("Initialize", &result, resultFalse)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	switch s.state {
	case StateRunning:
		s.setError(NoError, "")
		return resultTrue
	case StateTerminated:
		s.setError(ContentInstanceTerminated, "")
		return resultFalse
	}

	s.transition(StateRunning)
	s.initializedAt = time.Now()
	s.setError(NoError, "")
	s.logger.Debug("session initialized")
	return resultTrue
}

// Terminate ends the session. A completed or passed status raises exactly
// one CompletionEvent before the call returns.
func (s *Session) Terminate(param string) (result string) {
	defer s.recoverCall("Terminate", &result, resultFalse)

	event, snap, ok := s.terminate()
	if !ok {
		return resultFalse
	}

	if event != nil {
		s.runHook("OnComplete", func() {
			if s.opts.OnComplete != nil {
				s.opts.OnComplete(*event)
			}
		})
	}
	s.runHook("OnTerminate", func() {
		if s.opts.OnTerminate != nil {
			s.opts.OnTerminate(snap)
		}
	})
	return resultTrue
}

func (s *Session) terminate() (*CompletionEvent, Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	switch s.state {
	case StateNotInitialized:
		s.setError(TerminationBeforeInitialization, "")
		return nil, Snapshot{}, false
	case StateTerminated:
		s.setError(TerminationAfterTermination, "")
		return nil, Snapshot{}, false
	}

	s.transition(StateTerminated)
	s.terminatedAt = time.Now()
	s.setError(NoError, "")

	var event *CompletionEvent
	status := s.effectiveStatus()
	if status.IsTerminalSuccess() && !s.completionRaised {
		s.completionRaised = true
		event = &CompletionEvent{
			SessionID:  s.opts.ID,
			ViewID:     s.opts.ViewID,
			LearnerID:  s.opts.LearnerID,
			CourseID:   s.opts.CourseID,
			Status:     status,
			OccurredAt: s.terminatedAt,
		}
	}

	s.logger.Debug("session terminated", "completion_status", status, "completion_raised", event != nil)
	return event, s.snapshotLocked(), true
}

// GetValue reads a data model element. Reads are allowed in any state.
func (s *Session) GetValue(name string) (result string) {
	defer s.recoverCall("GetValue", &result, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	name = strings.TrimSpace(name)
	if name == "" {
		s.setError(GeneralGetFailure, "")
		return ""
	}

	el, ok := elements[name]
	if !ok || el.get == nil {
		if isDefinedName(name) {
			s.setError(UnimplementedDataModelElement, fmt.Sprintf("%s is not implemented", name))
		} else {
			s.setError(UndefinedDataModelElement, fmt.Sprintf("%s is not a data model element", name))
		}
		return ""
	}

	s.setError(NoError, "")
	return el.get(s)
}

// SetValue writes a data model element. Only the completion status is
// stored; unknown elements are accepted and dropped in any state.
func (s *Session) SetValue(name, value string) (result string) {
	defer s.recoverCall("SetValue", &result, resultFalse)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	name = strings.TrimSpace(name)
	if name == "" {
		s.setError(GeneralSetFailure, "")
		return resultFalse
	}

	el, ok := elements[name]
	if !ok {
		s.setError(NoError, "")
		return resultTrue
	}

	switch s.state {
	case StateNotInitialized:
		s.setError(StoreDataBeforeInitialization, "")
		return resultFalse
	case StateTerminated:
		s.setError(StoreDataAfterTermination, "")
		return resultFalse
	}
	if el.set == nil {
		s.setError(DataModelElementIsReadOnly, fmt.Sprintf("%s is read only", name))
		return resultFalse
	}
	if code := el.set(s, value); code != NoError {
		s.setError(code, fmt.Sprintf("%q is not a valid value for %s", value, name))
		return resultFalse
	}

	s.setError(NoError, "")
	return resultTrue
}

// Commit always succeeds; persistence happens on Terminate
func (s *Session) Commit(param string) (result string) {
	defer s.recoverCall("Commit", &result, resultFalse)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.setError(NoError, "")
	return resultTrue
}

// GetLastError returns the code of the last call's error
func (s *Session) GetLastError() (result string) {
	defer s.recoverCall("GetLastError", &result, strconv.Itoa(int(GeneralException)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return strconv.Itoa(int(s.lastError))
}

// GetErrorString returns the text of a code, "" when the code is unknown
func (s *Session) GetErrorString(code string) (result string) {
	defer s.recoverCall("GetErrorString", &result, "")

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	c, ok := ParseErrorCode(code)
	if !ok {
		return ""
	}
	return c.String()
}

// GetDiagnostic returns detail for a code. An empty code, or the code of
// the last error, returns the detail recorded with the last error.
func (s *Session) GetDiagnostic(code string) (result string) {
	defer s.recoverCall("GetDiagnostic", &result, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	c, ok := ParseErrorCode(code)
	if strings.TrimSpace(code) == "" {
		c, ok = s.lastError, true
	}
	if !ok {
		return ""
	}
	if c == s.lastError && s.lastDiagnostic != "" {
		return s.lastDiagnostic
	}
	return c.Diagnostic()
}

// Snapshot returns a read-only view for the host
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:               s.opts.ID,
		ViewID:           s.opts.ViewID,
		CourseID:         s.opts.CourseID,
		LearnerID:        s.opts.LearnerID,
		State:            s.state,
		CompletionStatus: s.effectiveStatus(),
		LastError:        s.lastError,
		LastErrorString:  s.lastError.String(),
		CompletionRaised: s.completionRaised,
		Calls:            s.calls,
		CreatedAt:        s.createdAt,
	}
	if !s.initializedAt.IsZero() {
		t := s.initializedAt
		snap.InitializedAt = &t
	}
	if !s.terminatedAt.IsZero() {
		t := s.terminatedAt
		snap.TerminatedAt = &t
	}
	return snap
}

func (s *Session) effectiveStatus() CompletionStatus {
	if s.status == "" {
		return StatusIncomplete
	}
	return s.status
}

func (s *Session) transition(to State) {
	if !canTransition(s.state, to) {
		panic(fmt.Sprintf("invalid state transition from %s to %s", s.state, to))
	}
	s.state = to
}

// setError records the outcome of the current call; caller holds mu
func (s *Session) setError(code ErrorCode, diagnostic string) {
	s.lastError = code
	if diagnostic == "" {
		diagnostic = code.Diagnostic()
	}
	s.lastDiagnostic = diagnostic
}

// recoverCall converts a panic into error 101 so nothing unwinds into content
func (s *Session) recoverCall(method string, result *string, failed string) {
	r := recover()
	if r == nil {
		return
	}
	s.logger.Error("panic in run-time call", "method", method, "panic", r)

	// The panicking call released mu through its deferred unlock
	s.mu.Lock()
	s.setError(GeneralException, fmt.Sprintf("%s failed: %v", method, r))
	s.mu.Unlock()
	*result = failed
}

func (s *Session) runHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session hook panicked", "hook", name, "panic", r)
		}
	}()
	fn()
}
