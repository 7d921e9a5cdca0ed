package runtime

import (
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []CompletionEvent
}

func (r *eventRecorder) record(e CompletionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []CompletionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CompletionEvent(nil), r.events...)
}

func newTestSession(rec *eventRecorder) *Session {
	opts := Options{
		ViewID:      "view-1",
		CourseID:    "course-1",
		LearnerID:   "learner-1",
		LearnerName: "Ada Lovelace",
		Logger:      hclog.NewNullLogger(),
	}
	if rec != nil {
		opts.OnComplete = rec.record
	}
	return NewSession(opts)
}

func TestInitialize_IsReentrantWhileRunning(t *testing.T) {
	s := newTestSession(nil)

	assert.Equal(t, "true", s.Initialize(""))
	assert.Equal(t, "true", s.SetValue("cmi.completion_status", "completed"))
	assert.Equal(t, "true", s.Initialize(""))

	assert.Equal(t, "0", s.GetLastError())
	assert.Equal(t, "completed", s.GetValue("cmi.completion_status"))
	assert.Equal(t, StateRunning, s.State())
}

func TestInitialize_AfterTerminate(t *testing.T) {
	s := newTestSession(nil)
	require.Equal(t, "true", s.Initialize(""))
	require.Equal(t, "true", s.Terminate(""))

	assert.Equal(t, "false", s.Initialize(""))
	assert.Equal(t, "104", s.GetLastError())
	assert.Equal(t, StateTerminated, s.State())
}

func TestTerminate_BeforeInitialize(t *testing.T) {
	rec := &eventRecorder{}
	s := newTestSession(rec)

	assert.Equal(t, "false", s.Terminate(""))
	assert.Equal(t, "112", s.GetLastError())

	text := s.GetErrorString("112")
	diag := s.GetDiagnostic("112")
	assert.NotEmpty(t, text)
	assert.NotEmpty(t, diag)
	assert.NotEqual(t, text, diag)
	assert.NotEqual(t, s.GetErrorString("113"), text)

	assert.Equal(t, StateNotInitialized, s.State())
	assert.Empty(t, rec.all())
}

func TestTerminate_RaisesExactlyOneCompletion(t *testing.T) {
	for _, status := range []string{"completed", "passed"} {
		t.Run(status, func(t *testing.T) {
			rec := &eventRecorder{}
			s := newTestSession(rec)

			require.Equal(t, "true", s.Initialize(""))
			require.Equal(t, "true", s.SetValue("cmi.completion_status", status))
			require.Equal(t, "true", s.Terminate(""))

			events := rec.all()
			require.Len(t, events, 1)
			assert.Equal(t, CompletionStatus(status), events[0].Status)
			assert.Equal(t, "learner-1", events[0].LearnerID)
			assert.Equal(t, "course-1", events[0].CourseID)
			assert.Equal(t, "view-1", events[0].ViewID)
			assert.Equal(t, s.ID(), events[0].SessionID)

			assert.Equal(t, "false", s.Terminate(""))
			assert.Equal(t, "113", s.GetLastError())
			assert.Len(t, rec.all(), 1)
		})
	}
}

func TestTerminate_NoCompletionForOtherStatuses(t *testing.T) {
	for _, status := range []string{"", "incomplete", "failed", "unknown"} {
		t.Run("status="+status, func(t *testing.T) {
			rec := &eventRecorder{}
			terminated := 0
			s := NewSession(Options{
				OnComplete:  rec.record,
				OnTerminate: func(Snapshot) { terminated++ },
			})

			require.Equal(t, "true", s.Initialize(""))
			if status != "" {
				require.Equal(t, "true", s.SetValue("cmi.completion_status", status))
			}
			require.Equal(t, "true", s.Terminate(""))

			assert.Empty(t, rec.all())
			assert.Equal(t, 1, terminated)
		})
	}
}

func TestGetValue_Defaults(t *testing.T) {
	s := newTestSession(nil)

	// Before Initialize reads are still answered
	assert.Equal(t, "incomplete", s.GetValue("cmi.completion_status"))
	assert.Equal(t, "0", s.GetLastError())

	require.Equal(t, "true", s.Initialize(""))
	assert.Equal(t, "incomplete", s.GetValue("cmi.completion_status"))
	assert.Equal(t, "Ada Lovelace", s.GetValue("cmi.core.student_name"))
	assert.Equal(t, "Ada Lovelace", s.GetValue("cmi.learner_name"))
	assert.Equal(t, "learner-1", s.GetValue("cmi.learner_id"))
	assert.Equal(t, "learner-1", s.GetValue("cmi.core.student_id"))
	assert.Equal(t, "1.0", s.GetValue("cmi._version"))
}

func TestGetValue_UnknownElement(t *testing.T) {
	s := newTestSession(nil)
	require.Equal(t, "true", s.Initialize(""))

	tests := []struct {
		name      string
		key       string
		wantError string
	}{
		{"untracked 2004 element", "cmi.score.raw", "402"},
		{"untracked 1.2 element", "cmi.core.score.raw", "402"},
		{"untracked indexed element", "cmi.interactions.3.result", "402"},
		{"nested indexes", "cmi.interactions.0.objectives.12.id", "402"},
		{"undefined element", "cmi.favourite_colour", "401"},
		{"index in the wrong place", "cmi.score.0", "401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "", s.GetValue(tt.key))
			assert.Equal(t, tt.wantError, s.GetLastError())
			assert.Contains(t, s.GetDiagnostic(""), tt.key)
		})
	}

	assert.Equal(t, "Unimplemented Data Model Element", s.GetErrorString("402"))
	assert.Equal(t, "Undefined Data Model Element", s.GetErrorString("401"))

	assert.Equal(t, "", s.GetValue(""))
	assert.Equal(t, "301", s.GetLastError())
}

func TestSetValue(t *testing.T) {
	s := newTestSession(nil)
	require.Equal(t, "true", s.Initialize(""))

	tests := []struct {
		name      string
		key       string
		value     string
		want      string
		wantError string
	}{
		{"valid status", "cmi.completion_status", "passed", "true", "0"},
		{"invalid status", "cmi.completion_status", "done", "false", "406"},
		{"status is case sensitive", "cmi.completion_status", "Completed", "false", "406"},
		{"untracked element", "cmi.suspend_data", "page=3", "true", "0"},
		{"read only name", "cmi.core.student_name", "Mallory", "false", "404"},
		{"read only id", "cmi.learner_id", "other", "false", "404"},
		{"read only version", "cmi._version", "2.0", "false", "404"},
		{"empty name", "", "x", "false", "351"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SetValue(tt.key, tt.value))
			assert.Equal(t, tt.wantError, s.GetLastError())
		})
	}

	// Failed writes left the stored value alone
	assert.Equal(t, "passed", s.GetValue("cmi.completion_status"))
	assert.Equal(t, "Ada Lovelace", s.GetValue("cmi.core.student_name"))
	assert.Equal(t, "", s.GetValue("cmi.suspend_data"))
}

func TestSetValue_StateGuards(t *testing.T) {
	s := newTestSession(nil)

	assert.Equal(t, "false", s.SetValue("cmi.completion_status", "completed"))
	assert.Equal(t, "132", s.GetLastError())
	assert.Equal(t, "incomplete", s.GetValue("cmi.completion_status"))

	require.Equal(t, "true", s.Initialize(""))
	require.Equal(t, "true", s.Terminate(""))

	assert.Equal(t, "false", s.SetValue("cmi.completion_status", "completed"))
	assert.Equal(t, "133", s.GetLastError())
}

func TestSetValue_UntrackedElementsOutsideRunning(t *testing.T) {
	s := newTestSession(nil)

	assert.Equal(t, "true", s.SetValue("cmi.suspend_data", "page=1"))
	assert.Equal(t, "0", s.GetLastError())
	assert.Equal(t, "true", s.SetValue("cmi.favourite_colour", "blue"))
	assert.Equal(t, "0", s.GetLastError())

	// Tracked and read-only elements stay guarded
	assert.Equal(t, "false", s.SetValue("cmi.core.student_name", "Mallory"))
	assert.Equal(t, "132", s.GetLastError())

	require.Equal(t, "true", s.Initialize(""))
	require.Equal(t, "true", s.Terminate(""))

	assert.Equal(t, "true", s.SetValue("cmi.suspend_data", "page=2"))
	assert.Equal(t, "0", s.GetLastError())
	assert.Equal(t, "incomplete", s.GetValue("cmi.completion_status"))
}

func TestLessonStatusAlias(t *testing.T) {
	s := newTestSession(nil)
	require.Equal(t, "true", s.Initialize(""))

	assert.Equal(t, "incomplete", s.GetValue("cmi.core.lesson_status"))

	assert.Equal(t, "true", s.SetValue("cmi.core.lesson_status", "not attempted"))
	assert.Equal(t, "unknown", s.GetValue("cmi.completion_status"))
	assert.Equal(t, "not attempted", s.GetValue("cmi.core.lesson_status"))

	assert.Equal(t, "true", s.SetValue("cmi.core.lesson_status", "browsed"))
	assert.Equal(t, "incomplete", s.GetValue("cmi.completion_status"))

	assert.Equal(t, "false", s.SetValue("cmi.core.lesson_status", "unknown"))
	assert.Equal(t, "406", s.GetLastError())

	assert.Equal(t, "true", s.SetValue("cmi.completion_status", "passed"))
	assert.Equal(t, "passed", s.GetValue("cmi.core.lesson_status"))
}

func TestCommit_AlwaysSucceeds(t *testing.T) {
	s := newTestSession(nil)
	assert.Equal(t, "true", s.Commit(""))

	require.Equal(t, "true", s.Initialize(""))
	assert.Equal(t, "true", s.Commit(""))

	require.Equal(t, "true", s.Terminate(""))
	assert.Equal(t, "true", s.Commit(""))
	assert.Equal(t, "0", s.GetLastError())
}

func TestErrorQueries_NeverFail(t *testing.T) {
	s := newTestSession(nil)

	assert.Equal(t, "", s.GetErrorString("not a number"))
	assert.Equal(t, "", s.GetErrorString("999"))
	assert.Equal(t, "No Error", s.GetErrorString("0"))
	assert.Equal(t, "", s.GetDiagnostic("garbage"))
	assert.NotEmpty(t, s.GetDiagnostic(""))
}

func TestHookPanicsDoNotEscape(t *testing.T) {
	s := NewSession(Options{
		OnComplete: func(CompletionEvent) { panic("host bug") },
	})
	require.Equal(t, "true", s.Initialize(""))
	require.Equal(t, "true", s.SetValue("cmi.completion_status", "completed"))

	assert.NotPanics(t, func() {
		assert.Equal(t, "true", s.Terminate(""))
	})
	assert.Equal(t, StateTerminated, s.State())
	assert.True(t, s.Snapshot().CompletionRaised)
}

func TestRecoverCall_ReportsGeneralException(t *testing.T) {
	s := newTestSession(nil)

	result := func() (result string) {
		defer s.recoverCall("GetValue", &result, "")
		panic("unexpected")
	}()

	assert.Equal(t, "", result)
	assert.Equal(t, "101", s.GetLastError())
	assert.Contains(t, s.GetDiagnostic("101"), "unexpected")
}

func TestSnapshot(t *testing.T) {
	s := newTestSession(nil)
	snap := s.Snapshot()
	assert.Equal(t, StateNotInitialized, snap.State)
	assert.Nil(t, snap.InitializedAt)

	require.Equal(t, "true", s.Initialize(""))
	require.Equal(t, "true", s.SetValue("cmi.completion_status", "completed"))
	require.Equal(t, "true", s.Terminate(""))

	snap = s.Snapshot()
	assert.Equal(t, StateTerminated, snap.State)
	assert.Equal(t, StatusCompleted, snap.CompletionStatus)
	assert.True(t, snap.CompletionRaised)
	assert.NotNil(t, snap.InitializedAt)
	assert.NotNil(t, snap.TerminatedAt)
	assert.Equal(t, int64(3), snap.Calls)
}

func TestConcurrentCallsRaiseOneEvent(t *testing.T) {
	rec := &eventRecorder{}
	s := newTestSession(rec)
	require.Equal(t, "true", s.Initialize(""))
	require.Equal(t, "true", s.SetValue("cmi.completion_status", "completed"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Terminate("")
			s.GetValue("cmi.completion_status")
		}()
	}
	wg.Wait()

	assert.Len(t, rec.all(), 1)
}
