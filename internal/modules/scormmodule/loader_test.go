package scormmodule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/bridge"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/runtime"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/scormtest"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/types"
	"github.com/mantonx/scormbridge/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completion struct {
	learnerID, courseID, moduleID string
}

type fakeStore struct {
	mu          sync.Mutex
	packages    map[string]*services.Package
	completions []completion
	recordErr   error
	slow        map[string]chan struct{} // closed when GetPackage starts waiting
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		packages: make(map[string]*services.Package),
		slow:     make(map[string]chan struct{}),
	}
}

func (s *fakeStore) add(courseID string, data []byte, moduleIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[courseID] = &services.Package{CourseID: courseID, IsScorm: true, Data: data, ModuleIDs: moduleIDs}
}

func (s *fakeStore) GetPackage(ctx context.Context, courseID string) (*services.Package, error) {
	s.mu.Lock()
	entered, slow := s.slow[courseID]
	pkg, ok := s.packages[courseID]
	s.mu.Unlock()

	if slow {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, scormerrors.New(scormerrors.KindPackageNotFound, "get_package", nil).WithCourse(courseID)
	}
	return pkg, nil
}

func (s *fakeStore) RecordCompletion(ctx context.Context, learnerID, courseID, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.completions = append(s.completions, completion{learnerID, courseID, moduleID})
	return nil
}

func (s *fakeStore) recorded() []completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completion(nil), s.completions...)
}

func newTestManager(store services.PackageStore) *Manager {
	return NewManager(store, nil, ManagerConfig{}, hclog.NewNullLogger())
}

func request(viewID, courseID string) types.LoadRequest {
	return types.LoadRequest{ViewID: viewID, CourseID: courseID, LearnerID: "learner-1", LearnerName: "Ada Lovelace"}
}

func TestLoad_PassedContentRaisesOneCompletion(t *testing.T) {
	store := newFakeStore()
	store.add("course-1", scormtest.SingleSCO(t, "index.html"), "unit-1")

	var raised []runtime.CompletionEvent
	var mu sync.Mutex
	bus := events.NewEventBus(events.DefaultEventBusConfig(), hclog.NewNullLogger())
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())
	_, err := bus.Subscribe(events.EventFilter{Types: []events.EventType{events.EventCompletionRaised}}, func(e events.Event) error {
		mu.Lock()
		raised = append(raised, runtime.CompletionEvent{Status: runtime.CompletionStatus(e.Data["status"].(string))})
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	m := NewManager(store, bus, ManagerConfig{}, hclog.NewNullLogger())
	result, err := m.Load(context.Background(), request("view-1", "course-1"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.ContentType, "text/html"), result.ContentType)
	assert.Equal(t, ContentRoutePrefix+"/"+result.HandleID+"/index.html", result.LaunchURL)
	assert.Equal(t, "Example Course", result.Title)
	assert.Equal(t, []string{bridge.APIName12, bridge.APIName2004}, result.APINames)

	calls := []struct {
		method string
		args   []string
	}{
		{"Initialize", []string{""}},
		{"SetValue", []string{"cmi.completion_status", "passed"}},
		{"Terminate", []string{""}},
	}
	for _, c := range calls {
		got, err := m.Invoke("view-1", bridge.APIName2004, c.method, c.args)
		require.NoError(t, err)
		assert.Equal(t, "true", got, c.method)
	}

	m.Wait()
	assert.Equal(t, []completion{{"learner-1", "course-1", "unit-1"}}, store.recorded())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(raised) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, runtime.StatusPassed, raised[0].Status)
	mu.Unlock()

	// Terminated: handle revoked, bindings remain until teardown
	info, ok := m.Inspect("view-1")
	require.True(t, ok)
	assert.True(t, info.Handle.Revoked)
	assert.Equal(t, runtime.StateTerminated, info.Session.State)

	got, err := m.Invoke("view-1", bridge.APIName12, "LMSGetValue", []string{"cmi.core.lesson_status"})
	require.NoError(t, err)
	assert.Equal(t, "passed", got)
}

func TestLoad_MissingLaunchFile(t *testing.T) {
	store := newFakeStore()
	store.add("course-1", scormtest.SingleSCO(t, "missing.html"))
	m := newTestManager(store)

	_, err := m.Load(context.Background(), request("view-1", "course-1"))
	require.Error(t, err)
	assert.Equal(t, scormerrors.KindLaunchFileMissing, scormerrors.KindOf(err))
	assert.True(t, errors.Is(err, scormerrors.ErrLaunchFileMissing))
	assert.True(t, scormerrors.IsLoadFailure(err))

	assert.Equal(t, 0, m.handles.Len())
	_, ok := m.Inspect("view-1")
	assert.False(t, ok)
	_, err = m.Invoke("view-1", bridge.APIName2004, "Initialize", nil)
	assert.True(t, errors.Is(err, types.ErrNoSession))
}

func TestLoad_FailureKinds(t *testing.T) {
	twoSCOs := scormtest.Zip(t, map[string]string{
		"imsmanifest.xml": scormtest.Manifest(
			scormtest.Resource{Identifier: "a", ScormType: "sco", Href: "a.html"},
			scormtest.Resource{Identifier: "b", ScormType: "sco", Href: "b.html"},
		),
		"a.html": "a",
		"b.html": "b",
	})

	tests := []struct {
		name     string
		data     []byte
		scorm    bool
		wantKind scormerrors.Kind
	}{
		{"corrupt archive", []byte("not a zip"), true, scormerrors.KindCorruptArchive},
		{"manifest missing", scormtest.Zip(t, map[string]string{"index.html": "x"}), true, scormerrors.KindManifestMissing},
		{"manifest malformed", scormtest.Zip(t, map[string]string{"imsmanifest.xml": "<manifest><resources>"}), true, scormerrors.KindManifestMalformed},
		{"no sco", scormtest.Zip(t, map[string]string{"imsmanifest.xml": scormtest.Manifest(scormtest.Resource{Identifier: "r", Href: "index.html"})}), true, scormerrors.KindNoLaunchableResource},
		{"two scos", twoSCOs, true, scormerrors.KindNoLaunchableResource},
		{"not scorm", scormtest.SingleSCO(t, "index.html"), false, scormerrors.KindNotScormPackage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.packages["course-1"] = &services.Package{CourseID: "course-1", IsScorm: tt.scorm, Data: tt.data}
			m := newTestManager(store)

			_, err := m.Load(context.Background(), request("view-1", "course-1"))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, scormerrors.KindOf(err))
			assert.True(t, scormerrors.IsLoadFailure(err))

			var le *scormerrors.LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, "course-1", le.CourseID)
			assert.Empty(t, m.registry.Views())
			assert.Equal(t, 0, m.handles.Len())
		})
	}
}

func TestLoad_ReloadRevokesPreviousHandleFirst(t *testing.T) {
	store := newFakeStore()
	store.add("course-1", scormtest.SingleSCO(t, "index.html"))
	entered := make(chan struct{})
	store.slow["slow"] = entered
	m := newTestManager(store)

	first, err := m.Load(context.Background(), request("view-1", "course-1"))
	require.NoError(t, err)
	got, err := m.Invoke("view-1", bridge.APIName2004, "Initialize", []string{""})
	require.NoError(t, err)
	require.Equal(t, "true", got)
	old, ok := m.handles.Get(first.HandleID)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() {
		_, err := m.Load(context.Background(), request("view-1", "slow"))
		done <- err
	}()
	<-entered

	// The reload is still fetching; nothing new has been resolved yet
	assert.True(t, old.Revoked())
	assert.Equal(t, 0, m.handles.Len())
	_, err = m.Invoke("view-1", bridge.APIName2004, "GetValue", []string{"cmi.completion_status"})
	assert.ErrorIs(t, err, types.ErrNoSession)

	m.Teardown("view-1")
	select {
	case err := <-done:
		assert.Equal(t, scormerrors.KindLoadCancelled, scormerrors.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("reload did not return")
	}
}

func TestLoad_FailedReloadLeavesNoLiveHandle(t *testing.T) {
	store := newFakeStore()
	store.add("course-1", scormtest.SingleSCO(t, "index.html"))
	store.add("broken", scormtest.Zip(t, map[string]string{"index.html": "x"}))
	m := newTestManager(store)

	first, err := m.Load(context.Background(), request("view-1", "course-1"))
	require.NoError(t, err)
	old, ok := m.handles.Get(first.HandleID)
	require.True(t, ok)

	_, err = m.Load(context.Background(), request("view-1", "broken"))
	assert.Equal(t, scormerrors.KindManifestMissing, scormerrors.KindOf(err))

	assert.True(t, old.Revoked())
	assert.Equal(t, 0, m.handles.Len())
	_, ok = m.Inspect("view-1")
	assert.False(t, ok)
	_, ok = m.registry.Lookup("view-1", bridge.APIName12)
	assert.False(t, ok)
}

func TestLoad_UnknownCourse(t *testing.T) {
	m := newTestManager(newFakeStore())

	_, err := m.Load(context.Background(), request("view-1", "nope"))
	assert.True(t, errors.Is(err, scormerrors.ErrPackageNotFound))
	assert.False(t, scormerrors.IsLoadFailure(err))
}

func TestLoad_SupersededLoadNeverInstalls(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	store.slow["slow"] = entered
	store.add("fast", scormtest.SingleSCO(t, "index.html"))
	m := newTestManager(store)

	slowErr := make(chan error, 1)
	go func() {
		_, err := m.Load(context.Background(), request("view-1", "slow"))
		slowErr <- err
	}()
	<-entered

	result, err := m.Load(context.Background(), request("view-1", "fast"))
	require.NoError(t, err)

	select {
	case err := <-slowErr:
		assert.Equal(t, scormerrors.KindLoadCancelled, scormerrors.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("superseded load did not return")
	}

	info, ok := m.Inspect("view-1")
	require.True(t, ok)
	assert.Equal(t, result.SessionID, info.Session.ID)
	assert.Equal(t, 1, m.handles.Len())
}

func TestTeardown_CancelsPendingLoad(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	store.slow["slow"] = entered
	m := newTestManager(store)

	done := make(chan error, 1)
	go func() {
		_, err := m.Load(context.Background(), request("view-1", "slow"))
		done <- err
	}()
	<-entered

	assert.True(t, m.Teardown("view-1"))

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, scormerrors.ErrLoadCancelled))
	case <-time.After(2 * time.Second):
		t.Fatal("torn down load did not return")
	}
	assert.Empty(t, m.registry.Views())
}

func TestLoad_Timeout(t *testing.T) {
	store := newFakeStore()
	store.slow["slow"] = make(chan struct{})
	m := NewManager(store, nil, ManagerConfig{LoadTimeout: 20 * time.Millisecond}, nil)

	_, err := m.Load(context.Background(), request("view-1", "slow"))
	assert.Equal(t, scormerrors.KindLoadCancelled, scormerrors.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, m.registry.Loading("view-1"))
}

func TestCompletion_CourseLevelWithoutModules(t *testing.T) {
	store := newFakeStore()
	store.add("course-1", scormtest.SingleSCO(t, "index.html"))
	m := newTestManager(store)

	_, err := m.Load(context.Background(), request("view-1", "course-1"))
	require.NoError(t, err)

	m.Invoke("view-1", bridge.APIName12, "LMSInitialize", []string{""})
	m.Invoke("view-1", bridge.APIName12, "LMSSetValue", []string{"cmi.core.lesson_status", "completed"})
	m.Invoke("view-1", bridge.APIName12, "LMSFinish", []string{""})
	m.Wait()

	assert.Equal(t, []completion{{"learner-1", "course-1", ""}}, store.recorded())
}

func TestCompletion_WriteFailureBecomesNotice(t *testing.T) {
	store := newFakeStore()
	store.add("course-1", scormtest.SingleSCO(t, "index.html"), "unit-1")
	store.recordErr = errors.New("database is locked")
	m := newTestManager(store)

	_, err := m.Load(context.Background(), request("view-1", "course-1"))
	require.NoError(t, err)

	m.Invoke("view-1", bridge.APIName2004, "Initialize", []string{""})
	m.Invoke("view-1", bridge.APIName2004, "SetValue", []string{"cmi.completion_status", "completed"})
	got, err := m.Invoke("view-1", bridge.APIName2004, "Terminate", []string{""})
	require.NoError(t, err)
	assert.Equal(t, "true", got, "persistence failure never reaches the content")
	m.Wait()

	notices := m.Notices("view-1")
	require.Len(t, notices, 1)
	assert.Equal(t, bridge.NoticeWarning, notices[0].Level)

	// The session stays terminated and raises nothing further
	got, _ = m.Invoke("view-1", bridge.APIName2004, "Terminate", []string{""})
	assert.Equal(t, "false", got)
}

func TestInvoke_UnknownAPI(t *testing.T) {
	m := newTestManager(newFakeStore())

	_, err := m.Invoke("view-1", "API_2", "Initialize", nil)
	assert.True(t, errors.Is(err, bridge.ErrUnknownAPI))
}

func TestShutdown_TearsDownViews(t *testing.T) {
	store := newFakeStore()
	store.add("course-1", scormtest.SingleSCO(t, "index.html"))
	m := newTestManager(store)

	for _, view := range []string{"a", "b"} {
		_, err := m.Load(context.Background(), request(view, "course-1"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.handles.Len())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Empty(t, m.registry.Views())
	assert.Equal(t, 0, m.handles.Len())
}
