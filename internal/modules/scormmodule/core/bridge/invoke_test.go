package bridge

import (
	"errors"
	"testing"

	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_2004Binding(t *testing.T) {
	s := newSession("v")

	calls := []struct {
		method string
		args   []string
		want   string
	}{
		{"Initialize", []string{""}, "true"},
		{"GetValue", []string{"cmi.completion_status"}, "incomplete"},
		{"SetValue", []string{"cmi.completion_status", "completed"}, "true"},
		{"GetLastError", nil, "0"},
		{"Commit", nil, "true"},
		{"Terminate", []string{""}, "true"},
		{"Terminate", []string{""}, "false"},
		{"GetLastError", nil, "113"},
	}
	for _, c := range calls {
		got, err := Invoke(s, APIName2004, c.method, c.args)
		require.NoError(t, err, c.method)
		assert.Equal(t, c.want, got, c.method)
	}
}

func TestInvoke_12AliasesShareSession(t *testing.T) {
	s := newSession("v")

	got, err := Invoke(s, APIName12, "LMSInitialize", []string{""})
	require.NoError(t, err)
	assert.Equal(t, "true", got)

	got, err = Invoke(s, APIName12, "LMSSetValue", []string{"cmi.core.lesson_status", "passed"})
	require.NoError(t, err)
	assert.Equal(t, "true", got)

	// Same session under the other name
	got, err = Invoke(s, APIName2004, "GetValue", []string{"cmi.completion_status"})
	require.NoError(t, err)
	assert.Equal(t, "passed", got)

	got, err = Invoke(s, APIName12, "LMSFinish", []string{""})
	require.NoError(t, err)
	assert.Equal(t, "true", got)
	assert.Equal(t, runtime.StateTerminated, s.State())
}

func TestInvoke_LMSNamesOnlyOnAPI(t *testing.T) {
	s := newSession("v")

	_, err := Invoke(s, APIName2004, "LMSInitialize", nil)
	assert.True(t, errors.Is(err, ErrUnknownMethod))

	_, err = Invoke(s, APIName12, "Initialize", nil)
	assert.NoError(t, err)
}

func TestInvoke_UnknownBindingAndMethod(t *testing.T) {
	s := newSession("v")

	_, err := Invoke(s, "API_1484", "Initialize", nil)
	assert.True(t, errors.Is(err, ErrUnknownAPI))

	_, err = Invoke(s, APIName2004, "Launch", nil)
	assert.True(t, errors.Is(err, ErrUnknownMethod))

	assert.Equal(t, runtime.StateNotInitialized, s.State())
}

func TestInvoke_MissingArgs(t *testing.T) {
	s := newSession("v")

	got, err := Invoke(s, APIName2004, "GetValue", nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.Equal(t, "301", s.GetLastError())
}

func TestMethods(t *testing.T) {
	assert.Len(t, Methods(APIName2004), 8)
	assert.Len(t, Methods(APIName12), 16)
	assert.Contains(t, Methods(APIName12), "LMSFinish")
	assert.NotContains(t, Methods(APIName2004), "LMSFinish")
}
