package bridge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/runtime"
)

var (
	// ErrUnknownAPI is returned for a binding name other than API or API_1484_11
	ErrUnknownAPI = errors.New("unknown api binding")
	// ErrUnknownMethod is returned for a method the binding does not expose
	ErrUnknownMethod = errors.New("unknown api method")
)

type method func(s *runtime.Session, args []string) string

var methods2004 = map[string]method{
	"Initialize":     func(s *runtime.Session, a []string) string { return s.Initialize(arg(a, 0)) },
	"Terminate":      func(s *runtime.Session, a []string) string { return s.Terminate(arg(a, 0)) },
	"GetValue":       func(s *runtime.Session, a []string) string { return s.GetValue(arg(a, 0)) },
	"SetValue":       func(s *runtime.Session, a []string) string { return s.SetValue(arg(a, 0), arg(a, 1)) },
	"Commit":         func(s *runtime.Session, a []string) string { return s.Commit(arg(a, 0)) },
	"GetLastError":   func(s *runtime.Session, a []string) string { return s.GetLastError() },
	"GetErrorString": func(s *runtime.Session, a []string) string { return s.GetErrorString(arg(a, 0)) },
	"GetDiagnostic":  func(s *runtime.Session, a []string) string { return s.GetDiagnostic(arg(a, 0)) },
}

// SCORM 1.2 names accepted on the API binding
var aliases12 = map[string]string{
	"LMSInitialize":     "Initialize",
	"LMSFinish":         "Terminate",
	"LMSGetValue":       "GetValue",
	"LMSSetValue":       "SetValue",
	"LMSCommit":         "Commit",
	"LMSGetLastError":   "GetLastError",
	"LMSGetErrorString": "GetErrorString",
	"LMSGetDiagnostic":  "GetDiagnostic",
}

// Invoke dispatches a call made through the named binding to the session.
// Missing arguments are passed as empty strings.
func Invoke(s *runtime.Session, apiName, name string, args []string) (string, error) {
	switch apiName {
	case APIName12:
		if canonical, ok := aliases12[name]; ok {
			name = canonical
		}
	case APIName2004:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAPI, apiName)
	}

	m, ok := methods2004[name]
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownMethod, apiName, name)
	}
	return m(s, args), nil
}

// Methods lists the method names exposed on a binding
func Methods(apiName string) []string {
	var names []string
	for name := range methods2004 {
		names = append(names, name)
	}
	if apiName == APIName12 {
		for alias := range aliases12 {
			names = append(names, alias)
		}
	}
	sort.Strings(names)
	return names
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
