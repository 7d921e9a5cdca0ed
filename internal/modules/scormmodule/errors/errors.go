// Package errors defines the failure taxonomy of the SCORM loader and runtime.
// Load-time failures share one user-facing outcome but keep their Kind for
// diagnostics; runtime failures never leave the RTE boundary as Go errors.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The string value doubles as the reason code
// returned to the host UI.
type Kind string

const (
	KindCorruptArchive         Kind = "CorruptArchive"
	KindEntryNotFound          Kind = "EntryNotFound"
	KindManifestMissing        Kind = "ManifestMissing"
	KindManifestMalformed      Kind = "ManifestMalformed"
	KindNoLaunchableResource   Kind = "NoLaunchableResource"
	KindLaunchFileMissing      Kind = "LaunchFileMissing"
	KindPackageNotFound        Kind = "PackageNotFound"
	KindNotScormPackage        Kind = "NotScormPackage"
	KindLoadCancelled          Kind = "LoadCancelled"
	KindInvalidStateTransition Kind = "InvalidStateTransition"
	KindCompletionWriteFailed  Kind = "CompletionWriteFailed"
)

// Sentinel errors, one per Kind
var (
	ErrCorruptArchive         = errors.New("corrupt archive")
	ErrEntryNotFound          = errors.New("archive entry not found")
	ErrManifestMissing        = errors.New("manifest missing")
	ErrManifestMalformed      = errors.New("manifest malformed")
	ErrNoLaunchableResource   = errors.New("no launchable resource")
	ErrLaunchFileMissing      = errors.New("launch file missing")
	ErrPackageNotFound        = errors.New("package not found")
	ErrNotScormPackage        = errors.New("not a scorm package")
	ErrLoadCancelled          = errors.New("load cancelled")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrCompletionWriteFailed  = errors.New("completion write failed")
)

var sentinels = map[Kind]error{
	KindCorruptArchive:         ErrCorruptArchive,
	KindEntryNotFound:          ErrEntryNotFound,
	KindManifestMissing:        ErrManifestMissing,
	KindManifestMalformed:      ErrManifestMalformed,
	KindNoLaunchableResource:   ErrNoLaunchableResource,
	KindLaunchFileMissing:      ErrLaunchFileMissing,
	KindPackageNotFound:        ErrPackageNotFound,
	KindNotScormPackage:        ErrNotScormPackage,
	KindLoadCancelled:          ErrLoadCancelled,
	KindInvalidStateTransition: ErrInvalidStateTransition,
	KindCompletionWriteFailed:  ErrCompletionWriteFailed,
}

// LoadError provides structured error information with context
type LoadError struct {
	Kind     Kind   // Failure classification
	Op       string // Operation that failed (e.g., "open_archive", "parse_manifest")
	CourseID string // Related course if known
	Path     string // Archive path involved, if any
	Err      error  // Underlying error
}

// Error implements the error interface
func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s in %s", sentinels[e.Kind], e.Op)
	if e.CourseID != "" {
		msg += " for course " + e.CourseID
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's Kind as well as anything it wraps
func (e *LoadError) Is(target error) bool {
	return target == sentinels[e.Kind]
}

// New creates a LoadError of the given kind
func New(kind Kind, op string, err error) *LoadError {
	return &LoadError{Kind: kind, Op: op, Err: err}
}

// WithCourse adds course context to the error
func (e *LoadError) WithCourse(courseID string) *LoadError {
	e.CourseID = courseID
	return e
}

// WithPath adds the archive path to the error
func (e *LoadError) WithPath(path string) *LoadError {
	e.Path = path
	return e
}

// KindOf extracts the Kind of err, or "" when err is not part of the taxonomy
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// IsLoadFailure reports whether err aborted a load and should be shown as
// "could not load content"
func IsLoadFailure(err error) bool {
	switch KindOf(err) {
	case KindCorruptArchive, KindEntryNotFound, KindManifestMissing, KindManifestMalformed,
		KindNoLaunchableResource, KindLaunchFileMissing, KindNotScormPackage:
		return true
	}
	return false
}
