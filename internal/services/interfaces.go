package services

import (
	"context"
)

// Service names used with RegisterService / GetService
const (
	PackageStoreService = "package_store"
)

// Package is one course's content package as handed to the SCORM loader.
// Data is shared and must be treated as read-only.
type Package struct {
	CourseID  string
	IsScorm   bool
	Data      []byte
	ModuleIDs []string
	Digest    string
}

// PackageStore supplies package bytes and receives completion writes.
type PackageStore interface {
	// GetPackage returns the stored package of a course
	GetPackage(ctx context.Context, courseID string) (*Package, error)

	// RecordCompletion marks one learning unit of a course complete for a learner.
	// An empty moduleID records completion of the course as a whole.
	RecordCompletion(ctx context.Context, learnerID, courseID, moduleID string) error
}
