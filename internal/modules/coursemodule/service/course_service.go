// Package service implements the course module's business logic and the
// package store consumed by the SCORM module.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/core/repository"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/models"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/archive"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/manifest"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
	"github.com/mantonx/scormbridge/internal/services"
	"github.com/mantonx/scormbridge/internal/utils"
)

// EventSource identifies events published by the course module
const EventSource = "system.courses"

var (
	// ErrEmptyPackage is returned for an upload without content
	ErrEmptyPackage = errors.New("package is empty")
	// ErrPackageTooLarge is returned for an upload over the size limit
	ErrPackageTooLarge = errors.New("package exceeds size limit")
	// ErrInvalidCourse is returned for a course request that fails validation
	ErrInvalidCourse = errors.New("invalid course")
)

// CourseService manages courses and their packages
type CourseService struct {
	repo           *repository.Repository
	bus            events.EventBus
	maxPackageSize int64
	logger         hclog.Logger
}

var _ services.PackageStore = (*CourseService)(nil)

// NewCourseService creates a course service. bus may be nil; a non-positive
// maxPackageSize disables the size check.
func NewCourseService(repo *repository.Repository, bus events.EventBus, maxPackageSize int64, logger hclog.Logger) *CourseService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CourseService{
		repo:           repo,
		bus:            bus,
		maxPackageSize: maxPackageSize,
		logger:         logger.Named("courses"),
	}
}

// MaxPackageSize returns the upload limit in bytes
func (s *CourseService) MaxPackageSize() int64 {
	return s.maxPackageSize
}

// CreateCourse creates a course with its module ids in the given order
func (s *CourseService) CreateCourse(ctx context.Context, req models.CreateCourseRequest) (*models.Course, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidCourse)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = utils.GenerateUUID()
	}

	course := &models.Course{ID: id, Title: title}
	seen := make(map[string]bool, len(req.ModuleIDs))
	for _, moduleID := range req.ModuleIDs {
		moduleID = strings.TrimSpace(moduleID)
		if moduleID == "" {
			return nil, fmt.Errorf("%w: empty module id", ErrInvalidCourse)
		}
		if seen[moduleID] {
			return nil, fmt.Errorf("%w: duplicate module id %q", ErrInvalidCourse, moduleID)
		}
		seen[moduleID] = true
		course.Modules = append(course.Modules, models.CourseModule{
			ModuleID: moduleID,
			Position: len(course.Modules),
		})
	}

	if err := s.repo.CreateCourse(ctx, course); err != nil {
		return nil, err
	}

	s.logger.Info("course created", "course_id", course.ID, "modules", len(course.Modules))
	s.publish(events.EventCourseCreated, "Course created", course.Title, map[string]interface{}{
		"course_id": course.ID,
		"modules":   len(course.Modules),
	})
	return course, nil
}

// EnsureCourse creates a course without modules unless it already exists
func (s *CourseService) EnsureCourse(ctx context.Context, id, title string) error {
	exists, err := s.repo.CourseExists(ctx, id)
	if err != nil || exists {
		return err
	}
	_, err = s.CreateCourse(ctx, models.CreateCourseRequest{ID: id, Title: title})
	if errors.Is(err, repository.ErrCourseExists) {
		return nil
	}
	return err
}

// GetCourse returns a course with its modules and package metadata
func (s *CourseService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	return s.repo.GetCourse(ctx, id)
}

// StorePackage validates and stores the package of a course, replacing any
// earlier upload. A zip archive with imsmanifest.xml at its root is flagged
// as SCORM; anything else is stored but cannot be launched.
func (s *CourseService) StorePackage(ctx context.Context, courseID, fileName string, data []byte) (*models.CoursePackage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPackage
	}
	if s.maxPackageSize > 0 && int64(len(data)) > s.maxPackageSize {
		return nil, ErrPackageTooLarge
	}

	exists, err := s.repo.CourseExists(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrCourseNotFound
	}

	contentType := mimetype.Detect(data)
	pkg := &models.CoursePackage{
		CourseID:    courseID,
		FileName:    fileName,
		ContentType: contentType.String(),
		IsScorm:     isScormPackage(contentType, data),
		Size:        int64(len(data)),
		Digest:      utils.ContentDigest(data),
		Data:        data,
	}
	if err := s.repo.SavePackage(ctx, pkg); err != nil {
		return nil, err
	}

	s.logger.Info("package stored",
		"course_id", courseID,
		"file_name", fileName,
		"size", pkg.Size,
		"is_scorm", pkg.IsScorm,
		"digest", pkg.Digest)
	s.publish(events.EventCoursePackageStored, "Package stored", fileName, map[string]interface{}{
		"course_id": courseID,
		"size":      pkg.Size,
		"is_scorm":  pkg.IsScorm,
		"digest":    pkg.Digest,
	})

	pkg.Data = nil
	return pkg, nil
}

func isScormPackage(contentType *mimetype.MIME, data []byte) bool {
	// jar, docx and friends sniff as zip subtypes
	zipped := false
	for m := contentType; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			zipped = true
			break
		}
	}
	if !zipped {
		return false
	}
	a, err := archive.Open(data)
	if err != nil {
		return false
	}
	return a.Has(manifest.FileName)
}

// GetPackage returns the stored package of a course for launching
func (s *CourseService) GetPackage(ctx context.Context, courseID string) (*services.Package, error) {
	pkg, err := s.repo.GetPackage(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrPackageNotFound) {
			return nil, scormerrors.New(scormerrors.KindPackageNotFound, "get_package", err).WithCourse(courseID)
		}
		return nil, err
	}

	moduleIDs, err := s.repo.ModuleIDs(ctx, courseID)
	if err != nil {
		return nil, err
	}

	return &services.Package{
		CourseID:  courseID,
		IsScorm:   pkg.IsScorm,
		Data:      pkg.Data,
		ModuleIDs: moduleIDs,
		Digest:    pkg.Digest,
	}, nil
}

// RecordCompletion marks a module of a course complete for a learner.
// Recording the same completion again is a no-op.
func (s *CourseService) RecordCompletion(ctx context.Context, learnerID, courseID, moduleID string) error {
	if learnerID == "" || courseID == "" {
		return fmt.Errorf("learner id and course id are required")
	}

	created, err := s.repo.RecordCompletion(ctx, &models.ModuleCompletion{
		LearnerID:   learnerID,
		CourseID:    courseID,
		ModuleID:    moduleID,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	s.logger.Debug("completion stored",
		"learner_id", learnerID,
		"course_id", courseID,
		"module_id", moduleID,
		"created", created)
	return nil
}

// ListCompletions returns the completions of a course, optionally filtered by learner
func (s *CourseService) ListCompletions(ctx context.Context, courseID, learnerID string) ([]models.ModuleCompletion, error) {
	exists, err := s.repo.CourseExists(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrCourseNotFound
	}
	return s.repo.ListCompletions(ctx, courseID, learnerID)
}

func (s *CourseService) publish(eventType events.EventType, title, message string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishAsync(events.NewModuleEvent(eventType, EventSource, title, message, data)); err != nil {
		s.logger.Debug("event not published", "type", eventType, "error", err)
	}
}
