// Package repository provides the data access layer for courses, packages
// and completions
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mantonx/scormbridge/internal/modules/coursemodule/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCourseNotFound is returned when no course has the requested id
	ErrCourseNotFound = errors.New("course not found")
	// ErrPackageNotFound is returned when a course has no uploaded package
	ErrPackageNotFound = errors.New("course package not found")
	// ErrCourseExists is returned when creating a course whose id is taken
	ErrCourseExists = errors.New("course already exists")
)

// packageMetaColumns excludes the package bytes
var packageMetaColumns = []string{
	"course_id", "file_name", "content_type", "is_scorm", "size", "digest", "created_at", "updated_at",
}

// Repository handles all database operations of the course module
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateCourse inserts a course together with its modules
func (r *Repository) CreateCourse(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Course{}).Where("id = ?", course.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check course: %w", err)
		}
		if count > 0 {
			return ErrCourseExists
		}
		if err := tx.Create(course).Error; err != nil {
			return fmt.Errorf("failed to create course: %w", err)
		}
		return nil
	})
}

// GetCourse loads a course with its modules and package metadata
func (r *Repository) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Package", func(db *gorm.DB) *gorm.DB {
			return db.Select(packageMetaColumns)
		}).
		Where("id = ?", id).
		First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}

// CourseExists reports whether a course with id exists
func (r *Repository) CourseExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Course{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check course: %w", err)
	}
	return count > 0, nil
}

// SavePackage inserts or replaces the package of a course
func (r *Repository) SavePackage(ctx context.Context, pkg *models.CoursePackage) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_name", "content_type", "is_scorm", "size", "digest", "data", "updated_at"}),
	}).Create(pkg).Error
	if err != nil {
		return fmt.Errorf("failed to save package: %w", err)
	}
	return nil
}

// GetPackage loads the package of a course including its bytes
func (r *Repository) GetPackage(ctx context.Context, courseID string) (*models.CoursePackage, error) {
	var pkg models.CoursePackage
	if err := r.db.WithContext(ctx).Where("course_id = ?", courseID).First(&pkg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return &pkg, nil
}

// ModuleIDs returns the module ids of a course in position order
func (r *Repository) ModuleIDs(ctx context.Context, courseID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.CourseModule{}).
		Where("course_id = ?", courseID).
		Order("position ASC").
		Pluck("module_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list course modules: %w", err)
	}
	return ids, nil
}

// RecordCompletion inserts a completion row. An existing row for the same
// learner, course and module is kept; created reports whether a row was added.
func (r *Repository) RecordCompletion(ctx context.Context, c *models.ModuleCompletion) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "learner_id"}, {Name: "course_id"}, {Name: "module_id"}},
		DoNothing: true,
	}).Create(c)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record completion: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListCompletions returns completions of a course, optionally for one learner
func (r *Repository) ListCompletions(ctx context.Context, courseID, learnerID string) ([]models.ModuleCompletion, error) {
	query := r.db.WithContext(ctx).Where("course_id = ?", courseID)
	if learnerID != "" {
		query = query.Where("learner_id = ?", learnerID)
	}

	var completions []models.ModuleCompletion
	if err := query.Order("completed_at ASC, id ASC").Find(&completions).Error; err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return completions, nil
}
