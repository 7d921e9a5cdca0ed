// Package models provides database models for the course module
package models

import (
	"time"
)

// Course is a unit of learning content with an optional uploaded package
type Course struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title     string         `gorm:"not null" json:"title"`
	Modules   []CourseModule `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"modules"`
	Package   *CoursePackage `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"package,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CourseModule is one learning unit of a course. Completing the course's
// package marks every module complete.
type CourseModule struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	CourseID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_course_module" json:"-"`
	ModuleID string `gorm:"not null;uniqueIndex:idx_course_module" json:"module_id"`
	Title    string `json:"title,omitempty"`
	Position int    `gorm:"not null" json:"position"`
}

// CoursePackage holds the uploaded package bytes of a course
type CoursePackage struct {
	CourseID    string    `gorm:"type:varchar(36);primaryKey" json:"course_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	IsScorm     bool      `gorm:"not null" json:"is_scorm"`
	Size        int64     `gorm:"not null" json:"size"`
	Digest      string    `gorm:"type:varchar(64);index" json:"digest"`
	Data        []byte    `gorm:"not null" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ModuleCompletion records that a learner completed one module of a course.
// An empty ModuleID marks completion of the course as a whole.
type ModuleCompletion struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	LearnerID   string    `gorm:"not null;uniqueIndex:idx_completion" json:"learner_id"`
	CourseID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_completion;index" json:"course_id"`
	ModuleID    string    `gorm:"not null;uniqueIndex:idx_completion" json:"module_id"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
}

// CreateCourseRequest is the body of POST /api/courses
type CreateCourseRequest struct {
	ID        string   `json:"id" binding:"omitempty,max=36"`
	Title     string   `json:"title" binding:"required"`
	ModuleIDs []string `json:"module_ids"`
}

// All lists the models migrated by the course module
func All() []interface{} {
	return []interface{}{
		&Course{},
		&CourseModule{},
		&CoursePackage{},
		&ModuleCompletion{},
	}
}
