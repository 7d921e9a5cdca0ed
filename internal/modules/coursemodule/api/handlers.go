// Package api provides the HTTP surface of the course module.
package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	apperrors "github.com/mantonx/scormbridge/internal/errors"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/core/repository"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/models"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/service"
)

// PackageFormField is the multipart field carrying an uploaded package
const PackageFormField = "package"

// Handler serves the course routes
type Handler struct {
	service *service.CourseService
	logger  hclog.Logger
}

// NewHandler creates a course handler
func NewHandler(svc *service.CourseService, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{service: svc, logger: logger.Named("course-api")}
}

// CreateCourse handles POST /api/courses
func (h *Handler) CreateCourse(c *gin.Context) {
	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, "title is required", "body")
		return
	}

	course, err := h.service.CreateCourse(c.Request.Context(), req)
	if err != nil {
		h.courseError(c, req.ID, err)
		return
	}

	c.JSON(http.StatusCreated, course)
}

// GetCourse handles GET /api/courses/:id
func (h *Handler) GetCourse(c *gin.Context) {
	id, ok := apperrors.RequireParam(c, "id")
	if !ok {
		return
	}

	course, err := h.service.GetCourse(c.Request.Context(), id)
	if err != nil {
		h.courseError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// UploadPackage handles PUT /api/courses/:id/package. The package is read
// from the "package" multipart field or, for any other content type, from the
// raw request body.
func (h *Handler) UploadPackage(c *gin.Context) {
	id, ok := apperrors.RequireParam(c, "id")
	if !ok {
		return
	}

	limit := h.service.MaxPackageSize()
	if limit > 0 {
		// Multipart framing needs some headroom over the payload itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}

	fileName, data, err := readPackage(c)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apperrors.NewTooLargeError(limit).ToGinResponse(c)
			return
		}
		apperrors.HandleValidationError(c, err.Error(), PackageFormField)
		return
	}
	if fileName == "" {
		fileName = id + ".zip"
	}

	pkg, err := h.service.StorePackage(c.Request.Context(), id, fileName, data)
	if err != nil {
		h.courseError(c, id, err)
		return
	}

	h.logger.Debug("package uploaded", "course_id", id, "size", pkg.Size)
	c.JSON(http.StatusOK, pkg)
}

// ListCompletions handles GET /api/courses/:id/completions?learner_id=
func (h *Handler) ListCompletions(c *gin.Context) {
	id, ok := apperrors.RequireParam(c, "id")
	if !ok {
		return
	}

	completions, err := h.service.ListCompletions(c.Request.Context(), id, c.Query("learner_id"))
	if err != nil {
		h.courseError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"course_id":   id,
		"completions": completions,
		"count":       len(completions),
	})
}

func readPackage(c *gin.Context) (string, []byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile(PackageFormField)
		if err != nil {
			return "", nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return filepath.Base(fh.Filename), data, err
	}

	data, err := io.ReadAll(c.Request.Body)
	return c.Query("file_name"), data, err
}

func (h *Handler) courseError(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrCourseNotFound):
		apperrors.HandleNotFound(c, "course", id)
	case errors.Is(err, repository.ErrCourseExists):
		apperrors.NewConflictError("course already exists", err).ToGinResponse(c)
	case errors.Is(err, service.ErrInvalidCourse), errors.Is(err, service.ErrEmptyPackage):
		apperrors.HandleValidationError(c, err.Error(), "body")
	case errors.Is(err, service.ErrPackageTooLarge):
		apperrors.NewTooLargeError(h.service.MaxPackageSize()).ToGinResponse(c)
	default:
		apperrors.HandleDatabaseError(c, "course", err)
	}
}
