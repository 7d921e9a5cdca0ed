package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/logger"
)

// AppError represents a structured error with HTTP context
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ToGinResponse sends the error as a standardized JSON response
func (e *AppError) ToGinResponse(c *gin.Context) {
	statusCode := e.HTTPStatus
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	response := gin.H{
		"error": e.Message,
		"code":  e.Code,
	}

	if len(e.Context) > 0 {
		response["details"] = e.Context
	}

	args := []interface{}{
		"status", statusCode,
		"code", e.Code,
		"message", e.Message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	}
	if e.Cause != nil {
		args = append(args, "error", e.Cause)
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("HTTP error response", args...)
	} else {
		logger.Debug("HTTP error response", args...)
	}

	c.AbortWithStatusJSON(statusCode, response)
}

// Common error constructors
func NewValidationError(message string, field string) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

func NewNotFoundError(resource string, id string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"resource": resource, "id": id},
	}
}

func NewConflictError(message string, cause error) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Cause:      cause,
	}
}

func NewTooLargeError(limit int64) *AppError {
	return &AppError{
		Code:       "PAYLOAD_TOO_LARGE",
		Message:    "Upload exceeds the size limit",
		HTTPStatus: http.StatusRequestEntityTooLarge,
		Context:    map[string]interface{}{"limit": limit},
	}
}

// NewContentLoadError is the single user-facing failure for any load-time
// problem. reason keeps the specific cause for diagnostics.
func NewContentLoadError(reason string, cause error) *AppError {
	return &AppError{
		Code:       "CONTENT_LOAD_FAILED",
		Message:    "could not load content",
		HTTPStatus: http.StatusUnprocessableEntity,
		Context:    map[string]interface{}{"reason": reason},
		Cause:      cause,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewDatabaseError(operation string, cause error) *AppError {
	return &AppError{
		Code:       "DATABASE_ERROR",
		Message:    "Database operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]interface{}{"operation": operation},
		Cause:      cause,
	}
}

// HTTP helpers to eliminate duplicate error handling

// HandleValidationError sends a validation error response
func HandleValidationError(c *gin.Context, message string, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

// HandleNotFound sends a not found error response
func HandleNotFound(c *gin.Context, resource string, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}

// HandleInternalError sends an internal server error response
func HandleInternalError(c *gin.Context, message string, err error) {
	NewInternalError(message, err).ToGinResponse(c)
}

// HandleDatabaseError sends a database error response
func HandleDatabaseError(c *gin.Context, operation string, err error) {
	NewDatabaseError(operation, err).ToGinResponse(c)
}

// RequireParam reads a non-empty path parameter
func RequireParam(c *gin.Context, paramName string) (string, bool) {
	value := c.Param(paramName)
	if value == "" {
		HandleValidationError(c, "Missing "+paramName, paramName)
		return "", false
	}
	return value, true
}
