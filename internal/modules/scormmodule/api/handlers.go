// Package api provides the HTTP surface of the SCORM module: launching
// content into a view, the synchronous RTE endpoint used by the JavaScript
// shim, content serving and per-view notices.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	apperrors "github.com/mantonx/scormbridge/internal/errors"
	"github.com/mantonx/scormbridge/internal/events"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/bridge"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/types"
)

// Handler serves the SCORM routes
type Handler struct {
	service  types.RuntimeService
	bus      events.EventBus
	logger   hclog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. bus may be nil, which disables notices.
func NewHandler(service types.RuntimeService, bus events.EventBus, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		service: service,
		bus:     bus,
		logger:  logger.Named("scorm-api"),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true // views are embedded by the host UI on its own origin
			},
		},
	}
}

// Launch handles POST /api/scorm/views/:viewId/launch
//
// Request body:
//
//	{"course_id": "...", "learner_id": "...", "learner_name": "..."}
//
// Any load-time failure answers 422 "could not load content" with the
// specific reason under details.reason.
func (h *Handler) Launch(c *gin.Context) {
	viewID, ok := apperrors.RequireParam(c, "viewId")
	if !ok {
		return
	}

	var req types.LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, "course_id and learner_id are required", "body")
		return
	}
	req.ViewID = viewID

	result, err := h.service.Load(c.Request.Context(), req)
	if err != nil {
		loadError(req.CourseID, err).ToGinResponse(c)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Inspect handles GET /api/scorm/views/:viewId
func (h *Handler) Inspect(c *gin.Context) {
	viewID, ok := apperrors.RequireParam(c, "viewId")
	if !ok {
		return
	}

	info, found := h.service.Inspect(viewID)
	if !found {
		apperrors.HandleNotFound(c, "view", viewID)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Teardown handles DELETE /api/scorm/views/:viewId
func (h *Handler) Teardown(c *gin.Context) {
	viewID, ok := apperrors.RequireParam(c, "viewId")
	if !ok {
		return
	}

	if !h.service.Teardown(viewID) {
		apperrors.HandleNotFound(c, "view", viewID)
		return
	}
	c.Status(http.StatusNoContent)
}

type rteRequest struct {
	Args []string `json:"args"`
}

// Call handles POST /api/scorm/views/:viewId/rte/:api/:method
//
// The body is optional; missing arguments are passed as empty strings.
// The response is always {"result": "..."} for a bound session.
func (h *Handler) Call(c *gin.Context) {
	viewID := c.Param("viewId")
	apiName := c.Param("api")
	method := c.Param("method")

	var req rteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleValidationError(c, "args must be an array of strings", "args")
			return
		}
	}

	result, err := h.service.Invoke(viewID, apiName, method, req.Args)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"result": result})
	case errors.Is(err, types.ErrNoSession):
		apperrors.HandleNotFound(c, "session", viewID)
	case errors.Is(err, bridge.ErrUnknownAPI), errors.Is(err, bridge.ErrUnknownMethod):
		apperrors.HandleValidationError(c, err.Error(), "method")
	default:
		apperrors.HandleInternalError(c, "RTE call failed", err)
	}
}

// loadError maps a load failure onto the HTTP error envelope
func loadError(courseID string, err error) *apperrors.AppError {
	kind := scormerrors.KindOf(err)
	switch {
	case kind == scormerrors.KindPackageNotFound:
		return apperrors.NewNotFoundError("course package", courseID)
	case kind == scormerrors.KindLoadCancelled:
		return apperrors.NewConflictError("load superseded or view closed", err)
	case scormerrors.IsLoadFailure(err):
		return apperrors.NewContentLoadError(string(kind), err)
	default:
		return apperrors.NewInternalError("failed to load content", err)
	}
}
