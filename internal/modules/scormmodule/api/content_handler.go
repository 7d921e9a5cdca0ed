package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/mantonx/scormbridge/internal/errors"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/launch"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
)

// ServeContent handles GET /api/scorm/content/:handleId/*filepath
//
// The launch entry comes from the handle's eager copy; any other path is read
// from the package on demand so relative assets of the SCO resolve.
func (h *Handler) ServeContent(c *gin.Context) {
	handleID := c.Param("handleId")
	filePath := strings.TrimPrefix(c.Param("filepath"), "/")

	handle, ok := h.service.Handle(handleID)
	if !ok {
		apperrors.HandleNotFound(c, "content", handleID)
		return
	}

	data, contentType, err := handle.Open(filePath)
	if err != nil {
		if errors.Is(err, launch.ErrHandleRevoked) || scormerrors.KindOf(err) == scormerrors.KindEntryNotFound {
			apperrors.HandleNotFound(c, "content", handleID+"/"+filePath)
			return
		}
		h.logger.Warn("failed to read package entry", "handle_id", handleID, "path", filePath, "error", err)
		apperrors.NewContentLoadError(string(scormerrors.KindOf(err)), err).ToGinResponse(c)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Content-Type-Options", "nosniff")
	if filePath == "" || filePath == handle.EntryPath {
		c.Header("ETag", `"`+handle.Digest+`"`)
	}
	c.Data(http.StatusOK, contentType, data)
}
