package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/apiroutes"
)

// Route prefixes
const (
	ViewsPath   = "/api/scorm/views"
	ContentPath = "/api/scorm/content"
)

// RegisterRoutes registers the SCORM routes.
//
//	/api/scorm/views/:viewId
//	├── POST   /launch              - run the load pipeline
//	├── GET                         - inspect the view
//	├── DELETE                      - tear the view down
//	├── POST   /rte/:api/:method    - synchronous RTE call
//	├── GET    /rte.js              - binding shim
//	└── GET    /notices             - websocket notices
//
//	/api/scorm/content/:handleId/*filepath
func RegisterRoutes(router *gin.Engine, handler *Handler) {
	views := router.Group(ViewsPath)
	{
		views.POST("/:viewId/launch", handler.Launch)
		views.GET("/:viewId", handler.Inspect)
		views.DELETE("/:viewId", handler.Teardown)
		views.POST("/:viewId/rte/:api/:method", handler.Call)
		views.GET("/:viewId/rte.js", handler.Shim)
		views.GET("/:viewId/notices", handler.Notices)
	}

	content := router.Group(ContentPath)
	{
		content.GET("/:handleId/*filepath", handler.ServeContent)
		content.HEAD("/:handleId/*filepath", handler.ServeContent)
	}

	apiroutes.Register(ViewsPath+"/:viewId/launch", "POST", "Load a course package into a view")
	apiroutes.Register(ViewsPath+"/:viewId", "GET", "Inspect the session of a view")
	apiroutes.Register(ViewsPath+"/:viewId", "DELETE", "Tear down a view")
	apiroutes.Register(ViewsPath+"/:viewId/rte/:api/:method", "POST", "Call the SCORM run-time API")
	apiroutes.Register(ViewsPath+"/:viewId/rte.js", "GET", "Script installing API and API_1484_11")
	apiroutes.Register(ViewsPath+"/:viewId/notices", "GET", "Websocket stream of view notices")
	apiroutes.Register(ContentPath+"/:handleId/*filepath", "GET", "Serve launched package content")
}
