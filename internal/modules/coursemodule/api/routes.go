package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/apiroutes"
)

// CoursesPath is the route prefix of the course API
const CoursesPath = "/api/courses"

// RegisterRoutes registers the course routes.
//
//	/api/courses
//	├── POST                      - create a course
//	├── GET    /:id               - course with modules and package metadata
//	├── PUT    /:id/package       - upload or replace the package
//	└── GET    /:id/completions   - recorded module completions
func RegisterRoutes(router *gin.Engine, handler *Handler) {
	courses := router.Group(CoursesPath)
	{
		courses.POST("", handler.CreateCourse)
		courses.GET("/:id", handler.GetCourse)
		courses.PUT("/:id/package", handler.UploadPackage)
		courses.GET("/:id/completions", handler.ListCompletions)
	}

	apiroutes.Register(CoursesPath, "POST", "Create a course")
	apiroutes.Register(CoursesPath+"/:id", "GET", "Get a course with its modules and package")
	apiroutes.Register(CoursesPath+"/:id/package", "PUT", "Upload the course package")
	apiroutes.Register(CoursesPath+"/:id/completions", "GET", "List module completions, optionally for one learner")
}
