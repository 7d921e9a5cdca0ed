package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestHealthAndRouteListing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	previous := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = previous })

	r := gin.New()
	setupRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "ok", health["database"])
	assert.Contains(t, health, "modules")
	assert.Contains(t, health, "resources")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Routes []struct {
			Path   string `json:"path"`
			Method string `json:"method"`
		} `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	paths := make([]string, 0, len(listing.Routes))
	for _, route := range listing.Routes {
		paths = append(paths, route.Path)
	}
	assert.Contains(t, paths, "/api/health")
}

func TestHealthWithoutDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)

	previous := database.DB
	database.DB = nil
	t.Cleanup(func() { database.DB = previous })

	r := gin.New()
	r.GET("/api/health", handleHealthCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
