package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/apiroutes"
	"github.com/mantonx/scormbridge/internal/database"
	"github.com/mantonx/scormbridge/internal/modules/modulemanager"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// handleAPIRoot lists every registered endpoint
func handleAPIRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":   "scormbridge",
		"routes": apiroutes.Get(),
	})
}

// handleHealthCheck reports database, event bus and module health together
// with process resource usage. Any unhealthy component answers 503.
func handleHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	body := gin.H{
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	}

	if db := database.GetDB(); db == nil {
		healthy = false
		body["database"] = "not initialized"
	} else if sqlDB, err := db.DB(); err != nil {
		healthy = false
		body["database"] = err.Error()
	} else if err := sqlDB.PingContext(ctx); err != nil {
		healthy = false
		body["database"] = err.Error()
	} else {
		body["database"] = "ok"
	}

	if systemEventBus == nil {
		body["events"] = "not initialized"
	} else if err := systemEventBus.Health(); err != nil {
		healthy = false
		body["events"] = err.Error()
	} else {
		body["events"] = systemEventBus.GetStats()
	}

	modules := modulemanager.HealthCheck(ctx)
	for _, status := range modules {
		if status.Status == modulemanager.HealthStateUnhealthy {
			healthy = false
		}
	}
	body["modules"] = modules
	body["resources"] = resourceUsage(ctx)

	status := http.StatusOK
	body["status"] = "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
	}
	c.JSON(status, body)
}

// resourceUsage samples memory of this process and of the host. Failures
// leave the field out; they never affect the health verdict.
func resourceUsage(ctx context.Context) gin.H {
	usage := gin.H{}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			usage["process_rss_bytes"] = info.RSS
		}
		if n, err := proc.NumThreadsWithContext(ctx); err == nil {
			usage["process_threads"] = n
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		usage["host_memory_used_percent"] = vm.UsedPercent
		usage["host_memory_available_bytes"] = vm.Available
	}
	return usage
}
