package api

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"practicehub/services"
)

// MonitorController process and connection statistics
type MonitorController struct {
	WSManager    *services.WebSocketManager
	KafkaService *services.KafkaService // nil when running without a broker
	Boards       *services.BoardManager
}

// NewMonitorController creates the monitor controller
func NewMonitorController(wsManager *services.WebSocketManager, kafkaService *services.KafkaService, boards *services.BoardManager) *MonitorController {
	return &MonitorController{
		WSManager:    wsManager,
		KafkaService: kafkaService,
		Boards:       boards,
	}
}

// GetSystemStatus memory, goroutines, boards and Kafka counters
func (c *MonitorController) GetSystemStatus(ctx *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := gin.H{
		"connections": c.WSManager.GetConnectionCount(),
		"boards":      c.Boards.Count(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc":       m.Alloc / 1024 / 1024,      // MB
			"total_alloc": m.TotalAlloc / 1024 / 1024, // MB
			"sys":         m.Sys / 1024 / 1024,        // MB
			"num_gc":      m.NumGC,
		},
	}
	if c.KafkaService != nil {
		status["kafka"] = c.KafkaService.GetMetrics()
	}
	ctx.JSON(http.StatusOK, status)
}

// GetConnectionStats open websocket connections
func (c *MonitorController) GetConnectionStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"connections":     c.WSManager.GetConnectionCount(),
		"by_organization": c.WSManager.OrgConnectionCounts(),
	})
}
