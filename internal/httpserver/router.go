package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habitsync/internal/handler"
	"habitsync/pkg/metrics"
	"habitsync/pkg/trace"
)

func NewRouter(habitHandler *handler.HabitHandler, logger *zap.Logger, rdb *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Trace id + request logging middleware.
	r.Use(func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))

		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("trace_id", traceID),
			zap.String("client_ip", c.ClientIP()),
		)
		metrics.RecordHTTPRequestDuration(c.Request.Method, c.FullPath(), strconv.Itoa(status), latency)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				c.JSON(500, gin.H{"status": "redis_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/habits", habitHandler.ListHabits)
	r.POST("/habits", habitHandler.CreateHabit)
	r.POST("/habits/sort", habitHandler.SortHabits)
	r.GET("/habits/:id", habitHandler.GetHabit)
	r.PUT("/habits/:id", habitHandler.EditHabit)
	r.DELETE("/habits/:id", habitHandler.DeleteHabit)
	r.POST("/habits/:id/toggle", habitHandler.ToggleEntry)
	r.POST("/habits/:id/months", habitHandler.AddHabitMonth)
	r.POST("/contact", habitHandler.SendContactMessage)

	return r
}
