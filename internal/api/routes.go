// Package api exposes the ingestion, read, admin and streaming surface over
// gin. Handlers validate and translate; every decision that matters lives in
// the analysis, pipeline and db packages.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/alert"
	"github.com/oceanguard/hazard-engine/internal/broadcast"
	"github.com/oceanguard/hazard-engine/internal/db"
	"github.com/oceanguard/hazard-engine/internal/pipeline"
	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Store is the persistence surface the handlers need. *db.PostgresStore
// implements it; handler tests substitute a stub.
type Store interface {
	InsertReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id int64) (models.Report, error)
	ListReports(ctx context.Context, f db.ReportFilter) ([]models.Report, int, error)
	ListGroupReports(ctx context.Context, groupID int64) ([]models.Report, error)
	CountUnprocessed(ctx context.Context) (int, error)
	GetEvent(ctx context.Context, id int64) (models.HazardEvent, error)
	GetEventByGroup(ctx context.Context, groupID int64) (models.HazardEvent, error)
	ListEvents(ctx context.Context, f db.EventFilter) ([]models.HazardEvent, int, error)
	ValidateEvent(ctx context.Context, id int64, status models.EventStatus) (models.HazardEvent, error)
	InsertBulletin(ctx context.Context, b *models.Bulletin) error
	ListBulletins(ctx context.Context, limit int) ([]models.Bulletin, error)
	BulletinsInWindow(ctx context.Context, ref time.Time) ([]models.Bulletin, error)
	Stats(ctx context.Context) (db.SystemStats, error)
	GroupSummaries(ctx context.Context, limit int) ([]db.GroupSummary, error)
}

// Ingestor is the pipeline surface the handlers need.
type Ingestor interface {
	Enqueue(id int64)
	FastTrack(ctx context.Context, r *models.Report) (models.HazardEvent, error)
	Snapshot() pipeline.Stats
}

type APIHandler struct {
	store    Store
	pipeline Ingestor
	hub      *broadcast.Hub
	alerts   *alert.Manager
}

// SetupRouter builds the gin engine: CORS per allowedOrigins, rate-limited
// ingestion routes, the read surface, the event stream and the operational
// endpoints.
func SetupRouter(store Store, pipe Ingestor, hub *broadcast.Hub, alerts *alert.Manager, allowedOrigins string, rateLimitRPM int) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	// CORS. Production: ALLOWED_ORIGINS=https://dashboard.example.org
	// Development: leave empty for *.
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	handler := &APIHandler{store: store, pipeline: pipe, hub: hub, alerts: alerts}
	limiter := NewRateLimiter(rateLimitRPM, rateLimitRPM)

	api := r.Group("/api/v1")
	{
		api.POST("/reports", limiter.Middleware(), handler.handleSubmitReport)
		api.POST("/emergency", limiter.Middleware(), handler.handleSubmitEmergency)
		api.POST("/bulletins", limiter.Middleware(), handler.handleSubmitBulletin)

		api.GET("/reports", handler.handleListReports)
		api.GET("/reports/:id", handler.handleGetReport)
		api.GET("/hazards", handler.handleListHazards)
		api.GET("/hazards/:id", handler.handleGetHazard)
		api.POST("/hazards/:id/validate", handler.handleValidateHazard)
		api.GET("/bulletins", handler.handleListBulletins)
		api.GET("/alerts", handler.handleListAlerts)

		api.GET("/stats", handler.handleStats)
		api.GET("/stats/pipeline", handler.handlePipelineStats)
		api.GET("/stats/groups", handler.handleGroupStats)

		api.GET("/stream", handler.handleStream)
		api.GET("/ws", handler.handleWebSocket)
		api.GET("/health", handler.handleHealth)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// requestLogger traces requests at debug level; the access log is opt-in via
// the log level rather than a separate middleware stack.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}

// handleHealth returns engine status and capabilities for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "OceanGuard Hazard Engine v1.0",
		"capabilities": gin.H{
			"keyword_classifier":   true,
			"credibility_scoring":  true,
			"spatial_clustering":   true,
			"progressive_fusion":   true,
			"bulletin_correlation": true,
			"sse_stream":           true,
			"websocket_stream":     true,
			"webhook_alerts":       h.alerts != nil && h.alerts.WebhookConfigured(),
		},
		"subscribers": h.hub.SubscriberCount(),
		"queue_depth": h.pipeline.Snapshot().QueueDepth,
	})
}
