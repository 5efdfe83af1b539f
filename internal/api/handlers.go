package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/analysis"
	"github.com/oceanguard/hazard-engine/internal/broadcast"
	"github.com/oceanguard/hazard-engine/internal/db"
	"github.com/oceanguard/hazard-engine/internal/metrics"
	"github.com/oceanguard/hazard-engine/pkg/models"
)

type submitReportRequest struct {
	Source           string   `json:"source" binding:"required"`
	Text             string   `json:"text"`
	Latitude         *float64 `json:"lat" binding:"required"`
	Longitude        *float64 `json:"lon" binding:"required"`
	Timestamp        string   `json:"timestamp"`
	MediaPaths       []string `json:"media_paths"`
	HasMedia         *bool    `json:"has_media"`
	MediaVerified    bool     `json:"media_verified"`
	DeclaredSeverity int      `json:"declared_severity"`
	UserID           string   `json:"user_id"`
	UserName         string   `json:"user_name"`
}

// handleSubmitReport stores a raw report and enqueues it for processing. The
// response returns as soon as the report is durable; classification artifacts
// arrive later on the event stream.
func (h *APIHandler) handleSubmitReport(c *gin.Context) {
	var req submitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	r := models.Report{
		Source:           models.ParseSourceKind(req.Source),
		Text:             req.Text,
		Latitude:         *req.Latitude,
		Longitude:        *req.Longitude,
		MediaPaths:       strings.Join(req.MediaPaths, ","),
		MediaVerified:    req.MediaVerified,
		UserID:           req.UserID,
		UserName:         req.UserName,
		DeclaredSeverity: req.DeclaredSeverity,
	}
	if !r.ValidCoordinates() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range: lat must be [-90, 90], lon [-180, 180]"})
		return
	}
	if req.DeclaredSeverity < 0 || req.DeclaredSeverity > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "declared_severity must be between 1 and 5"})
		return
	}

	r.HasMedia = len(req.MediaPaths) > 0
	if req.HasMedia != nil {
		r.HasMedia = *req.HasMedia
	}

	ts, ok := parseClientTimestamp(req.Timestamp)
	if !ok {
		log.Warn().Str("timestamp", req.Timestamp).Msg("unparseable report timestamp, substituting current time")
	}
	r.Timestamp = ts

	if err := h.store.InsertReport(c.Request.Context(), &r); err != nil {
		log.Error().Err(err).Msg("failed to store report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store report"})
		return
	}

	metrics.ReportsIngested.WithLabelValues(string(r.Source)).Inc()
	h.hub.Publish(broadcast.TopicNewReport, newReportPayload(r))
	h.pipeline.Enqueue(r.ID)

	c.JSON(http.StatusCreated, gin.H{
		"id":      r.ID,
		"status":  "received",
		"message": "Report submitted successfully and queued for processing",
	})
}

type submitEmergencyRequest struct {
	DeviceID       string   `json:"device_id" binding:"required"`
	Latitude       *float64 `json:"lat" binding:"required"`
	Longitude      *float64 `json:"lon" binding:"required"`
	BatteryLevel   *int     `json:"battery_level"`
	SignalStrength *int     `json:"signal_strength"`
}

// handleSubmitEmergency ingests a LoRa SOS beacon press through the fast
// path: the hazard event exists before the response goes out.
func (h *APIHandler) handleSubmitEmergency(c *gin.Context) {
	var req submitEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	r := models.Report{
		Source:    models.SourceLora,
		Text:      fmt.Sprintf("EMERGENCY SOS from LoRa device %s. Immediate assistance required!", req.DeviceID),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		UserID:    req.DeviceID,
	}
	if !r.ValidCoordinates() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range: lat must be [-90, 90], lon [-180, 180]"})
		return
	}

	event, err := h.pipeline.FastTrack(c.Request.Context(), &r)
	if err != nil {
		log.Error().Err(err).Str("device_id", req.DeviceID).Msg("emergency fast path failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process SOS"})
		return
	}

	metrics.ReportsIngested.WithLabelValues(string(models.SourceLora)).Inc()
	h.hub.Publish(broadcast.TopicNewReport, newReportPayload(r))

	entry := log.Warn().
		Str("device_id", req.DeviceID).
		Int64("report_id", r.ID).
		Int64("event_id", event.ID)
	if req.BatteryLevel != nil {
		entry = entry.Int("battery_level", *req.BatteryLevel)
	}
	if req.SignalStrength != nil {
		entry = entry.Int("signal_strength", *req.SignalStrength)
	}
	entry.Msg("emergency SOS received")

	c.JSON(http.StatusCreated, gin.H{
		"status":          "emergency_received",
		"report_id":       r.ID,
		"hazard_event_id": event.ID,
		"message":         fmt.Sprintf("Emergency SOS from device %s received and prioritized", req.DeviceID),
		"coordinates":     gin.H{"lat": r.Latitude, "lon": r.Longitude},
	})
}

func (h *APIHandler) handleListReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	filter := db.ReportFilter{Source: c.Query("source"), Page: page, Limit: limit}
	if v, ok := c.GetQuery("processed"); ok {
		processed := v == "true" || v == "1"
		filter.Processed = &processed
	}

	reports, total, err := h.store.ListReports(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to list reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       reports,
		"totalCount": total,
		"page":       page,
		"limit":      limit,
	})
}

func (h *APIHandler) handleGetReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report id"})
		return
	}

	r, err := h.store.GetReport(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("report_id", id).Msg("failed to load report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch report"})
		return
	}

	resp := gin.H{"report": r}
	if r.Processed && r.GroupID > 0 {
		if event, err := h.store.GetEventByGroup(c.Request.Context(), r.GroupID); err == nil {
			resp["hazard_event"] = event
		}
	}
	c.JSON(http.StatusOK, resp)
}

// hazardListItem decorates an event with its confidence band for list views.
type hazardListItem struct {
	models.HazardEvent
	ConfidenceLevel string `json:"confidence_level"`
}

func (h *APIHandler) handleListHazards(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.ValidEventStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter",
			"valid": []string{"pending", "review", "confirmed", "emergency", "approved", "rejected"},
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, total, err := h.store.ListEvents(c.Request.Context(), db.EventFilter{
		Status: status,
		Kind:   c.Query("kind"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to list hazard events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch hazard events"})
		return
	}

	items := make([]hazardListItem, 0, len(events))
	for i := range events {
		items = append(items, hazardListItem{
			HazardEvent:     events[i],
			ConfidenceLevel: events[i].ConfidenceLevel(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"totalCount": total,
		"page":       page,
		"limit":      limit,
	})
}

// handleGetHazard serves one event with parsed evidence, its source reports
// and the advisory bulletin correlation.
func (h *APIHandler) handleGetHazard(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hazard event id"})
		return
	}

	event, err := h.store.GetEvent(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hazard event not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("event_id", id).Msg("failed to load hazard event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch hazard event"})
		return
	}

	var evidence models.Evidence
	if len(event.Evidence) > 0 {
		if err := json.Unmarshal(event.Evidence, &evidence); err != nil {
			log.Warn().Err(err).Int64("event_id", event.ID).Msg("malformed evidence blob, serving empty evidence")
			evidence = models.Evidence{}
		}
	}
	event.Evidence = nil // parsed form below replaces the raw blob

	reports, err := h.store.ListGroupReports(c.Request.Context(), event.GroupID)
	if err != nil {
		log.Warn().Err(err).Int64("group_id", event.GroupID).Msg("failed to load group reports")
		reports = nil
	}

	bulletins, err := h.store.BulletinsInWindow(c.Request.Context(), event.CreatedAt)
	if err != nil {
		log.Warn().Err(err).Int64("event_id", event.ID).Msg("failed to load bulletins for correlation")
		bulletins = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"event":                event,
		"confidence_level":     event.ConfidenceLevel(),
		"evidence":             evidence,
		"reports":              reports,
		"bulletin_correlation": analysis.CorrelateBulletins(event.Kind, bulletins),
	})
}

type validateRequest struct {
	Status string `json:"status" binding:"required"`
}

// handleValidateHazard applies an administrator decision. Approved and
// rejected adjust confidence and pin the event against later fuses; any other
// valid status is set verbatim.
func (h *APIHandler) handleValidateHazard(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hazard event id"})
		return
	}

	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if !models.ValidEventStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
			"valid": []string{"pending", "review", "confirmed", "emergency", "approved", "rejected"},
		})
		return
	}

	status := models.EventStatus(req.Status)
	event, err := h.store.ValidateEvent(c.Request.Context(), id, status)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hazard event not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("event_id", id).Msg("failed to validate hazard event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate hazard event"})
		return
	}

	log.Info().
		Int64("event_id", event.ID).
		Str("status", string(event.Status)).
		Float64("confidence", event.Confidence).
		Msg("hazard event validated")

	h.hub.Publish(broadcast.TopicHazardValidated, gin.H{
		"hazard_id":          event.ID,
		"status":             event.Status,
		"confidence":         event.Confidence,
		"confidence_updated": status.Terminal(),
	})

	c.JSON(http.StatusOK, gin.H{
		"message":            "Hazard validated successfully",
		"hazard_id":          event.ID,
		"status":             event.Status,
		"confidence_updated": status.Terminal(),
	})
}

type submitBulletinRequest struct {
	HazardKind  string `json:"hazard_kind" binding:"required"`
	Severity    int    `json:"severity" binding:"required"`
	Description string `json:"description"`
	IssuedAt    string `json:"issued_at"`
}

func (h *APIHandler) handleSubmitBulletin(c *gin.Context) {
	var req submitBulletinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if !models.ValidHazardKind(strings.ToLower(req.HazardKind)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown hazard_kind"})
		return
	}
	if req.Severity < 1 || req.Severity > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be between 1 and 5"})
		return
	}

	issuedAt := time.Now().UTC()
	if strings.TrimSpace(req.IssuedAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.IssuedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "issued_at must be RFC 3339"})
			return
		}
		issuedAt = parsed.UTC()
	}

	b := models.Bulletin{
		HazardKind:  models.HazardKind(strings.ToLower(req.HazardKind)),
		Severity:    req.Severity,
		Description: req.Description,
		IssuedAt:    issuedAt,
	}
	if err := h.store.InsertBulletin(c.Request.Context(), &b); err != nil {
		log.Error().Err(err).Msg("failed to store bulletin")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store bulletin"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": b.ID, "status": "stored"})
}

func (h *APIHandler) handleListBulletins(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	bulletins, err := h.store.ListBulletins(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list bulletins")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bulletins"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bulletins, "count": len(bulletins)})
}

func (h *APIHandler) handleListAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	alerts := h.alerts.Recent(limit)
	if min, err := strconv.Atoi(c.Query("min_severity")); err == nil && min > 0 {
		alerts = h.alerts.BySeverity(min)
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts, "count": len(alerts)})
}

func (h *APIHandler) handleStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to compute stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *APIHandler) handlePipelineStats(c *gin.Context) {
	snap := h.pipeline.Snapshot()

	backlog, err := h.store.CountUnprocessed(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to count unprocessed reports")
		backlog = -1
	}

	c.JSON(http.StatusOK, gin.H{
		"workers":     snap.Workers,
		"queue_depth": snap.QueueDepth,
		"processed":   snap.Processed,
		"failed":      snap.Failed,
		"backlog":     backlog,
		"subscribers": h.hub.SubscriberCount(),
	})
}

func (h *APIHandler) handleGroupStats(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	groups, err := h.store.GroupSummaries(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to summarise groups")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": groups, "count": len(groups)})
}

// newReportPayload is the new_report frame body. Text is truncated so one
// pasted essay cannot bloat every subscriber's queue.
func newReportPayload(r models.Report) gin.H {
	return gin.H{
		"id":        r.ID,
		"source":    r.Source,
		"text":      truncateRunes(r.Text, 100),
		"lat":       r.Latitude,
		"lon":       r.Longitude,
		"user_name": r.UserName,
		"has_media": r.HasMedia,
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// parseClientTimestamp accepts RFC 3339 or "2006-01-02 15:04:05". Empty means
// the client reported no observation time (zero time, scored neutrally
// downstream); anything unparseable substitutes now so a broken clock cannot
// hide a report.
func parseClientTimestamp(raw string) (time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Now().UTC(), false
}
