// Package alert turns alert-worthy hazard snapshots into operator alerts:
// an in-memory history for the dashboard, an optional webhook push, and a
// broadcast callback. Webhook payloads are plain JSON compatible with Slack
// and Discord incoming webhooks.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/analysis"
	"github.com/oceanguard/hazard-engine/internal/metrics"
	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Alert is one operator-facing notification derived from a hazard event.
type Alert struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	EventID     int64              `json:"hazard_event_id,omitempty"`
	GroupID     int64              `json:"group_id"`
	Kind        models.HazardKind  `json:"hazard_kind"`
	Severity    int                `json:"severity"` // 1..5
	Confidence  float64            `json:"confidence"`
	Status      models.EventStatus `json:"status"`
	Latitude    float64            `json:"lat"`
	Longitude   float64            `json:"lon"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
}

// Manager records alerts and pushes them to the configured webhook.
type Manager struct {
	mu          sync.RWMutex
	recent      []Alert
	maxHistory  int
	webhookURL  string
	minSeverity int
	httpClient  *http.Client
	notify      func(Alert) // broadcast callback, may be nil
}

// NewManager creates an alert manager. webhookURL may be empty (no webhook
// delivery); minSeverity gates webhook delivery only, history keeps
// everything.
func NewManager(webhookURL string, minSeverity int, notify func(Alert)) *Manager {
	if minSeverity < 1 || minSeverity > 5 {
		minSeverity = 3
	}
	return &Manager{
		recent:      make([]Alert, 0),
		maxHistory:  1000,
		webhookURL:  webhookURL,
		minSeverity: minSeverity,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		notify:      notify,
	}
}

// Emit records and distributes an alert. Webhook delivery is asynchronous so
// a slow receiver never stalls the pipeline.
func (m *Manager) Emit(alert Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.recent = append(m.recent, alert)
	if len(m.recent) > m.maxHistory {
		m.recent = m.recent[len(m.recent)-m.maxHistory:]
	}
	m.mu.Unlock()

	metrics.AlertsEmitted.WithLabelValues(string(alert.Kind)).Inc()

	if m.notify != nil {
		m.notify(alert)
	}
	if m.webhookURL != "" && alert.Severity >= m.minSeverity {
		go m.sendWebhook(alert)
	}

	log.Info().
		Str("component", "alert").
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Int("severity", alert.Severity).
		Float64("confidence", alert.Confidence).
		Msg(alert.Title)
}

// EmitFromSnapshot builds and emits an alert for a fused hazard snapshot.
// Callers are expected to have checked alert-worthiness already.
func (m *Manager) EmitFromSnapshot(snapshot models.HazardSnapshot, eventID int64) {
	var title string
	switch {
	case snapshot.Status == models.StatusEmergency:
		title = "EMERGENCY: SOS beacon activated"
	case snapshot.Severity >= 4:
		title = fmt.Sprintf("High severity %s hazard detected", snapshot.Kind)
	default:
		title = fmt.Sprintf("Hazard event confirmed: %s", snapshot.Kind)
	}

	m.Emit(Alert{
		EventID:     eventID,
		GroupID:     snapshot.GroupID,
		Kind:        snapshot.Kind,
		Severity:    snapshot.Severity,
		Confidence:  snapshot.Confidence,
		Status:      snapshot.Status,
		Latitude:    snapshot.Latitude,
		Longitude:   snapshot.Longitude,
		Title:       title,
		Description: analysis.FusionExplanation(snapshot),
	})
}

// WebhookConfigured reports whether alerts forward to an external webhook.
func (m *Manager) WebhookConfigured() bool {
	return m.webhookURL != ""
}

// Recent returns the most recent alerts, newest first.
func (m *Manager) Recent(limit int) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	start := len(m.recent) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = m.recent[start+limit-1-i]
	}
	return result
}

// BySeverity returns the recorded alerts at or above a severity, newest first.
func (m *Manager) BySeverity(minSeverity int) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filtered := make([]Alert, 0)
	for i := len(m.recent) - 1; i >= 0; i-- {
		if m.recent[i].Severity >= minSeverity {
			filtered = append(filtered, m.recent[i])
		}
	}
	return filtered
}

func (m *Manager) sendWebhook(alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequest(http.MethodPost, m.webhookURL, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("alert_id", alert.ID).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn().Int("status", resp.StatusCode).Str("alert_id", alert.ID).Msg("webhook rejected alert")
	}
}
