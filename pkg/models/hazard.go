package models

import (
	"encoding/json"
	"time"
)

// HazardKind classifies the physical phenomenon behind a report or event.
type HazardKind string

const (
	KindFlood      HazardKind = "flood"
	KindTsunami    HazardKind = "tsunami"
	KindTides      HazardKind = "tides" // abnormal tide / swell surge
	KindEarthquake HazardKind = "earthquake"
	KindLandslide  HazardKind = "landslide"
	KindEmergency  HazardKind = "emergency" // beacon channel, bypasses classification
	KindUnknown    HazardKind = "unknown"
)

// ValidHazardKind reports whether s names a known hazard kind. Used to
// validate bulletin submissions and list filters.
func ValidHazardKind(s string) bool {
	switch HazardKind(s) {
	case KindFlood, KindTsunami, KindTides, KindEarthquake, KindLandslide, KindEmergency, KindUnknown:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of a hazard event. Pending, review,
// confirmed and emergency are assigned by fusion; approved and rejected only
// by an administrator and are terminal (they pin status and confidence
// against later fuses).
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusReview    EventStatus = "review"
	StatusConfirmed EventStatus = "confirmed"
	StatusEmergency EventStatus = "emergency"
	StatusApproved  EventStatus = "approved"
	StatusRejected  EventStatus = "rejected"
)

// Terminal reports whether the status was set by an administrator decision.
func (s EventStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ValidEventStatus reports whether s is a known lifecycle state. Used to
// validate list filters and admin decisions.
func ValidEventStatus(s string) bool {
	switch EventStatus(s) {
	case StatusPending, StatusReview, StatusConfirmed, StatusEmergency, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// HazardEvent is the fused view of one report group. There is at most one
// event per group; fusion rewrites the row in place as evidence accumulates.
type HazardEvent struct {
	ID         int64           `json:"id"`
	GroupID    int64           `json:"group_id"`
	Kind       HazardKind      `json:"hazard_kind"`
	Confidence float64         `json:"confidence"`
	Severity   int             `json:"severity"` // 1..5
	Status     EventStatus     `json:"status"`
	Latitude   float64         `json:"lat"`
	Longitude  float64         `json:"lon"`
	Evidence   json.RawMessage `json:"evidence,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ConfidenceLevel buckets the confidence for list views and stats.
func (e *HazardEvent) ConfidenceLevel() string {
	switch {
	case e.Confidence >= 0.8:
		return "high"
	case e.Confidence >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// HazardSnapshot is the fusion engine's verdict over one report group. The
// pipeline turns it into a HazardEvent upsert and into broadcast payloads.
type HazardSnapshot struct {
	GroupID    int64       `json:"group_id"`
	Kind       HazardKind  `json:"hazard_kind"`
	Confidence float64     `json:"confidence"`
	Severity   int         `json:"severity"`
	Status     EventStatus `json:"status"`
	Latitude   float64     `json:"lat"`
	Longitude  float64     `json:"lon"`
	Priority   float64     `json:"priority"`
	Evidence   Evidence    `json:"evidence"`
}

// Evidence is the structured provenance blob attached to a hazard event.
// Consumers must not rely on key order; KeywordsFound is sorted so repeated
// fuses over the same inputs serialize identically.
type Evidence struct {
	ReportCount        int               `json:"report_count"`
	SourceDistribution map[string]int    `json:"source_distribution"`
	ConfidenceScores   []float64         `json:"confidence_scores"`
	CredibilityScores  []float64         `json:"credibility_scores"`
	ReportIDs          []int64           `json:"report_ids"`
	TimeRange          EvidenceTimeRange `json:"time_range"`
	UniqueDescriptions []string          `json:"unique_descriptions"`
	KeywordsFound      []string          `json:"keywords_found"`
}

// EvidenceTimeRange spans the earliest and latest report timestamps in the
// group. Either bound is null when no report carried a timestamp.
type EvidenceTimeRange struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}
