package models

import (
	"strings"
	"time"
)

// SourceKind identifies the channel a report arrived through. The channel
// drives classifier scaling, credibility weighting and fusion volume factors,
// so unknown strings collapse to SourceOther (the lowest-trust bucket) rather
// than failing ingestion.
type SourceKind string

const (
	SourceIncois  SourceKind = "incois"  // official INCOIS bulletin feed
	SourceLora    SourceKind = "lora"    // LoRa emergency beacon
	SourceCitizen SourceKind = "citizen" // citizen mobile/web submission
	SourceSocial  SourceKind = "social"  // scraped social feed
	SourceOther   SourceKind = "other"
)

// ParseSourceKind normalises a wire-format source string. Legacy aliases used
// by older clients ("lora_sos", "social_media") are translated at ingress.
func ParseSourceKind(s string) SourceKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incois":
		return SourceIncois
	case "lora", "lora_sos":
		return SourceLora
	case "citizen":
		return SourceCitizen
	case "social", "social_media":
		return SourceSocial
	default:
		return SourceOther
	}
}

// Report is a raw hazard observation. The ingestion fields are written once at
// submit time; the derived fields are written exactly once by the pipeline and
// are immutable afterwards (Processed guards them).
type Report struct {
	ID               int64      `json:"id"`
	Source           SourceKind `json:"source"`
	Text             string     `json:"text"`
	Latitude         float64    `json:"lat"`
	Longitude        float64    `json:"lon"`
	Timestamp        time.Time  `json:"timestamp"` // zero value = not reported
	MediaPaths       string     `json:"media_paths,omitempty"` // comma-joined
	HasMedia         bool       `json:"has_media"`
	MediaVerified    bool       `json:"media_verified"`
	UserID           string     `json:"user_id,omitempty"`
	UserName         string     `json:"user_name,omitempty"`
	DeclaredSeverity int        `json:"declared_severity,omitempty"` // 0 = unset; 1..5 for bulletin-derived reports

	// Derived by the pipeline.
	NLPKind       HazardKind `json:"nlp_kind,omitempty"`
	NLPConfidence float64    `json:"nlp_confidence"`
	NLPKeywords   []string   `json:"nlp_keywords,omitempty"`
	SeverityBoost int        `json:"severity_boost"`
	Credibility   float64    `json:"credibility"`
	GroupID       int64      `json:"group_id"`
	Processed     bool       `json:"processed"`

	CreatedAt time.Time `json:"created_at"`
}

// ValidCoordinates reports whether the report's location is on the globe.
func (r *Report) ValidCoordinates() bool {
	return r.Latitude >= -90 && r.Latitude <= 90 && r.Longitude >= -180 && r.Longitude <= 180
}
