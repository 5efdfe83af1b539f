package models

import "time"

// Bulletin is an official advisory from the INCOIS feed. Bulletins are
// read-only inputs: they are never clustered or fused, only correlated
// against hazard events when serving event details.
type Bulletin struct {
	ID          int64      `json:"id"`
	HazardKind  HazardKind `json:"hazard_kind"`
	Severity    int        `json:"severity"` // 1..5
	Description string     `json:"description"`
	IssuedAt    time.Time  `json:"issued_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// BulletinCorrelation is the advisory outcome of matching a hazard event
// against recent bulletins. The boost is a suggestion for operators and is
// never written back to the event.
type BulletinCorrelation struct {
	Correlation       int     `json:"correlation"` // 1 confirming, -1 contradicting, 0 none
	Boost             float64 `json:"boost"`
	Type              string  `json:"type"` // confirmation, high_severity_confirmation, contradiction, none
	MatchingBulletins int     `json:"matching_bulletins"`
	AvgSeverity       float64 `json:"avg_severity,omitempty"`
}
