package models

import "time"

// Classification is the keyword classifier's verdict on a single report.
type Classification struct {
	Kind          HazardKind `json:"kind"`
	Confidence    float64    `json:"confidence"`
	SeverityBoost int        `json:"severity_boost"` // 0..2, added to the fusion severity base
	Keywords      []string   `json:"keywords,omitempty"`
}

// CredibilityResult carries the weighted credibility score together with the
// per-feature breakdown and a human-readable explanation for operators.
type CredibilityResult struct {
	Score       float64            `json:"score"`
	Features    map[string]float64 `json:"features"`
	Explanation string             `json:"explanation"`
}

// GroupDecision is the clusterer's placement verdict for a new report.
type GroupDecision struct {
	GroupID     int64   `json:"group_id"`
	IsDuplicate bool    `json:"is_duplicate"`
	BestScore   float64 `json:"best_score"`
	MatchedIDs  []int64 `json:"matched_ids,omitempty"` // every processed report at or above threshold
	Reason      string  `json:"reason"`
}

// GroupStats summarises the reports currently fused into one group. Feeds the
// evidence blob and the group statistics endpoint.
type GroupStats struct {
	ReportCount  int            `json:"report_count"`
	CentroidLat  float64        `json:"centroid_lat"` // plain mean, not credibility-weighted
	CentroidLon  float64        `json:"centroid_lon"`
	Earliest     *time.Time     `json:"earliest"`
	Latest       *time.Time     `json:"latest"`
	SourceCounts map[string]int `json:"source_counts"`
	Descriptions []string       `json:"descriptions"` // first 5 unique texts
	ReportIDs    []int64        `json:"report_ids"`
}
