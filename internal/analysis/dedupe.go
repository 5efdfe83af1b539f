package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Clustering thresholds. A report within 5 km and 30 minutes of an existing
// one, describing the same thing, is almost certainly the same observation.
const (
	spatialThresholdKm   = 5.0
	temporalThresholdMin = 30.0
	combinedThreshold    = 0.6

	earthRadiusKm = 6371
)

// Combined-similarity blend weights.
const (
	spatialWeight  = 0.4
	temporalWeight = 0.3
	textualWeight  = 0.3
)

// Haversine returns the great-circle distance between two points in
// kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1R := lat1 * math.Pi / 180
	lon1R := lon1 * math.Pi / 180
	lat2R := lat2 * math.Pi / 180
	lon2R := lon2 * math.Pi / 180

	dLat := lat2R - lat1R
	dLon := lon2R - lon1R

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1R)*math.Cos(lat2R)*math.Pow(math.Sin(dLon/2), 2)
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(a))
}

// SpatialSimilarity decays linearly from 1.0 at zero distance to 0.0 at the
// 5 km threshold; anything beyond scores zero.
func SpatialSimilarity(lat1, lon1, lat2, lon2 float64) float64 {
	km := Haversine(lat1, lon1, lat2, lon2)
	if km > spatialThresholdKm {
		return 0.0
	}
	return math.Max(0.0, 1.0-km/spatialThresholdKm)
}

// TemporalSimilarity decays linearly to zero over 30 minutes. A missing
// timestamp on either side scores a neutral 0.5.
func TemporalSimilarity(t1, t2 time.Time) float64 {
	if t1.IsZero() || t2.IsZero() {
		return 0.5
	}
	minutes := math.Abs(t2.Sub(t1).Minutes())
	if minutes > temporalThresholdMin {
		return 0.0
	}
	return math.Max(0.0, 1.0-minutes/temporalThresholdMin)
}

// TextualSimilarity is the Jaccard index over normalised token sets.
func TextualSimilarity(text1, text2 string) float64 {
	if text1 == "" || text2 == "" {
		return 0.0
	}

	tokens1 := tokenSet(text1)
	tokens2 := tokenSet(text2)

	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 1.0
	}
	if len(tokens1) == 0 || len(tokens2) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range tokens1 {
		if _, ok := tokens2[t]; ok {
			intersection++
		}
	}
	union := len(tokens1) + len(tokens2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// tokenSet lowercases, strips everything but word runes and whitespace, and
// keeps tokens longer than two characters. Unlike the classifier tokenizer
// it keeps stopwords: shared filler words are real similarity signal here.
func tokenSet(text string) map[string]struct{} {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	set := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		if utf8.RuneCountInString(tok) > 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// CombinedSimilarity blends the three signals.
func CombinedSimilarity(a, b models.Report) float64 {
	spatial := SpatialSimilarity(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	temporal := TemporalSimilarity(a.Timestamp, b.Timestamp)
	textual := TextualSimilarity(a.Text, b.Text)
	return spatial*spatialWeight + temporal*temporalWeight + textual*textualWeight
}

// FindGroup places a new report: it joins the group of the highest-scoring
// existing report at or above the combined threshold, or opens a fresh group
// one past the highest group id seen. Groups are never split or merged.
func FindGroup(newReport models.Report, existing []models.Report) models.GroupDecision {
	if len(existing) == 0 {
		return models.GroupDecision{
			GroupID: 1,
			Reason:  "First report in database",
		}
	}

	var bestMatch *models.Report
	bestScore := 0.0
	var matchedIDs []int64

	for i := range existing {
		score := CombinedSimilarity(newReport, existing[i])
		if score >= combinedThreshold {
			matchedIDs = append(matchedIDs, existing[i].ID)
			if score > bestScore {
				bestScore = score
				bestMatch = &existing[i]
			}
		}
	}

	if bestMatch != nil {
		return models.GroupDecision{
			GroupID:     bestMatch.GroupID,
			IsDuplicate: true,
			BestScore:   bestScore,
			MatchedIDs:  matchedIDs,
			Reason:      duplicateReason(newReport, *bestMatch),
		}
	}

	var maxGroup int64
	for i := range existing {
		if existing[i].GroupID > maxGroup {
			maxGroup = existing[i].GroupID
		}
	}
	return models.GroupDecision{
		GroupID:   maxGroup + 1,
		BestScore: bestScore,
		Reason:    "Unique report - no duplicates found",
	}
}

func duplicateReason(newReport, match models.Report) string {
	var parts []string

	if SpatialSimilarity(newReport.Latitude, newReport.Longitude, match.Latitude, match.Longitude) > 0.7 {
		km := Haversine(newReport.Latitude, newReport.Longitude, match.Latitude, match.Longitude)
		parts = append(parts, fmt.Sprintf("Same location (%.1fkm apart)", km))
	}
	if TemporalSimilarity(newReport.Timestamp, match.Timestamp) > 0.7 {
		minutes := math.Abs(newReport.Timestamp.Sub(match.Timestamp).Minutes())
		parts = append(parts, fmt.Sprintf("Similar time (%.0fmin apart)", minutes))
	}
	if textual := TextualSimilarity(newReport.Text, match.Text); textual > 0.4 {
		parts = append(parts, fmt.Sprintf("Similar description (%.2f similarity)", textual))
	}

	return strings.Join(parts, "; ")
}

// GroupStatistics summarises the reports fused into one group. The centroid
// here is the plain mean; the fusion engine computes its own
// credibility-weighted centroid for the event row.
func GroupStatistics(reports []models.Report) models.GroupStats {
	if len(reports) == 0 {
		return models.GroupStats{}
	}

	stats := models.GroupStats{
		ReportCount:  len(reports),
		SourceCounts: make(map[string]int),
	}

	var sumLat, sumLon float64
	seenTexts := make(map[string]struct{})
	for i := range reports {
		r := &reports[i]
		sumLat += r.Latitude
		sumLon += r.Longitude
		stats.SourceCounts[string(r.Source)]++
		stats.ReportIDs = append(stats.ReportIDs, r.ID)

		if !r.Timestamp.IsZero() {
			ts := r.Timestamp
			if stats.Earliest == nil || ts.Before(*stats.Earliest) {
				stats.Earliest = &ts
			}
			if stats.Latest == nil || ts.After(*stats.Latest) {
				stats.Latest = &ts
			}
		}

		if r.Text != "" {
			if _, seen := seenTexts[r.Text]; !seen {
				seenTexts[r.Text] = struct{}{}
				if len(stats.Descriptions) < 5 {
					stats.Descriptions = append(stats.Descriptions, r.Text)
				}
			}
		}
	}

	stats.CentroidLat = sumLat / float64(len(reports))
	stats.CentroidLon = sumLon / float64(len(reports))
	return stats
}
