package analysis

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/oceanguard/hazard-engine/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestScoreCredibility_WeightedBlend(t *testing.T) {
	// Citizen, empty text, 2-decimal coords, no media, no timestamp:
	// 0.6*0.40 + 0.2*0.15 + 0.7*0.15 + 0.0*0.15 + 0.5*0.10 + 0.5*0.05 = 0.45.
	result := ScoreCredibility(models.SourceCitizen, "", 13.05, 80.27, time.Time{}, "", nil)

	if math.Abs(result.Score-0.45) > 0.001 {
		t.Errorf("Score = %v, want 0.45", result.Score)
	}
	if len(result.Features) != 6 {
		t.Errorf("Expected 6 features, got %d: %v", len(result.Features), result.Features)
	}
	if result.Explanation != "poor description quality" {
		t.Errorf("Explanation = %q, want %q", result.Explanation, "poor description quality")
	}
}

func TestScoreCredibility_BestCase(t *testing.T) {
	text := "Water level rising near marina beach around 2 pm, depth almost 3 feet now"
	ts := time.Now().UTC().Add(-30 * time.Minute)

	// 1.0*0.40 + 0.8*0.15 + 1.0*0.15 + 1.0*0.15 + 1.0*0.10 + 0.5*0.05 = 0.945.
	result := ScoreCredibility(models.SourceIncois, text, 13.0527, 80.2707, ts, "uploads/wave.jpg", floatPtr(10))

	if math.Abs(result.Score-0.945) > 0.001 {
		t.Errorf("Score = %v, want 0.945", result.Score)
	}

	expected := "Reliable source; has media evidence; accurate location; detailed description; recent report"
	if result.Explanation != expected {
		t.Errorf("Explanation = %q, want %q", result.Explanation, expected)
	}
}

func TestScoreGPSAccuracy(t *testing.T) {
	tests := []struct {
		name     string
		lat      float64
		lon      float64
		accuracy *float64
		expected float64
	}{
		{"Latitude Out Of Range", 91.0, 80.27, nil, 0.0},
		{"Longitude Out Of Range", 13.05, -181.0, nil, 0.0},
		{"Plausible No Accuracy", 13.05, 80.27, nil, 0.7},
		{"Excessive Precision", 13.123456789, 80.27, nil, 0.3},
		{"One Decimal", 13.1, 80.27, nil, 0.4},
		{"Integer Coordinates", 13.0, 80.0, nil, 0.4},
		{"Accuracy 10m", 13.0527, 80.2707, floatPtr(10), 1.0},
		{"Accuracy 20m Boundary", 13.0527, 80.2707, floatPtr(20), 1.0},
		{"Accuracy 35m", 13.0527, 80.2707, floatPtr(35), 0.8},
		{"Accuracy 100m Boundary", 13.0527, 80.2707, floatPtr(100), 0.6},
		{"Accuracy 250m", 13.0527, 80.2707, floatPtr(250), 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scoreGPSAccuracy(tt.lat, tt.lon, tt.accuracy)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("scoreGPSAccuracy() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestDecimalPrecision(t *testing.T) {
	tests := []struct {
		value    float64
		expected int
	}{
		{13.05, 2},
		{13.0527, 4},
		{13.0, 0},
		{13.123456789, 9},
		{80.2707, 4},
	}

	for _, tt := range tests {
		if got := decimalPrecision(tt.value); got != tt.expected {
			t.Errorf("decimalPrecision(%v) = %d, want %d", tt.value, got, tt.expected)
		}
	}
}

func TestScoreTextQuality(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
	}{
		{"Empty", "", 0.0},
		{"Whitespace Only", "   ", 0.0},
		// Under 30 runes: length 0, diversity 1.0, no bonuses.
		{"Single Word", "help", 0.4},
		// 73 runes (0.7), full diversity, all four info bonuses: capped at 1.0.
		{"Detailed Report", "Water level rising near marina beach around 2 pm, depth almost 3 feet now", 1.0},
		// 549 runes (0.6), 100 words but 2 unique: 0.36 + 0.008 = 0.368.
		{"Overlong Repetitive", strings.Repeat("alpha beta ", 50), 0.368},
		// 45 runes (0.5), diversity 0.8, all four spam penalties: 0.62 - 0.40.
		{"Spam", "HELP HELP FLOODING EVERYWHERE!!!!! aaaaahhhhh", 0.22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scoreTextQuality(tt.text)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("scoreTextQuality(%q) = %v, want %v", tt.text, result, tt.expected)
			}
		})
	}
}

func TestHasCharRun(t *testing.T) {
	tests := []struct {
		text     string
		n        int
		expected bool
	}{
		{"aaaaa", 5, true},
		{"aaaa", 5, false},
		{"xxbbbbbyy", 5, true},
		{"helloooooo", 5, true},
		{"hello", 5, false},
		{"", 5, false},
	}

	for _, tt := range tests {
		if got := hasCharRun(tt.text, tt.n); got != tt.expected {
			t.Errorf("hasCharRun(%q, %d) = %v, want %v", tt.text, tt.n, got, tt.expected)
		}
	}
}

func TestHasAdjacentRepeatedWord(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"help help", true},
		{"flood  flood", true},
		{"flood\nflood", true},
		{"help helps", false},
		{"Help help", false},
		{"help, help", false},
		{"water rising water", false},
		{"", false},
		{"single", false},
	}

	for _, tt := range tests {
		if got := hasAdjacentRepeatedWord(tt.text); got != tt.expected {
			t.Errorf("hasAdjacentRepeatedWord(%q) = %v, want %v", tt.text, got, tt.expected)
		}
	}
}

func TestScoreTemporalConsistency(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		ts       time.Time
		expected float64
	}{
		{"Missing", time.Time{}, 0.5},
		{"Future", now.Add(time.Hour), 0.1},
		{"Within Hour", now.Add(-30 * time.Minute), 1.0},
		{"Within Day", now.Add(-2 * time.Hour), 0.9},
		{"Within Week", now.Add(-3 * 24 * time.Hour), 0.7},
		{"Within Month", now.Add(-20 * 24 * time.Hour), 0.4},
		{"Stale", now.Add(-60 * 24 * time.Hour), 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scoreTemporalConsistency(tt.ts)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("scoreTemporalConsistency() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestExplainCredibility(t *testing.T) {
	tests := []struct {
		name     string
		features map[string]float64
		expected string
	}{
		{
			"All Strong",
			map[string]float64{
				"source_reliability":   1.0,
				"has_media":            0.8,
				"gps_accuracy":         1.0,
				"text_quality":         0.9,
				"temporal_consistency": 1.0,
			},
			"Reliable source; has media evidence; accurate location; detailed description; recent report",
		},
		{
			"All Weak",
			map[string]float64{
				"source_reliability":   0.3,
				"has_media":            0.2,
				"gps_accuracy":         0.3,
				"text_quality":         0.2,
				"temporal_consistency": 0.2,
			},
			"Unreliable source; poor location data; poor description quality; outdated report",
		},
		{
			"All Middling",
			map[string]float64{
				"source_reliability":   0.6,
				"has_media":            0.2,
				"gps_accuracy":         0.7,
				"text_quality":         0.5,
				"temporal_consistency": 0.5,
			},
			"Average credibility",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := explainCredibility(tt.features); got != tt.expected {
				t.Errorf("explainCredibility() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestScoreSourceReliability(t *testing.T) {
	tests := []struct {
		source   models.SourceKind
		expected float64
	}{
		{models.SourceIncois, 1.0},
		{models.SourceLora, 0.95},
		{models.SourceCitizen, 0.6},
		{models.SourceSocial, 0.4},
		{models.SourceOther, 0.3},
		{models.SourceKind("bogus"), 0.3},
	}

	for _, tt := range tests {
		if got := scoreSourceReliability(tt.source); math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("scoreSourceReliability(%v) = %v, want %v", tt.source, got, tt.expected)
		}
	}
}

func TestScoreMediaPresence(t *testing.T) {
	if got := scoreMediaPresence("uploads/wave.jpg"); math.Abs(got-0.8) > 0.001 {
		t.Errorf("scoreMediaPresence(path) = %v, want 0.8", got)
	}
	if got := scoreMediaPresence(""); math.Abs(got-0.2) > 0.001 {
		t.Errorf("scoreMediaPresence(empty) = %v, want 0.2", got)
	}
	if got := scoreMediaPresence("   "); math.Abs(got-0.2) > 0.001 {
		t.Errorf("scoreMediaPresence(blank) = %v, want 0.2", got)
	}
}
