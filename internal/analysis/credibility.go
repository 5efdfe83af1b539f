package analysis

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Feature weights for the credibility blend. They sum to 1.0; past_accuracy
// is reserved for a reporter-history model and currently scores a constant.
var credibilityWeights = map[string]float64{
	"source_reliability":   0.40,
	"has_media":            0.15,
	"gps_accuracy":         0.15,
	"text_quality":         0.15,
	"temporal_consistency": 0.10,
	"past_accuracy":        0.05,
}

var credibilitySourceWeights = map[models.SourceKind]float64{
	models.SourceIncois:  1.0,
	models.SourceLora:    0.95,
	models.SourceCitizen: 0.6,
	models.SourceSocial:  0.4,
	models.SourceOther:   0.3,
}

var (
	reExclamations = regexp.MustCompile(`!{3,}`)
	reShouting     = regexp.MustCompile(`[A-Z]{10,}`)

	// Information-content indicators, matched against lowercased text.
	infoIndicators = []*regexp.Regexp{
		regexp.MustCompile(`\b\d+\b`),
		regexp.MustCompile(`\b(morning|evening|afternoon|night|am|pm)\b`),
		regexp.MustCompile(`\b(near|at|in|around|beside)\b`),
		regexp.MustCompile(`\b(level|height|depth|speed)\b`),
	}
)

// ScoreCredibility blends six weighted features into a [0,1] credibility
// score with a per-feature breakdown and a short operator-facing explanation.
// gpsAccuracy is the reported GPS error radius in metres, nil when the client
// did not send one.
func ScoreCredibility(source models.SourceKind, text string, lat, lon float64, ts time.Time, mediaPath string, gpsAccuracy *float64) models.CredibilityResult {
	features := map[string]float64{
		"source_reliability":   scoreSourceReliability(source),
		"has_media":            scoreMediaPresence(mediaPath),
		"gps_accuracy":         scoreGPSAccuracy(lat, lon, gpsAccuracy),
		"text_quality":         scoreTextQuality(text),
		"temporal_consistency": scoreTemporalConsistency(ts),
		"past_accuracy":        0.5,
	}

	var total, totalWeight float64
	for feature, score := range features {
		w := credibilityWeights[feature]
		total += score * w
		totalWeight += w
	}
	score := 0.0
	if totalWeight > 0 {
		score = total / totalWeight
	}

	return models.CredibilityResult{
		Score:       score,
		Features:    features,
		Explanation: explainCredibility(features),
	}
}

func scoreSourceReliability(source models.SourceKind) float64 {
	if w, ok := credibilitySourceWeights[source]; ok {
		return w
	}
	return 0.3
}

func scoreMediaPresence(mediaPath string) float64 {
	if strings.TrimSpace(mediaPath) != "" {
		return 0.8
	}
	return 0.2
}

// scoreGPSAccuracy sanity-checks the coordinates: out-of-range is worthless,
// implausibly many decimals smells fabricated, too few smells like a map-pin
// default. A reported accuracy radius refines the middle ground.
func scoreGPSAccuracy(lat, lon float64, gpsAccuracy *float64) float64 {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0.0
	}

	latPrec := decimalPrecision(lat)
	lonPrec := decimalPrecision(lon)
	if latPrec > 8 || lonPrec > 8 {
		return 0.3
	}
	if latPrec < 2 || lonPrec < 2 {
		return 0.4
	}

	if gpsAccuracy != nil {
		switch {
		case *gpsAccuracy <= 20:
			return 1.0
		case *gpsAccuracy <= 50:
			return 0.8
		case *gpsAccuracy <= 100:
			return 0.6
		default:
			return 0.3
		}
	}
	return 0.7
}

func decimalPrecision(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// scoreTextQuality rewards informative length and vocabulary diversity,
// penalises spam patterns. Spam patterns run against the raw text, info
// indicators against the lowercased text.
func scoreTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0.0
	}

	length := utf8.RuneCountInString(text)
	words := strings.Fields(text)

	lengthScore := 0.0
	if length >= 30 {
		lengthScore = 0.5
	}
	if length >= 50 {
		lengthScore = 0.7
	}
	if length >= 100 {
		lengthScore = 0.9
	}
	if length > 500 {
		lengthScore = 0.6
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}
	wordCount := len(words)
	if wordCount == 0 {
		wordCount = 1
	}
	diversity := float64(len(unique)) / float64(wordCount)
	if diversity > 1.0 {
		diversity = 1.0
	}

	spamPenalty := 0.0
	if hasCharRun(text, 5) {
		spamPenalty += 0.1
	}
	if hasAdjacentRepeatedWord(text) {
		spamPenalty += 0.1
	}
	if reExclamations.MatchString(text) {
		spamPenalty += 0.1
	}
	if reShouting.MatchString(text) {
		spamPenalty += 0.1
	}

	lowered := strings.ToLower(text)
	infoBonus := 0.0
	for _, re := range infoIndicators {
		if re.MatchString(lowered) {
			infoBonus += 0.05
		}
	}

	score := lengthScore*0.6 + diversity*0.4 + infoBonus - spamPenalty
	return clamp(score, 0.0, 1.0)
}

// hasCharRun reports whether the text contains n identical consecutive runes.
func hasCharRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

// hasAdjacentRepeatedWord reports whether two identical words appear
// separated by whitespace only ("help help"). Case-sensitive, matching the
// word-boundary semantics of a backreference regex, which RE2 cannot express.
func hasAdjacentRepeatedWord(text string) bool {
	prevWord := ""
	prevEnd := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isWordRune(r) {
			i += size
			continue
		}
		start := i
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !isWordRune(r) {
				break
			}
			i += size
		}
		word := text[start:i]
		if prevWord != "" && word == prevWord && isAllSpace(text[prevEnd:start]) {
			return true
		}
		prevWord = word
		prevEnd = i
	}
	return false
}

func isAllSpace(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func scoreTemporalConsistency(ts time.Time) float64 {
	if ts.IsZero() {
		return 0.5
	}
	now := time.Now().UTC()
	ts = ts.UTC()

	if ts.After(now) {
		return 0.1
	}

	diff := now.Sub(ts)
	switch {
	case diff <= time.Hour:
		return 1.0
	case diff <= 24*time.Hour:
		return 0.9
	case diff <= 7*24*time.Hour:
		return 0.7
	case diff <= 30*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

func explainCredibility(features map[string]float64) string {
	var parts []string
	if features["source_reliability"] >= 0.8 {
		parts = append(parts, "Reliable source")
	} else if features["source_reliability"] <= 0.4 {
		parts = append(parts, "Unreliable source")
	}
	if features["has_media"] >= 0.7 {
		parts = append(parts, "has media evidence")
	}
	if features["gps_accuracy"] >= 0.8 {
		parts = append(parts, "accurate location")
	} else if features["gps_accuracy"] <= 0.4 {
		parts = append(parts, "poor location data")
	}
	if features["text_quality"] >= 0.7 {
		parts = append(parts, "detailed description")
	} else if features["text_quality"] <= 0.4 {
		parts = append(parts, "poor description quality")
	}
	if features["temporal_consistency"] >= 0.8 {
		parts = append(parts, "recent report")
	} else if features["temporal_consistency"] <= 0.4 {
		parts = append(parts, "outdated report")
	}

	if len(parts) == 0 {
		return "Average credibility"
	}
	return strings.Join(parts, "; ")
}
