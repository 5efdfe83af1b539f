package analysis

import (
	_ "embed"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Keyword tables ship inside the binary so a deployment is a single file.
//
//go:embed keywords.yaml
var keywordsYAML []byte

type keywordTable struct {
	Hazards []struct {
		Kind     string   `yaml:"kind"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"hazards"`
	Severity struct {
		High   []string `yaml:"high"`
		Medium []string `yaml:"medium"`
		Low    []string `yaml:"low"`
	} `yaml:"severity"`
	Stopwords map[string][]string `yaml:"stopwords"`
}

type hazardEntry struct {
	kind     models.HazardKind
	keywords []string
}

// Classifier assigns a hazard kind to free-form report text by multilingual
// keyword matching, then scales the confidence by source trust and media
// verification. Classification is pure: same inputs, same verdict.
type Classifier struct {
	hazards        []hazardEntry // table order is the tie-break order
	severityHigh   []string
	severityMedium []string
	stopwords      map[string]struct{}
}

// NewClassifier parses the embedded keyword tables.
func NewClassifier() (*Classifier, error) {
	var table keywordTable
	if err := yaml.Unmarshal(keywordsYAML, &table); err != nil {
		return nil, fmt.Errorf("failed to parse keyword tables: %w", err)
	}
	if len(table.Hazards) == 0 {
		return nil, fmt.Errorf("keyword tables contain no hazard kinds")
	}

	c := &Classifier{
		severityHigh:   table.Severity.High,
		severityMedium: table.Severity.Medium,
		stopwords:      make(map[string]struct{}),
	}
	for _, h := range table.Hazards {
		c.hazards = append(c.hazards, hazardEntry{kind: models.HazardKind(h.Kind), keywords: h.Keywords})
	}
	for _, words := range table.Stopwords {
		for _, w := range words {
			c.stopwords[w] = struct{}{}
		}
	}
	return c, nil
}

// Classify scores the text against every hazard kind and returns the winning
// kind with a source-scaled, media-boosted confidence. Empty text short
// circuits to (unknown, 0.1) before any scaling.
func (c *Classifier) Classify(text string, source models.SourceKind, hasMedia, mediaVerified bool) models.Classification {
	if strings.TrimSpace(text) == "" {
		return models.Classification{Kind: models.KindUnknown, Confidence: 0.1}
	}

	norm := c.normalize(text)
	kind, base, keywords := c.matchHazard(norm)

	conf := scaleBySource(base, source)
	conf = applyMediaBoost(conf, hasMedia, mediaVerified)

	return models.Classification{
		Kind:          kind,
		Confidence:    conf,
		SeverityBoost: c.severityBoost(norm),
		Keywords:      keywords,
	}
}

// EmergencyClassification is the fixed verdict for the LoRa beacon channel.
// Beacons carry no analysable text, so the classifier is bypassed entirely.
func EmergencyClassification() models.Classification {
	return models.Classification{
		Kind:          models.KindEmergency,
		Confidence:    0.99,
		SeverityBoost: 2,
		Keywords:      []string{"sos", "emergency"},
	}
}

// normalize lowercases, strips every rune outside letters/digits/underscore/
// space/hyphen/dot, collapses whitespace and drops stopwords and tokens of
// two characters or fewer.
func (c *Classifier) normalize(text string) string {
	lowered := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) || r == '-' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := c.stopwords[w]; stop {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// matchHazard scores each kind: phrase occurrences count double, a keyword
// present only as a bare substring (a stem like "submerg" inside
// "submerged") counts once. Ties keep the kind listed first in the table.
func (c *Classifier) matchHazard(norm string) (models.HazardKind, float64, []string) {
	bestScore := 0
	bestKind := models.KindUnknown
	var bestKeywords []string

	for _, h := range c.hazards {
		score := 0
		var found []string
		for _, kw := range h.keywords {
			if n := countPhrase(norm, kw); n > 0 {
				score += 2 * n
				found = append(found, kw)
			} else if strings.Contains(norm, kw) {
				score++
				found = append(found, kw)
			}
		}
		if score > bestScore {
			bestScore = score
			bestKind = h.kind
			bestKeywords = found
		}
	}

	if bestScore == 0 {
		return models.KindUnknown, 0.3, nil
	}
	return bestKind, math.Min(0.4+0.05*float64(bestScore), 0.7), bestKeywords
}

// severityBoost checks the high and medium indicator tiers, counting each
// tier at most once, capped at +2.
func (c *Classifier) severityBoost(norm string) int {
	boost := 0
	for _, kw := range c.severityHigh {
		if strings.Contains(norm, kw) {
			boost += 2
			break
		}
	}
	for _, kw := range c.severityMedium {
		if strings.Contains(norm, kw) {
			boost++
			break
		}
	}
	if boost > 2 {
		boost = 2
	}
	return boost
}

// scaleBySource keeps single-report confidence low for crowd channels so it
// can build progressively through fusion, while official and beacon channels
// start high.
func scaleBySource(base float64, source models.SourceKind) float64 {
	switch source {
	case models.SourceCitizen:
		return clamp(base*0.25, 0.08, 0.35)
	case models.SourceSocial:
		return clamp(base*0.20, 0.08, 0.35)
	case models.SourceIncois:
		return clamp(base*0.80, 0.50, 0.85)
	case models.SourceLora:
		return clamp(base*0.95, 0.29, 0.95)
	default:
		return base * 0.25
	}
}

func applyMediaBoost(conf float64, hasMedia, mediaVerified bool) float64 {
	if !hasMedia {
		return conf
	}
	if mediaVerified {
		return math.Min(0.95, conf+0.60)
	}
	return math.Min(0.70, conf+0.15)
}

// countPhrase counts occurrences of phrase in s that sit at word boundaries
// on both sides. Matches overlapping a larger word are left for the
// substring rule.
func countPhrase(s, phrase string) int {
	if phrase == "" {
		return 0
	}
	count := 0
	start := 0
	for {
		idx := strings.Index(s[start:], phrase)
		if idx < 0 {
			return count
		}
		pos := start + idx
		end := pos + len(phrase)

		leftOK := pos == 0
		if !leftOK {
			r, _ := utf8.DecodeLastRuneInString(s[:pos])
			leftOK = !isWordRune(r)
		}
		rightOK := end == len(s)
		if !rightOK {
			r, _ := utf8.DecodeRuneInString(s[end:])
			rightOK = !isWordRune(r)
		}

		if leftOK && rightOK {
			count++
			start = end
		} else {
			start = pos + 1
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
