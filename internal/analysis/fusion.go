package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Source reliability weights for fusion. These differ from the credibility
// source weights: incois drops slightly below lora because a beacon press is
// a direct human action while bulletins aggregate with lag.
var fusionSourceWeights = map[models.SourceKind]float64{
	models.SourceIncois:  0.9,
	models.SourceLora:    0.95,
	models.SourceCitizen: 0.6,
	models.SourceSocial:  0.4,
	models.SourceOther:   0.3,
}

// Confidence thresholds for automatic lifecycle transitions.
const (
	autoAlertThreshold = 0.85
	emergencyThreshold = 0.90
	reviewThreshold    = 0.30
)

// kindPriorities rank hazard kinds by danger. They weight the priority score
// and break consensus-vote ties.
var kindPriorities = map[models.HazardKind]float64{
	models.KindEmergency:  1.0,
	models.KindTsunami:    0.95,
	models.KindEarthquake: 0.9,
	models.KindLandslide:  0.85,
	models.KindFlood:      0.8,
	models.KindTides:      0.7,
	models.KindUnknown:    0.3,
}

// Fuse collapses every processed report in a group into one hazard snapshot.
// Fuse is a total function over its inputs: an empty group yields a zero
// snapshot in review status, and no input combination panics.
func Fuse(groupID int64, reports []models.Report, stats models.GroupStats) models.HazardSnapshot {
	if len(reports) == 0 {
		return models.HazardSnapshot{
			GroupID:  groupID,
			Kind:     models.KindUnknown,
			Severity: 1,
			Status:   models.StatusReview,
			Evidence: emptyEvidence(),
		}
	}

	hasLora := false
	for i := range reports {
		if reports[i].Source == models.SourceLora {
			hasLora = true
			break
		}
	}

	kind := consensusKind(reports)
	confidence := weightedConfidence(reports)
	severity := weightedSeverity(reports)
	lat, lon := weightedCentroid(reports)
	status := determineStatus(confidence, kind, hasLora)

	return models.HazardSnapshot{
		GroupID:    groupID,
		Kind:       kind,
		Confidence: confidence,
		Severity:   severity,
		Status:     status,
		Latitude:   lat,
		Longitude:  lon,
		Priority:   priorityScore(kind, confidence, severity),
		Evidence:   buildEvidence(reports, stats),
	}
}

// EmergencySnapshot builds the fast-path verdict for a beacon report without
// consensus fusion: a single SOS press is authoritative on its own. The event
// centers on the beacon position with maximum severity and near-certain
// confidence.
func EmergencySnapshot(groupID int64, r models.Report) models.HazardSnapshot {
	members := []models.Report{r}
	return models.HazardSnapshot{
		GroupID:    groupID,
		Kind:       models.KindEmergency,
		Confidence: 0.99,
		Severity:   5,
		Status:     models.StatusEmergency,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Priority:   priorityScore(models.KindEmergency, 0.99, 5),
		Evidence:   buildEvidence(members, GroupStatistics(members)),
	}
}

// ShouldAlert reports whether a snapshot warrants automatic alerting.
func ShouldAlert(s models.HazardSnapshot) bool {
	return s.Confidence >= autoAlertThreshold || s.Status == models.StatusEmergency
}

// consensusKind tallies a weighted vote per kind; the vote weight is source
// reliability x classifier confidence x credibility. Ties go to the more
// dangerous kind.
func consensusKind(reports []models.Report) models.HazardKind {
	votes := make(map[models.HazardKind]float64)
	for i := range reports {
		r := &reports[i]
		kind := r.NLPKind
		if kind == "" {
			kind = models.KindUnknown
		}
		votes[kind] += fusionWeight(r.Source) * r.NLPConfidence * r.Credibility
	}

	best := models.KindUnknown
	bestVotes := -1.0
	for kind, v := range votes {
		if v > bestVotes || (v == bestVotes && kindPriorities[kind] > kindPriorities[best]) {
			best = kind
			bestVotes = v
		}
	}
	return best
}

// weightedConfidence implements progressive confidence: per-source mean
// report quality, dampened by a volume factor with diminishing returns, then
// multiplied by source-diversity and media-evidence boosts. The result is
// capped below certainty so no volume of reports alone reads as proof.
func weightedConfidence(reports []models.Report) float64 {
	if len(reports) == 0 {
		return 0.0
	}

	sourceConfs := make(map[models.SourceKind][]float64)
	verifiedMedia, totalMedia := 0, 0

	for i := range reports {
		r := &reports[i]
		if r.HasMedia {
			totalMedia++
			if r.MediaVerified {
				verifiedMedia++
			}
		}

		conf := r.NLPConfidence * r.Credibility
		if r.HasMedia && r.MediaVerified {
			conf = math.Min(0.95, conf+0.40)
		} else if r.HasMedia {
			conf = math.Min(0.70, conf+0.15)
		}
		sourceConfs[r.Source] = append(sourceConfs[r.Source], conf)
	}

	var total, totalWeight float64
	for source, confs := range sourceConfs {
		w := fusionWeight(source)
		sum := 0.0
		for _, c := range confs {
			sum += c
		}
		avg := sum / float64(len(confs))
		total += avg * volumeFactor(len(confs), source) * w
		totalWeight += w
	}

	base := 0.0
	if totalWeight > 0 {
		base = total / totalWeight
	}

	maxConfidence := 0.95
	if verifiedMedia > 0 {
		maxConfidence = 0.98
	}
	return math.Min(maxConfidence, base*diversityBoost(sourceConfs)*mediaEvidenceBoost(verifiedMedia, totalMedia))
}

// volumeFactor dampens report volume per source class. Official channels
// start near full weight; crowd channels have to earn it, with a square-root
// bonus so a genuine flood of citizen reports still converges below 0.95.
func volumeFactor(volume int, source models.SourceKind) float64 {
	if volume <= 0 {
		return 0.0
	}
	n := float64(volume)
	switch source {
	case models.SourceIncois, models.SourceLora:
		return math.Min(1.0, 0.8+0.1*math.Log10(n+1))
	case models.SourceCitizen:
		bonus := math.Min(0.45, 0.1*math.Sqrt(n/10))
		return math.Min(0.95, 0.25+0.25*math.Log10(n+1)+bonus)
	case models.SourceSocial:
		bonus := math.Min(0.35, 0.08*math.Sqrt(n/5))
		return math.Min(0.80, 0.15+0.20*math.Log10(n+1)+bonus)
	default:
		return math.Min(0.50, 0.10+0.15*math.Log10(n+1))
	}
}

// diversityBoost multiplies confidence when independent channels agree.
// High-value pairings (official + beacon, official + citizen) earn extra.
func diversityBoost(sourceConfs map[models.SourceKind][]float64) float64 {
	num := len(sourceConfs)
	if num <= 1 {
		return 1.0
	}

	var boost float64
	switch {
	case num == 2:
		boost = 1.5
	case num == 3:
		boost = 2.0
	default:
		boost = 2.5
	}

	_, hasIncois := sourceConfs[models.SourceIncois]
	_, hasCitizen := sourceConfs[models.SourceCitizen]
	_, hasLora := sourceConfs[models.SourceLora]
	if hasIncois {
		if hasCitizen {
			boost += 0.3
		}
		if hasLora {
			boost += 0.4
		}
	}
	if hasLora && hasCitizen {
		boost += 0.2
	}

	return math.Min(3.0, boost)
}

// mediaEvidenceBoost rewards visual evidence: +20% for any media, up to +50%
// more scaled by the verified ratio, and a volume bonus for multiple
// verified images.
func mediaEvidenceBoost(verified, total int) float64 {
	if total == 0 {
		return 1.0
	}
	ratio := float64(verified) / float64(total)
	boost := 1.2 * (1.0 + ratio*0.5)
	switch {
	case verified >= 3:
		boost *= 1.3
	case verified >= 2:
		boost *= 1.2
	}
	return math.Min(2.5, boost)
}

// weightedSeverity averages per-report severity (base 3, or the declared
// bulletin severity for incois, plus the classifier boost, capped at 5)
// weighted by source reliability x credibility.
func weightedSeverity(reports []models.Report) int {
	if len(reports) == 0 {
		return 1
	}

	var weightedSum, totalWeight, plainSum float64
	for i := range reports {
		r := &reports[i]
		base := 3
		if r.Source == models.SourceIncois && r.DeclaredSeverity > 0 {
			base = r.DeclaredSeverity
		}
		severity := base + r.SeverityBoost
		if severity > 5 {
			severity = 5
		}

		w := fusionWeight(r.Source) * r.Credibility
		weightedSum += float64(severity) * w
		totalWeight += w
		plainSum += float64(severity)
	}

	avg := plainSum / float64(len(reports))
	if totalWeight > 0 {
		avg = weightedSum / totalWeight
	}

	rounded := int(math.Round(avg))
	if rounded < 1 {
		return 1
	}
	if rounded > 5 {
		return 5
	}
	return rounded
}

// weightedCentroid averages coordinates weighted by source reliability x
// credibility, falling back to the plain mean when every weight is zero.
func weightedCentroid(reports []models.Report) (float64, float64) {
	if len(reports) == 0 {
		return 0.0, 0.0
	}

	var wLat, wLon, totalWeight float64
	for i := range reports {
		r := &reports[i]
		w := fusionWeight(r.Source) * r.Credibility
		wLat += r.Latitude * w
		wLon += r.Longitude * w
		totalWeight += w
	}
	if totalWeight > 0 {
		return wLat / totalWeight, wLon / totalWeight
	}

	var sumLat, sumLon float64
	for i := range reports {
		sumLat += reports[i].Latitude
		sumLon += reports[i].Longitude
	}
	n := float64(len(reports))
	return sumLat / n, sumLon / n
}

func determineStatus(confidence float64, kind models.HazardKind, hasLora bool) models.EventStatus {
	if hasLora || kind == models.KindEmergency {
		return models.StatusEmergency
	}
	if confidence >= emergencyThreshold {
		if kind == models.KindTsunami || kind == models.KindEarthquake {
			return models.StatusEmergency
		}
		return models.StatusConfirmed
	}
	if confidence >= autoAlertThreshold {
		return models.StatusConfirmed
	}
	if confidence >= reviewThreshold {
		return models.StatusPending
	}
	return models.StatusReview
}

func priorityScore(kind models.HazardKind, confidence float64, severity int) float64 {
	priority, ok := kindPriorities[kind]
	if !ok {
		priority = 0.3
	}
	return math.Min(1.0, priority*confidence*float64(severity)/5.0)
}

// buildEvidence assembles the provenance blob. Keywords are deduplicated
// across reports and sorted so identical inputs serialize identically.
func buildEvidence(reports []models.Report, stats models.GroupStats) models.Evidence {
	ev := models.Evidence{
		ReportCount:        len(reports),
		SourceDistribution: stats.SourceCounts,
		ConfidenceScores:   make([]float64, 0, len(reports)),
		CredibilityScores:  make([]float64, 0, len(reports)),
		ReportIDs:          make([]int64, 0, len(reports)),
		TimeRange:          models.EvidenceTimeRange{Earliest: stats.Earliest, Latest: stats.Latest},
		UniqueDescriptions: stats.Descriptions,
		KeywordsFound:      []string{},
	}
	if ev.SourceDistribution == nil {
		ev.SourceDistribution = map[string]int{}
	}
	if ev.UniqueDescriptions == nil {
		ev.UniqueDescriptions = []string{}
	}

	keywordSet := make(map[string]struct{})
	for i := range reports {
		r := &reports[i]
		ev.ConfidenceScores = append(ev.ConfidenceScores, r.NLPConfidence)
		ev.CredibilityScores = append(ev.CredibilityScores, r.Credibility)
		ev.ReportIDs = append(ev.ReportIDs, r.ID)
		for _, kw := range r.NLPKeywords {
			keywordSet[kw] = struct{}{}
		}
	}
	for kw := range keywordSet {
		ev.KeywordsFound = append(ev.KeywordsFound, kw)
	}
	sort.Strings(ev.KeywordsFound)

	return ev
}

func emptyEvidence() models.Evidence {
	return models.Evidence{
		SourceDistribution: map[string]int{},
		ConfidenceScores:   []float64{},
		CredibilityScores:  []float64{},
		ReportIDs:          []int64{},
		UniqueDescriptions: []string{},
		KeywordsFound:      []string{},
	}
}

// FusionExplanation renders a one-line operator summary of a snapshot, used
// in alert descriptions.
func FusionExplanation(s models.HazardSnapshot) string {
	parts := []string{fmt.Sprintf("Fused from %d report(s)", s.Evidence.ReportCount)}

	switch {
	case s.Confidence >= 0.8:
		parts = append(parts, "high confidence")
	case s.Confidence >= 0.6:
		parts = append(parts, "medium confidence")
	default:
		parts = append(parts, "low confidence")
	}

	if s.Kind != models.KindUnknown {
		parts = append(parts, fmt.Sprintf("classified as %s", s.Kind))
	}

	severityText := map[int]string{1: "low", 2: "low-medium", 3: "medium", 4: "high", 5: "critical"}
	text, ok := severityText[s.Severity]
	if !ok {
		text = "unknown"
	}
	parts = append(parts, text+" severity")

	switch s.Status {
	case models.StatusEmergency:
		parts = append(parts, "EMERGENCY status")
	case models.StatusConfirmed:
		parts = append(parts, "auto-confirmed")
	default:
		parts = append(parts, "requires review")
	}

	return strings.Join(parts, "; ")
}

func fusionWeight(source models.SourceKind) float64 {
	if w, ok := fusionSourceWeights[source]; ok {
		return w
	}
	return 0.3
}
