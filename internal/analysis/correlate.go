package analysis

import (
	"math"
	"strings"
	"time"

	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Correlation window: bulletins issued up to 72 h before the event was
// created still corroborate it (official feeds lag), and up to 6 h after
// (clock skew between feeds).
const (
	CorrelationWindowBefore  = 72 * time.Hour
	CorrelationWindowAfter   = 6 * time.Hour
	CorrelationBulletinLimit = 20
)

// relatedBulletinKinds maps an event kind to the bulletin kinds that
// corroborate it. Coastal hazards cascade, so a tsunami bulletin supports a
// flood event and vice versa.
var relatedBulletinKinds = map[models.HazardKind][]models.HazardKind{
	models.KindFlood:      {models.KindFlood, models.KindTsunami, models.KindTides},
	models.KindTsunami:    {models.KindTsunami, models.KindFlood, models.KindEarthquake},
	models.KindTides:      {models.KindTides, models.KindFlood, models.KindTsunami},
	models.KindEarthquake: {models.KindEarthquake, models.KindTsunami, models.KindLandslide},
	models.KindLandslide:  {models.KindLandslide, models.KindEarthquake},
	models.KindEmergency:  {models.KindTsunami, models.KindEarthquake, models.KindFlood, models.KindLandslide},
}

// CorrelateBulletins matches an event kind against bulletins from the
// correlation window. Matching bulletins suggest a confidence boost capped at
// 0.30; calm/clear bulletins against a seismic or emergency event suggest a
// 0.15 penalty. The suggestion is advisory and never persisted.
func CorrelateBulletins(kind models.HazardKind, bulletins []models.Bulletin) models.BulletinCorrelation {
	if len(bulletins) == 0 {
		return models.BulletinCorrelation{Type: "none"}
	}

	related, ok := relatedBulletinKinds[kind]
	if !ok {
		related = []models.HazardKind{kind}
	}

	var matching []models.Bulletin
	conflicting := 0
	for _, b := range bulletins {
		bKind := models.HazardKind(strings.ToLower(string(b.HazardKind)))
		switch {
		case kindIn(bKind, related) || bKind == kind:
			matching = append(matching, b)
		case isCalmKind(bKind) && seismicOrEmergency(kind):
			conflicting++
		}
	}

	if len(matching) > 0 {
		sevSum := 0
		for _, b := range matching {
			sevSum += b.Severity
		}
		avgSev := float64(sevSum) / float64(len(matching))

		baseBoost := 0.15 + (avgSev-1)*0.03
		matchBonus := math.Min(0.05, float64(len(matching))*0.02)

		typ := "confirmation"
		if avgSev >= 4 {
			typ = "high_severity_confirmation"
		}
		return models.BulletinCorrelation{
			Correlation:       1,
			Boost:             math.Min(0.30, baseBoost+matchBonus),
			Type:              typ,
			MatchingBulletins: len(matching),
			AvgSeverity:       avgSev,
		}
	}

	if conflicting > 0 {
		return models.BulletinCorrelation{
			Correlation:       -1,
			Boost:             -0.15,
			Type:              "contradiction",
			MatchingBulletins: conflicting,
		}
	}

	return models.BulletinCorrelation{Type: "none"}
}

func kindIn(kind models.HazardKind, set []models.HazardKind) bool {
	for _, k := range set {
		if k == kind {
			return true
		}
	}
	return false
}

func isCalmKind(kind models.HazardKind) bool {
	return kind == "calm" || kind == "clear"
}

func seismicOrEmergency(kind models.HazardKind) bool {
	return kind == models.KindEmergency || kind == models.KindEarthquake || kind == models.KindTsunami
}
