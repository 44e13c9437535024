package dispatch

import (
	"context"
	"math"
	"sort"

	"gorm.io/gorm"

	"RescueNet/internal/models"
	apperrors "RescueNet/pkg/errors"
	"RescueNet/pkg/metrics"
)

// MatchConfig controls the progressive radius search.
type MatchConfig struct {
	// RadiiKm are the search tiers, strictly increasing.
	RadiiKm []float64
	// MaxCandidates caps the result of each tier.
	MaxCandidates int
}

// DefaultMatchConfig returns the production tiers.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		RadiiKm:       []float64{1, 3, 5, 10},
		MaxCandidates: 10,
	}
}

func (c *MatchConfig) validate() error {
	if len(c.RadiiKm) == 0 {
		return apperrors.WithCode(apperrors.CodeInvalid, "matcher: no search radii configured")
	}
	prev := 0.0
	for _, r := range c.RadiiKm {
		if r <= prev {
			return apperrors.WithCode(apperrors.CodeInvalid, "matcher: radii must be strictly increasing")
		}
		prev = r
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 10
	}
	return nil
}

// Candidate is a matchable responder with their distance to the request.
type Candidate struct {
	Responder  models.Responder `json:"responder"`
	DistanceKm float64          `json:"distance_km"`
}

// Matcher selects candidate responders around a location. It never mutates
// anything; exclusion state comes from the Ledger.
type Matcher struct {
	db     *gorm.DB
	ledger *Ledger
	cfg    MatchConfig
}

func NewMatcher(db *gorm.DB, ledger *Ledger, cfg MatchConfig) (*Matcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Matcher{db: db, ledger: ledger, cfg: cfg}, nil
}

// FindCandidates walks the radius tiers and returns the first non-empty set
// of eligible responders, ordered by rating descending then distance
// ascending. Rejection filtering happens inside the tier loop, so a tier
// whose raw candidates have all declined does not stop the expansion.
// A store failure propagates; it is never folded into "no candidates".
func (m *Matcher) FindCandidates(ctx context.Context, req *models.EmergencyRequest) ([]Candidate, error) {
	for _, radius := range m.cfg.RadiiKm {
		candidates, err := m.searchRadius(ctx, req.Latitude, req.Longitude, radius)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			continue
		}

		filtered, err := m.ledger.FilterRejected(ctx, req.ID, candidates)
		if err != nil {
			return nil, err
		}
		if len(filtered) > 0 {
			metrics.MatchCandidates.Observe(float64(len(filtered)))
			return filtered, nil
		}
	}
	metrics.MatchCandidates.Observe(0)
	return nil, nil
}

// searchRadius queries verified, available responders within radiusKm.
// A coarse bounding box narrows the scan in SQL; exact distance is haversine.
func (m *Matcher) searchRadius(ctx context.Context, lat, lng, radiusKm float64) ([]Candidate, error) {
	latDelta := radiusKm / kmPerDegreeLat
	lngDelta := 180.0
	if cosLat := math.Cos(lat * math.Pi / 180.0); cosLat > 1e-6 {
		lngDelta = radiusKm / (kmPerDegreeLat * cosLat)
	}

	var responders []models.Responder
	err := m.db.WithContext(ctx).
		Where("verified = ? AND available = ?", true, true).
		Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta).
		Where("longitude BETWEEN ? AND ?", lng-lngDelta, lng+lngDelta).
		Find(&responders).Error
	if err != nil {
		return nil, apperrors.WrapCode(apperrors.CodeUnavailable, err, "responder lookup")
	}

	candidates := make([]Candidate, 0, len(responders))
	for _, r := range responders {
		d := haversineKm(lat, lng, r.Latitude, r.Longitude)
		if d <= radiusKm {
			candidates = append(candidates, Candidate{Responder: r, DistanceKm: d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Responder.Rating != candidates[j].Responder.Rating {
			return candidates[i].Responder.Rating > candidates[j].Responder.Rating
		}
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	if len(candidates) > m.cfg.MaxCandidates {
		candidates = candidates[:m.cfg.MaxCandidates]
	}
	return candidates, nil
}

const kmPerDegreeLat = 111.0

// haversineKm is the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0
	la1 := lat1 * math.Pi / 180.0
	la2 := lat2 * math.Pi / 180.0
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(la1)*math.Cos(la2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
