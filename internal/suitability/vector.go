package suitability

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/golang/geo/s2"

	"github.com/abdullahx404/startsmart/internal/places"
)

const earthRadiusMeters = 6371000.0

// cellLevel is the S2 cell level used when the caller does not supply a
// cell identifier. Level 16 cells are roughly 300 m across, matching the
// granularity of the grid bookkeeping upstream of this subsystem.
const cellLevel = 16

// Lookup is the slice of the points-of-interest client the builder uses.
type Lookup interface {
	SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]places.Business, error)
}

// VectorBuilder reduces raw lookup results into a
// BusinessEnvironmentVector.
type VectorBuilder struct {
	lookup Lookup
}

func NewVectorBuilder(lookup Lookup) *VectorBuilder {
	return &VectorBuilder{lookup: lookup}
}

// searchKeywords lists every query issued per build, in fixed order so
// identical inputs always produce identical lookup traffic.
var searchKeywords = []string{
	"restaurant",
	"cafe",
	"gym",
	"office",
	"school",
	"university",
	"shopping mall",
	"hospital",
	"park",
	"transit station",
	"bank",
	"bar",
	"cinema",
	"main road",
}

// Build queries the lookup service around the point, deduplicates by
// place identifier, and derives the density, distance, and economic
// blocks. Zero results for a category yield count 0 and the sentinel
// distance, never an error. Any lookup failure aborts the build: a
// partial vector must never be scored.
func (b *VectorBuilder) Build(ctx context.Context, lat, lon float64, radiusMeters int, cellID string) (*BusinessEnvironmentVector, error) {
	if radiusMeters < MinRadiusMeters {
		radiusMeters = MinRadiusMeters
	}
	if radiusMeters > MaxRadiusMeters {
		radiusMeters = MaxRadiusMeters
	}

	seen := map[string]places.Business{}
	var order []string
	for _, keyword := range searchKeywords {
		results, err := b.lookup.SearchNearby(ctx, lat, lon, radiusMeters, keyword)
		if err != nil {
			return nil, &ExternalServiceError{Service: "places lookup", Err: err}
		}
		for _, biz := range results {
			if biz.PlaceID == "" {
				continue
			}
			if _, ok := seen[biz.PlaceID]; !ok {
				seen[biz.PlaceID] = biz
				order = append(order, biz.PlaceID)
			}
		}
	}

	all := make([]places.Business, 0, len(order))
	for _, id := range order {
		all = append(all, seen[id])
	}

	if cellID == "" {
		cellID = DeriveCellID(lat, lon)
	}

	vec := &BusinessEnvironmentVector{
		Latitude:        lat,
		Longitude:       lon,
		RadiusMeters:    radiusMeters,
		CellID:          cellID,
		Density:         countDensities(all),
		Distance:        nearestDistances(lat, lon, all),
		Economic:        deriveEconomics(all),
		TotalBusinesses: len(all),
	}
	return vec, nil
}

// DeriveCellID returns the S2 cell token for a coordinate at the
// configured grid level.
func DeriveCellID(lat, lon float64) string {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(cellLevel).ToToken()
}

// HaversineDistance is the great-circle distance between two points in
// meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}

func countDensities(all []places.Business) DensityCounts {
	var d DensityCounts
	for _, biz := range all {
		switch classify(biz.Category) {
		case "restaurant":
			d.Restaurants++
		case "cafe":
			d.Cafes++
		case "gym":
			d.Gyms++
		case "office":
			d.Offices++
		case "school":
			d.Schools++
		case "university":
			d.Universities++
		case "mall":
			d.Malls++
		case "healthcare":
			d.Healthcare++
		case "park":
			d.Parks++
		case "transit":
			d.TransitStops++
		case "bank":
			d.Banks++
		case "bar":
			d.Bars++
		}
	}
	return d
}

// classify maps the free-form category string the lookup service returns
// onto the fixed density buckets. Unknown categories count toward the
// total but no bucket.
func classify(category string) string {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "restaurant") || strings.Contains(c, "food"):
		return "restaurant"
	case strings.Contains(c, "cafe") || strings.Contains(c, "coffee"):
		return "cafe"
	case strings.Contains(c, "gym") || strings.Contains(c, "fitness"):
		return "gym"
	case strings.Contains(c, "office") || strings.Contains(c, "coworking"):
		return "office"
	case strings.Contains(c, "university") || strings.Contains(c, "college"):
		return "university"
	case strings.Contains(c, "school"):
		return "school"
	case strings.Contains(c, "mall") || strings.Contains(c, "shopping"):
		return "mall"
	case strings.Contains(c, "hospital") || strings.Contains(c, "clinic") || strings.Contains(c, "pharmacy") || strings.Contains(c, "health"):
		return "healthcare"
	case strings.Contains(c, "park") && !strings.Contains(c, "parking"):
		return "park"
	case strings.Contains(c, "transit") || strings.Contains(c, "station") || strings.Contains(c, "bus") || strings.Contains(c, "metro"):
		return "transit"
	case strings.Contains(c, "bank") || strings.Contains(c, "atm"):
		return "bank"
	case strings.Contains(c, "bar") || strings.Contains(c, "pub") || strings.Contains(c, "nightclub"):
		return "bar"
	case strings.Contains(c, "cinema") || strings.Contains(c, "movie"):
		return "cinema"
	case strings.Contains(c, "road") || strings.Contains(c, "highway"):
		return "main_road"
	default:
		return ""
	}
}

func nearestDistances(lat, lon float64, all []places.Business) AmenityDistances {
	nearest := func(bucket string) float64 {
		best := math.Inf(1)
		for _, biz := range all {
			if classify(biz.Category) != bucket {
				continue
			}
			if d := HaversineDistance(lat, lon, biz.Latitude, biz.Longitude); d < best {
				best = d
			}
		}
		if math.IsInf(best, 1) {
			return SentinelDistanceMeters
		}
		return best
	}

	return AmenityDistances{
		Mall:       nearest("mall"),
		Cinema:     nearest("cinema"),
		University: nearest("university"),
		Hospital:   nearest("healthcare"),
		Transit:    nearest("transit"),
		Park:       nearest("park"),
		MainRoad:   nearest("main_road"),
	}
}

// Thresholds for the coarse income tier classifier. The tier feeds rule
// conditions and must be stable across runs.
const (
	premiumRatingFloor  = 4.2
	economyRatingCeil   = 3.5
	highTierRatingFloor = 4.2
	highTierReviewFloor = 150.0
	midTierRatingFloor  = 3.6
)

func deriveEconomics(all []places.Business) EconomicProfile {
	var (
		ratingSum, reviewSum float64
		rated                int
		premium, economy     int
	)
	for _, biz := range all {
		if biz.Rating <= 0 && biz.ReviewCount <= 0 {
			continue
		}
		rated++
		ratingSum += biz.Rating
		reviewSum += float64(biz.ReviewCount)
		if biz.Rating >= premiumRatingFloor {
			premium++
		} else if biz.Rating > 0 && biz.Rating <= economyRatingCeil {
			economy++
		}
	}

	profile := EconomicProfile{IncomeTier: IncomeLow}
	if rated == 0 {
		profile.PremiumEconomyRatio = 0
		return profile
	}

	profile.AvgRating = round2(ratingSum / float64(rated))
	profile.AvgReviewCount = round2(reviewSum / float64(rated))
	if economy > 0 {
		profile.PremiumEconomyRatio = round2(float64(premium) / float64(economy))
	} else {
		profile.PremiumEconomyRatio = float64(premium)
	}

	switch {
	case profile.AvgRating >= highTierRatingFloor && profile.AvgReviewCount >= highTierReviewFloor:
		profile.IncomeTier = IncomeHigh
	case profile.AvgRating >= midTierRatingFloor:
		profile.IncomeTier = IncomeMid
	default:
		profile.IncomeTier = IncomeLow
	}
	return profile
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// sortedCategories returns registry keys in stable identifier order; the
// tie-break in best-category selection and every report iteration depend
// on it.
func sortedCategories[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
