package suitability

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/abdullahx404/startsmart/internal/places"
)

type mockLookup struct {
	byKeyword map[string][]places.Business
	err       error
	errOn     string
	calls     []string
}

func (m *mockLookup) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]places.Business, error) {
	m.calls = append(m.calls, keyword)
	if m.err != nil && (m.errOn == "" || m.errOn == keyword) {
		return nil, m.err
	}
	return m.byKeyword[keyword], nil
}

func biz(id, category string, lat, lon, rating float64, reviews int) places.Business {
	return places.Business{PlaceID: id, Name: id, Latitude: lat, Longitude: lon, Rating: rating, ReviewCount: reviews, Category: category}
}

func TestBuildDeduplicatesAcrossKeywords(t *testing.T) {
	shared := biz("p1", "gym", 40.4169, -3.7038, 4.5, 80)
	lookup := &mockLookup{byKeyword: map[string][]places.Business{
		"gym":    {shared, biz("p2", "fitness center", 40.4170, -3.7040, 4.0, 30)},
		"office": {shared},
	}}
	vec, err := NewVectorBuilder(lookup).Build(context.Background(), 40.4168, -3.7038, 500, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if vec.TotalBusinesses != 2 {
		t.Fatalf("total %d, want 2 after dedupe", vec.TotalBusinesses)
	}
	if vec.Density.Gyms != 2 {
		t.Fatalf("gyms %d, want 2", vec.Density.Gyms)
	}
}

func TestBuildEmptyAreaUsesSentinels(t *testing.T) {
	lookup := &mockLookup{byKeyword: map[string][]places.Business{}}
	vec, err := NewVectorBuilder(lookup).Build(context.Background(), 40.4168, -3.7038, 500, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if vec.TotalBusinesses != 0 {
		t.Fatalf("total %d, want 0", vec.TotalBusinesses)
	}
	if vec.Density.Gyms != 0 || vec.Density.Cafes != 0 {
		t.Fatal("empty area must yield zero counts")
	}
	for name, d := range map[string]float64{
		"mall":      vec.Distance.Mall,
		"cinema":    vec.Distance.Cinema,
		"transit":   vec.Distance.Transit,
		"main road": vec.Distance.MainRoad,
	} {
		if d != SentinelDistanceMeters {
			t.Errorf("%s distance %v, want sentinel", name, d)
		}
	}
	if vec.Economic.IncomeTier != IncomeLow {
		t.Fatalf("income tier %s, want low when nothing is rated", vec.Economic.IncomeTier)
	}
}

func TestBuildLookupFailureAbortsWholeVector(t *testing.T) {
	lookup := &mockLookup{
		byKeyword: map[string][]places.Business{"restaurant": {biz("p1", "restaurant", 40.41, -3.70, 4.0, 10)}},
		err:       errors.New("upstream 503"),
		errOn:     "university",
	}
	_, err := NewVectorBuilder(lookup).Build(context.Background(), 40.4168, -3.7038, 500, "")
	var ese *ExternalServiceError
	if !errors.As(err, &ese) {
		t.Fatalf("got %v, want ExternalServiceError", err)
	}
}

func TestBuildClampsRadius(t *testing.T) {
	lookup := &mockLookup{byKeyword: map[string][]places.Business{}}
	b := NewVectorBuilder(lookup)

	vec, _ := b.Build(context.Background(), 40.0, -3.0, 50, "")
	if vec.RadiusMeters != MinRadiusMeters {
		t.Fatalf("radius %d, want clamp to min %d", vec.RadiusMeters, MinRadiusMeters)
	}
	vec, _ = b.Build(context.Background(), 40.0, -3.0, 9000, "")
	if vec.RadiusMeters != MaxRadiusMeters {
		t.Fatalf("radius %d, want clamp to max %d", vec.RadiusMeters, MaxRadiusMeters)
	}
}

func TestBuildKeepsCallerCellID(t *testing.T) {
	lookup := &mockLookup{byKeyword: map[string][]places.Business{}}
	vec, _ := NewVectorBuilder(lookup).Build(context.Background(), 40.0, -3.0, 500, "caller-cell")
	if vec.CellID != "caller-cell" {
		t.Fatalf("cell id %q, want caller-cell", vec.CellID)
	}

	vec, _ = NewVectorBuilder(lookup).Build(context.Background(), 40.0, -3.0, 500, "")
	if vec.CellID == "" {
		t.Fatal("cell id should be derived when absent")
	}
	if vec.CellID != DeriveCellID(40.0, -3.0) {
		t.Fatalf("derived cell id %q mismatch", vec.CellID)
	}
}

func TestDeriveEconomicsIgnoresUnratedEntries(t *testing.T) {
	all := []places.Business{
		biz("p1", "restaurant", 40.41, -3.70, 4.6, 200),
		biz("p2", "restaurant", 40.41, -3.70, 4.4, 180),
		biz("p3", "restaurant", 40.41, -3.70, 0, 0), // no signal, skipped
		biz("p4", "restaurant", 40.41, -3.70, 3.0, 20),
	}
	profile := deriveEconomics(all)
	if profile.AvgRating != 4.0 {
		t.Fatalf("avg rating %v, want 4.0 over three rated entries", profile.AvgRating)
	}
	if profile.PremiumEconomyRatio != 2.0 {
		t.Fatalf("premium/economy %v, want 2.0", profile.PremiumEconomyRatio)
	}
	if profile.IncomeTier != IncomeMid {
		t.Fatalf("income tier %s, want mid at avg rating 4.0", profile.IncomeTier)
	}
}

func TestNearestDistancePicksClosest(t *testing.T) {
	center := [2]float64{40.4168, -3.7038}
	all := []places.Business{
		biz("far", "shopping mall", 40.4268, -3.7038, 4.0, 10),
		biz("near", "shopping mall", 40.4178, -3.7038, 4.0, 10),
	}
	d := nearestDistances(center[0], center[1], all)
	if d.Mall >= 200 || d.Mall <= 0 {
		t.Fatalf("nearest mall %v m, want the ~111 m neighbor", d.Mall)
	}
}

func TestHaversineDistance(t *testing.T) {
	// one degree of latitude is about 111.2 km
	d := HaversineDistance(40.0, -3.0, 41.0, -3.0)
	if math.Abs(d-111200) > 1500 {
		t.Fatalf("distance %v, want ~111.2 km", d)
	}
	if HaversineDistance(40.0, -3.0, 40.0, -3.0) != 0 {
		t.Fatal("zero distance expected for identical points")
	}
}

func TestClassifyBuckets(t *testing.T) {
	cases := map[string]string{
		"Fitness Center":  "gym",
		"Coffee Shop":     "cafe",
		"Parking Garage":  "",
		"Central Park":    "park",
		"Metro Station":   "transit",
		"Shopping Mall":   "mall",
		"Irish Pub":       "bar",
		"Dental Clinic":   "healthcare",
		"Highway Access":  "main_road",
		"Something Weird": "",
	}
	for in, want := range cases {
		if got := classify(in); got != want {
			t.Errorf("classify(%q) = %q, want %q", in, got, want)
		}
	}
}
