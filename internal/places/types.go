// Package places is the client for the points-of-interest lookup
// service. The service is a black box: this package encodes only the
// wire contract the pipeline depends on.
package places

// Business is one record returned by the lookup service. Rating and
// ReviewCount are zero when the service has no data for them; consumers
// that derive economic indicators must skip records missing both.
type Business struct {
	PlaceID     string  `json:"place_id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	Category    string  `json:"category"`
}

type searchResponse struct {
	Results []Business `json:"results"`
	Status  string     `json:"status"`
}
