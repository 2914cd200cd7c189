package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/abdullahx404/startsmart/internal/logging"
	"github.com/abdullahx404/startsmart/internal/suitability"
)

var validate = validator.New()

// recommendRequest is the wire shape shared by the fast, full, and
// debug entry points.
type recommendRequest struct {
	Lat      float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon      float64 `json:"lon" validate:"gte=-180,lte=180"`
	Radius   int     `json:"radius" validate:"omitempty,gte=100,lte=2000"`
	CellID   string  `json:"cell_id"`
	Category string  `json:"category"`
}

func (wr recommendRequest) toPipeline(mode suitability.Mode) suitability.Request {
	return suitability.Request{
		Latitude:     wr.Lat,
		Longitude:    wr.Lon,
		RadiusMeters: wr.Radius,
		CellID:       wr.CellID,
		Category:     wr.Category,
		Mode:         mode,
	}
}

type categoryWire struct {
	Score           float64  `json:"score"`
	Suitability     string   `json:"suitability"`
	Reasoning       string   `json:"reasoning"`
	PositiveFactors []string `json:"positive_factors"`
	Concerns        []string `json:"concerns"`
}

type recommendationWire struct {
	BestCategory string  `json:"best_category"`
	Score        float64 `json:"score"`
	Suitability  string  `json:"suitability"`
	Message      string  `json:"message"`
}

type analysisWire struct {
	ModelUsed             string   `json:"model_used"`
	TotalBusinessesNearby int      `json:"total_businesses_nearby"`
	ProcessingTimeMS      float64  `json:"processing_time_ms"`
	KeyFactors            []string `json:"key_factors,omitempty"`
	Risks                 []string `json:"risks,omitempty"`
}

type recommendResponse struct {
	CellID         string                  `json:"cell_id"`
	Mode           string                  `json:"mode"`
	RuleOnly       bool                    `json:"rule_only"`
	Recommendation recommendationWire      `json:"recommendation"`
	Categories     map[string]categoryWire `json:"categories"`
	Analysis       analysisWire            `json:"analysis"`
	HistoryID      string                  `json:"history_id,omitempty"`
}

func toWire(rec *suitability.CombinedRecommendation) recommendResponse {
	cats := make(map[string]categoryWire, len(rec.Categories))
	for name, cr := range rec.Categories {
		cats[name] = categoryWire{
			Score:           cr.FinalScore,
			Suitability:     string(cr.Suitability),
			Reasoning:       cr.Reasoning,
			PositiveFactors: cr.PositiveFactors,
			Concerns:        cr.Concerns,
		}
	}
	model := rec.ModelUsed
	if model == "" {
		model = "none"
	}
	return recommendResponse{
		CellID:   rec.CellID,
		Mode:     string(rec.Mode),
		RuleOnly: rec.RuleOnly(),
		Recommendation: recommendationWire{
			BestCategory: rec.Best.Category,
			Score:        rec.Best.Score,
			Suitability:  string(rec.Best.Suitability),
			Message:      rec.Best.Message,
		},
		Categories: cats,
		Analysis: analysisWire{
			ModelUsed:             model,
			TotalBusinessesNearby: rec.TotalBusinesses,
			ProcessingTimeMS:      float64(rec.Timing.Total.Microseconds()) / 1000.0,
			KeyFactors:            rec.KeyFactors,
			Risks:                 rec.Risks,
		},
	}
}

func decodeRecommendRequest(r *http.Request) (recommendRequest, error) {
	var wr recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
		return wr, &suitability.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	if err := validate.Struct(wr); err != nil {
		return wr, &suitability.ValidationError{Field: "body", Reason: err.Error()}
	}
	return wr, nil
}

func (s *Server) handleRecommend(mode suitability.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wr, err := decodeRecommendRequest(r)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		req := wr.toPipeline(mode)
		rec, err := s.pipeline.Recommend(r.Context(), req)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		resp := toWire(rec)
		if s.history != nil {
			id, saveErr := s.history.Save(r.Context(), req, rec)
			if saveErr != nil {
				logging.Warn().Err(saveErr).Msg("history save failed")
			} else {
				resp.HistoryID = id
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// debugResponse extends the standard response with the raw stage
// outputs and per-stage timing.
type debugResponse struct {
	recommendResponse
	Vector      *suitability.BusinessEnvironmentVector      `json:"vector"`
	RuleResults map[string]suitability.RuleEvaluationResult `json:"rule_results"`
	Contextual  *suitability.ContextualOutcome              `json:"contextual,omitempty"`
	TimingMS    map[string]float64                          `json:"timing_ms"`
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	wr, err := decodeRecommendRequest(r)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	d, err := s.pipeline.Debug(r.Context(), wr.toPipeline(suitability.ModeFull))
	if err != nil {
		writePipelineError(w, err)
		return
	}
	t := d.Recommendation.Timing
	writeJSON(w, http.StatusOK, debugResponse{
		recommendResponse: toWire(d.Recommendation),
		Vector:            d.Vector,
		RuleResults:       d.RuleResults,
		Contextual:        d.Contextual,
		TimingMS: map[string]float64{
			"build_vector": ms(t.BuildVector),
			"rules":        ms(t.Rules),
			"contextual":   ms(t.Contextual),
			"combine":      ms(t.Combine),
			"total":        ms(t.Total),
		},
	})
}

// batchRequest is the enveloped batch form. The documented request
// shape is a bare JSON array of items; the envelope is accepted as an
// extension so callers can set the mode. Per-item validation happens in
// the pipeline so one bad item fails alone instead of the whole batch.
type batchRequest struct {
	Mode  string             `json:"mode"`
	Items []recommendRequest `json:"items"`
}

type batchItemWire struct {
	Index  int                `json:"index"`
	Result *recommendResponse `json:"result,omitempty"`
	Error  *batchItemError    `json:"error,omitempty"`
}

type batchItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	br, err := decodeBatchRequest(r)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if len(br.Items) == 0 {
		writePipelineError(w, &suitability.ValidationError{Field: "items", Reason: "batch must contain at least one item"})
		return
	}
	if len(br.Items) > s.batchMaxItems {
		writePipelineError(w, &suitability.ValidationError{Field: "items", Reason: "batch exceeds maximum item count"})
		return
	}
	mode := suitability.Mode(br.Mode)
	if mode == "" {
		mode = suitability.ModeFast
	}

	reqs := make([]suitability.Request, len(br.Items))
	for i, item := range br.Items {
		reqs[i] = item.toPipeline(mode)
	}
	items := s.pipeline.RecommendBatch(r.Context(), reqs)

	out := make([]batchItemWire, len(items))
	for i, item := range items {
		out[i].Index = item.Index
		if item.Err != nil {
			out[i].Error = &batchItemError{Code: errorCode(item.Err), Message: item.Err.Error()}
			continue
		}
		resp := toWire(item.Recommendation)
		out[i].Result = &resp
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeBatchRequest accepts the documented bare-array form or the
// enveloped form carrying a mode.
func decodeBatchRequest(r *http.Request) (batchRequest, error) {
	var br batchRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		return br, &suitability.ValidationError{Field: "body", Reason: "read body: " + err.Error()}
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &br.Items); err != nil {
			return br, &suitability.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
		}
		return br, nil
	}
	if err := json.Unmarshal(trimmed, &br); err != nil {
		return br, &suitability.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	return br, nil
}

func errorCode(err error) string {
	switch {
	case isA[*suitability.ValidationError](err):
		return "validation_error"
	case isA[*suitability.ExternalServiceError](err):
		return "external_service_error"
	case isA[*suitability.PipelineTimeoutError](err):
		return "pipeline_timeout"
	case isA[*suitability.ContextualEvaluationFailure](err):
		return "contextual_evaluation_failure"
	default:
		return "internal_error"
	}
}

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
