// Package handlers provides HTTP handlers for portfolio optimization requests.
// Every request either carries an inline returns matrix or references a stored
// returns set, and every solve attempt is recorded in the run history.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/aristath/madfolio/internal/modules/returns"
	"github.com/aristath/madfolio/internal/modules/runs"
)

// Defaults holds parameter values applied when a request omits them
type Defaults struct {
	Leverage   float64
	LowerBound float64
	UpperBound float64
	Tolerance  float64
}

// Handler handles optimization HTTP requests
type Handler struct {
	service     *optimization.Service
	returnsRepo *returns.Repository
	runsRepo    *runs.Repository
	defaults    Defaults
	log         zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(
	service *optimization.Service,
	returnsRepo *returns.Repository,
	runsRepo *runs.Repository,
	defaults Defaults,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:     service,
		returnsRepo: returnsRepo,
		runsRepo:    runsRepo,
		defaults:    defaults,
		log:         log.With().Str("handler", "optimization").Logger(),
	}
}

// optimizeRequest is the body of all optimization endpoints.
// Exactly one of set_id and the inline labels/returns pair must be given.
// Omitted parameters fall back to the configured defaults.
type optimizeRequest struct {
	SetID   string      `json:"set_id"`
	Labels  []string    `json:"labels"`
	Returns [][]float64 `json:"returns"`

	Leverage     *float64 `json:"leverage"`
	LowerBound   *float64 `json:"lower_bound"`
	UpperBound   *float64 `json:"upper_bound"`
	MaxPositions *int     `json:"max_positions"` // cardinality only
	Tolerance    *float64 `json:"tolerance"`     // cardinality only
}

// HandleOptimizeMinMAD handles POST /api/optimization/min-mad
func (h *Handler) HandleOptimizeMinMAD(w http.ResponseWriter, r *http.Request) {
	req, rm, setID, ok := h.decodeAndResolve(w, r)
	if !ok {
		return
	}

	params := h.minMADParams(req)

	start := time.Now()
	result, err := h.service.OptimizeMinMAD(r.Context(), rm, params)
	duration := time.Since(start)

	run := h.recordRun(rm, setID, optimization.VariantMinMAD, minMADParamsMap(params), result, err, duration)
	if err != nil {
		h.writeOptimizationError(w, err)
		return
	}

	h.writeResult(w, optimization.VariantMinMAD, rm, result, run)
}

// HandleOptimizeCardinality handles POST /api/optimization/cardinality
func (h *Handler) HandleOptimizeCardinality(w http.ResponseWriter, r *http.Request) {
	req, rm, setID, ok := h.decodeAndResolve(w, r)
	if !ok {
		return
	}

	if req.MaxPositions == nil {
		h.writeError(w, http.StatusBadRequest, "Field 'max_positions' is required for the cardinality variant")
		return
	}
	params := h.cardinalityParams(req)

	start := time.Now()
	result, err := h.service.OptimizeCardinality(r.Context(), rm, params)
	duration := time.Since(start)

	run := h.recordRun(rm, setID, optimization.VariantCardinality, cardinalityParamsMap(params), result, err, duration)
	if err != nil {
		h.writeOptimizationError(w, err)
		return
	}

	h.writeResult(w, optimization.VariantCardinality, rm, result, run)
}

// HandleOptimizeRatio handles POST /api/optimization/ratio
func (h *Handler) HandleOptimizeRatio(w http.ResponseWriter, r *http.Request) {
	req, rm, setID, ok := h.decodeAndResolve(w, r)
	if !ok {
		return
	}

	params := h.ratioParams(req)

	start := time.Now()
	result, err := h.service.OptimizeRatio(r.Context(), rm, params)
	duration := time.Since(start)

	run := h.recordRun(rm, setID, optimization.VariantRatio, ratioParamsMap(params), result, err, duration)
	if err != nil {
		h.writeOptimizationError(w, err)
		return
	}

	h.writeResult(w, optimization.VariantRatio, rm, result, run)
}

// HandleOptimizeAll handles POST /api/optimization/all.
// The three variants run concurrently and fail independently; the response
// always carries one entry per variant, holding either a result or an error.
func (h *Handler) HandleOptimizeAll(w http.ResponseWriter, r *http.Request) {
	req, rm, setID, ok := h.decodeAndResolve(w, r)
	if !ok {
		return
	}

	if req.MaxPositions == nil {
		h.writeError(w, http.StatusBadRequest, "Field 'max_positions' is required for the cardinality variant")
		return
	}

	params := optimization.AllParams{
		MinMAD:      h.minMADParams(req),
		Cardinality: h.cardinalityParams(req),
		Ratio:       h.ratioParams(req),
	}

	start := time.Now()
	combined, err := h.service.OptimizeAll(r.Context(), rm, params)
	duration := time.Since(start)
	if err != nil {
		h.writeOptimizationError(w, err)
		return
	}

	minMADRun := h.recordRun(rm, setID, optimization.VariantMinMAD, minMADParamsMap(params.MinMAD),
		combined.MinMAD.Result, combined.MinMAD.Err, duration)
	cardinalityRun := h.recordRun(rm, setID, optimization.VariantCardinality, cardinalityParamsMap(params.Cardinality),
		combined.Cardinality.Result, combined.Cardinality.Err, duration)
	ratioRun := h.recordRun(rm, setID, optimization.VariantRatio, ratioParamsMap(params.Ratio),
		combined.Ratio.Result, combined.Ratio.Err, duration)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"min_mad":     h.outcomePayload(rm, combined.MinMAD, minMADRun),
			"cardinality": h.outcomePayload(rm, combined.Cardinality, cardinalityRun),
			"ratio":       h.outcomePayload(rm, combined.Ratio, ratioRun),
		},
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// decodeAndResolve parses the request body and resolves the returns matrix,
// writing the error response itself when either step fails.
func (h *Handler) decodeAndResolve(w http.ResponseWriter, r *http.Request) (*optimizeRequest, *optimization.ReturnsMatrix, *string, bool) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, nil, nil, false
	}

	if req.SetID != "" {
		if len(req.Labels) > 0 || len(req.Returns) > 0 {
			h.writeError(w, http.StatusBadRequest, "Provide either 'set_id' or an inline matrix, not both")
			return nil, nil, nil, false
		}

		rm, err := h.returnsRepo.GetMatrix(req.SetID)
		if err != nil {
			h.log.Error().Err(err).Str("set_id", req.SetID).Msg("Failed to load returns set")
			h.writeError(w, http.StatusInternalServerError, "Failed to load returns set")
			return nil, nil, nil, false
		}
		if rm == nil {
			h.writeError(w, http.StatusNotFound, "Returns set not found")
			return nil, nil, nil, false
		}

		setID := req.SetID
		return &req, rm, &setID, true
	}

	rm, err := optimization.NewReturnsMatrix(req.Labels, req.Returns)
	if err != nil {
		h.writeOptimizationError(w, err)
		return nil, nil, nil, false
	}

	return &req, rm, nil, true
}

// Parameter assembly

func (h *Handler) minMADParams(req *optimizeRequest) optimization.MinMADParams {
	return optimization.MinMADParams{
		Leverage:   valueOr(req.Leverage, h.defaults.Leverage),
		LowerBound: valueOr(req.LowerBound, h.defaults.LowerBound),
		UpperBound: valueOr(req.UpperBound, h.defaults.UpperBound),
	}
}

func (h *Handler) cardinalityParams(req *optimizeRequest) optimization.CardinalityParams {
	maxPositions := 0
	if req.MaxPositions != nil {
		maxPositions = *req.MaxPositions
	}

	return optimization.CardinalityParams{
		Leverage:     valueOr(req.Leverage, h.defaults.Leverage),
		LowerBound:   valueOr(req.LowerBound, h.defaults.LowerBound),
		UpperBound:   valueOr(req.UpperBound, h.defaults.UpperBound),
		MaxPositions: maxPositions,
		Tolerance:    valueOr(req.Tolerance, h.defaults.Tolerance),
	}
}

func (h *Handler) ratioParams(req *optimizeRequest) optimization.RatioParams {
	return optimization.RatioParams{
		Leverage:   valueOr(req.Leverage, h.defaults.Leverage),
		LowerBound: valueOr(req.LowerBound, h.defaults.LowerBound),
		UpperBound: valueOr(req.UpperBound, h.defaults.UpperBound),
	}
}

func valueOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

func minMADParamsMap(p optimization.MinMADParams) map[string]interface{} {
	return map[string]interface{}{
		"leverage":    p.Leverage,
		"lower_bound": p.LowerBound,
		"upper_bound": p.UpperBound,
	}
}

func cardinalityParamsMap(p optimization.CardinalityParams) map[string]interface{} {
	return map[string]interface{}{
		"leverage":      p.Leverage,
		"lower_bound":   p.LowerBound,
		"upper_bound":   p.UpperBound,
		"max_positions": p.MaxPositions,
		"tolerance":     p.Tolerance,
	}
}

func ratioParamsMap(p optimization.RatioParams) map[string]interface{} {
	return map[string]interface{}{
		"leverage":    p.Leverage,
		"lower_bound": p.LowerBound,
		"upper_bound": p.UpperBound,
	}
}

// Run recording

// recordRun writes one run history record. Recording failures are logged
// but never fail the optimization response.
func (h *Handler) recordRun(
	rm *optimization.ReturnsMatrix,
	setID *string,
	variant optimization.Variant,
	params map[string]interface{},
	result *optimization.PortfolioResult,
	solveErr error,
	duration time.Duration,
) *runs.Run {
	run := &runs.Run{
		SetID:      setID,
		Variant:    string(variant),
		Parameters: params,
		DurationMS: duration.Milliseconds(),
	}

	if solveErr != nil {
		run.Status = runs.StatusFailed
		run.ErrorKind = optimization.KindOf(solveErr)
		run.ErrorMessage = solveErr.Error()
	} else {
		run.Status = runs.StatusOK
		run.Weights = result.Weights
		risk := result.Risk
		run.Risk = &risk
		if result.Shrinkage != nil {
			shrinkage := *result.Shrinkage
			run.Shrinkage = &shrinkage
		}
		if ratio, ok := returnOverRisk(rm, result); ok {
			run.Ratio = &ratio
		}
	}

	if err := h.runsRepo.Insert(run); err != nil {
		h.log.Error().Err(err).Str("variant", string(variant)).Msg("Failed to record optimization run")
	}

	return run
}

// returnOverRisk computes expected return over risk for the run record.
// Undefined when the portfolio MAD is zero.
func returnOverRisk(rm *optimization.ReturnsMatrix, result *optimization.PortfolioResult) (float64, bool) {
	if result.Risk <= 0 {
		return 0, false
	}
	return rm.ExpectedReturn(result.Weights) / result.Risk, true
}

// Responses

// writeResult writes the success payload for a single-variant endpoint
func (h *Handler) writeResult(
	w http.ResponseWriter,
	variant optimization.Variant,
	rm *optimization.ReturnsMatrix,
	result *optimization.PortfolioResult,
	run *runs.Run,
) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": h.resultPayload(rm, string(variant), result, run),
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"duration_ms": run.DurationMS,
		},
	})
}

// resultPayload builds the data object for one solved variant
func (h *Handler) resultPayload(
	rm *optimization.ReturnsMatrix,
	variant string,
	result *optimization.PortfolioResult,
	run *runs.Run,
) map[string]interface{} {
	data := map[string]interface{}{
		"variant":          variant,
		"weights":          result.Weights,
		"risk":             result.Risk,
		"expected_return":  rm.ExpectedReturn(result.Weights),
		"active_positions": result.ActivePositions(),
		"run_id":           run.ID,
	}
	if result.Shrinkage != nil {
		data["shrinkage"] = *result.Shrinkage
	}
	if run.Ratio != nil {
		data["ratio"] = *run.Ratio
	}

	return data
}

// outcomePayload builds the per-variant entry of the combined endpoint
func (h *Handler) outcomePayload(
	rm *optimization.ReturnsMatrix,
	outcome optimization.VariantOutcome,
	run *runs.Run,
) map[string]interface{} {
	if outcome.Err != nil {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"kind":    optimization.KindOf(outcome.Err),
				"message": outcome.Err.Error(),
			},
			"run_id": run.ID,
		}
	}

	return h.resultPayload(rm, run.Variant, outcome.Result, run)
}

// writeOptimizationError maps a typed optimization error onto an HTTP status
func (h *Handler) writeOptimizationError(w http.ResponseWriter, err error) {
	h.writeError(w, optimizationStatus(err), err.Error())
}

// optimizationStatus maps error kinds onto HTTP statuses: bad input is the
// client's fault, an unsolvable model is an unprocessable request, a timeout
// is a gateway timeout, and anything else is on us.
func optimizationStatus(err error) int {
	switch optimization.KindOf(err) {
	case optimization.ErrorKindInput:
		return http.StatusBadRequest
	case optimization.ErrorKindInfeasible, optimization.ErrorKindUnbounded, optimization.ErrorKindDegenerate:
		return http.StatusUnprocessableEntity
	case optimization.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
