// Package jobs contains the background jobs driven by the scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/aristath/madfolio/internal/modules/returns"
	"github.com/aristath/madfolio/internal/modules/runs"
)

// ReoptimizeParams holds the optimization parameters applied to every set
// during a scheduled sweep. MaxPositions of 0 means the budget equals the
// asset count of each set, which leaves every gate open.
type ReoptimizeParams struct {
	Leverage     float64
	LowerBound   float64
	UpperBound   float64
	Tolerance    float64
	MaxPositions int
}

// ReoptimizeJob re-solves all three variants for every stored returns set
// and records the outcomes in the run history. Solve failures are recorded
// per run and do not fail the sweep; only storage faults do.
type ReoptimizeJob struct {
	service     *optimization.Service
	returnsRepo *returns.Repository
	runsRepo    *runs.Repository
	params      ReoptimizeParams
	log         zerolog.Logger
}

// NewReoptimizeJob creates a new re-optimization job
func NewReoptimizeJob(
	service *optimization.Service,
	returnsRepo *returns.Repository,
	runsRepo *runs.Repository,
	params ReoptimizeParams,
	log zerolog.Logger,
) *ReoptimizeJob {
	return &ReoptimizeJob{
		service:     service,
		returnsRepo: returnsRepo,
		runsRepo:    runsRepo,
		params:      params,
		log:         log.With().Str("job", "reoptimize").Logger(),
	}
}

// Name returns the job name
func (j *ReoptimizeJob) Name() string {
	return "reoptimize"
}

// Run performs one re-optimization sweep over all stored sets
func (j *ReoptimizeJob) Run() error {
	start := time.Now()

	sets, err := j.returnsRepo.List()
	if err != nil {
		return fmt.Errorf("list returns sets: %w", err)
	}
	if len(sets) == 0 {
		j.log.Debug().Msg("No returns sets to re-optimize")
		return nil
	}

	var failed int
	for _, set := range sets {
		if err := j.reoptimizeSet(set); err != nil {
			j.log.Error().
				Err(err).
				Str("set_id", set.ID).
				Str("set", set.Name).
				Msg("Re-optimization failed for set")
			failed++
		}
	}

	j.log.Info().
		Int("sets", len(sets)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Re-optimization sweep finished")

	if failed > 0 {
		return fmt.Errorf("re-optimization failed for %d of %d sets", failed, len(sets))
	}
	return nil
}

// reoptimizeSet solves all three variants for one set and records the runs
func (j *ReoptimizeJob) reoptimizeSet(set returns.SetSummary) error {
	rm, err := j.returnsRepo.GetMatrix(set.ID)
	if err != nil {
		return fmt.Errorf("load set: %w", err)
	}
	if rm == nil {
		return fmt.Errorf("set %s vanished while sweeping", set.ID)
	}

	maxPositions := j.params.MaxPositions
	if maxPositions <= 0 {
		maxPositions = rm.Assets()
	}

	params := optimization.AllParams{
		MinMAD: optimization.MinMADParams{
			Leverage:   j.params.Leverage,
			LowerBound: j.params.LowerBound,
			UpperBound: j.params.UpperBound,
		},
		Cardinality: optimization.CardinalityParams{
			Leverage:     j.params.Leverage,
			LowerBound:   j.params.LowerBound,
			UpperBound:   j.params.UpperBound,
			MaxPositions: maxPositions,
			Tolerance:    j.params.Tolerance,
		},
		Ratio: optimization.RatioParams{
			Leverage:   j.params.Leverage,
			LowerBound: j.params.LowerBound,
			UpperBound: j.params.UpperBound,
		},
	}

	start := time.Now()
	combined, err := j.service.OptimizeAll(context.Background(), rm, params)
	if err != nil {
		return fmt.Errorf("optimize set %s: %w", set.ID, err)
	}
	duration := time.Since(start)

	baseParams := map[string]interface{}{
		"leverage":    j.params.Leverage,
		"lower_bound": j.params.LowerBound,
		"upper_bound": j.params.UpperBound,
	}
	cardinalityParams := map[string]interface{}{
		"leverage":      j.params.Leverage,
		"lower_bound":   j.params.LowerBound,
		"upper_bound":   j.params.UpperBound,
		"max_positions": maxPositions,
		"tolerance":     j.params.Tolerance,
	}

	if err := j.recordOutcome(set.ID, rm, optimization.VariantMinMAD, baseParams, combined.MinMAD, duration); err != nil {
		return err
	}
	if err := j.recordOutcome(set.ID, rm, optimization.VariantCardinality, cardinalityParams, combined.Cardinality, duration); err != nil {
		return err
	}
	if err := j.recordOutcome(set.ID, rm, optimization.VariantRatio, baseParams, combined.Ratio, duration); err != nil {
		return err
	}

	return nil
}

// recordOutcome writes one run history record for a variant outcome
func (j *ReoptimizeJob) recordOutcome(
	setID string,
	rm *optimization.ReturnsMatrix,
	variant optimization.Variant,
	params map[string]interface{},
	outcome optimization.VariantOutcome,
	duration time.Duration,
) error {
	run := &runs.Run{
		SetID:      &setID,
		Variant:    string(variant),
		Parameters: params,
		DurationMS: duration.Milliseconds(),
	}

	if outcome.Err != nil {
		run.Status = runs.StatusFailed
		run.ErrorKind = optimization.KindOf(outcome.Err)
		run.ErrorMessage = outcome.Err.Error()
	} else {
		run.Status = runs.StatusOK
		run.Weights = outcome.Result.Weights
		risk := outcome.Result.Risk
		run.Risk = &risk
		if outcome.Result.Shrinkage != nil {
			shrinkage := *outcome.Result.Shrinkage
			run.Shrinkage = &shrinkage
		}
		if risk > 0 {
			ratio := rm.ExpectedReturn(outcome.Result.Weights) / risk
			run.Ratio = &ratio
		}
	}

	if err := j.runsRepo.Insert(run); err != nil {
		return fmt.Errorf("record %s run for set %s: %w", variant, setID, err)
	}
	return nil
}
