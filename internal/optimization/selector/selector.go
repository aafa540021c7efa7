// Package selector turns a model-bound acquisition function into the
// next batch of evaluation points. It optimizes the acquisition over
// the free dimensions of a possibly context-restricted space, splices
// fixed context values back into full-width vectors, and diversifies
// batches through local penalization.
package selector

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"seqopt/internal/optimization"
	"seqopt/internal/optimization/space"
)

const (
	// defaultRetries is how many fresh random restarts a failed pick
	// gets before OptimizationFailure surfaces.
	defaultRetries = 3
	// defaultPenaltyRadius is the fraction of the free-space bounding
	// box diagonal within which earlier picks suppress later ones.
	defaultPenaltyRadius = 0.01
	// dupTol is the free-space distance below which two candidates
	// count as the same point.
	dupTol = 1e-9
)

// Config tunes a Selector. The zero value is usable: restart count is
// derived from the free dimensionality, retries and penalty radius get
// defaults, and a time-seeded random source is created.
type Config struct {
	// Restarts overrides the number of optimizer starts per pick.
	Restarts int
	// Retries bounds how often a failed pick is retried with fresh
	// random starts.
	Retries int
	// PenaltyRadius is the fraction of the free-space bounding box
	// diagonal used for batch diversification.
	PenaltyRadius float64
	// Rand is the injected random source. Nil falls back to wall time.
	Rand *rand.Rand
	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// Selector optimizes acquisition functions over one parameter space.
type Selector struct {
	space         *space.Space
	rng           *rand.Rand
	logger        *zap.Logger
	restarts      int
	retries       int
	penaltyRadius float64
}

// New creates a selector for the given space.
func New(s *space.Space, cfg Config) (*Selector, error) {
	if s == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "selector needs a space")
	}
	if cfg.Restarts < 0 || cfg.Retries < 0 || cfg.PenaltyRadius < 0 {
		return nil, optimization.NewError(optimization.KindInvalidValue, "selector config values must be non-negative")
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.Retries
	if retries == 0 {
		retries = defaultRetries
	}
	radius := cfg.PenaltyRadius
	if radius == 0 {
		radius = defaultPenaltyRadius
	}
	return &Selector{
		space:         s,
		rng:           rng,
		logger:        logger.Named("selector"),
		restarts:      cfg.Restarts,
		retries:       retries,
		penaltyRadius: radius,
	}, nil
}

// Select produces the next batch of full-width candidates by maximizing
// acq over the dimensions left free by the fixed context. Candidates in
// a batch are mutually distinct in the free dimensions; later picks see
// earlier ones through a distance penalty. Optional hints seed the
// first optimizer starts, typically with the best point observed so
// far.
func (s *Selector) Select(ctx context.Context, acq optimization.AcquisitionFunction, fixed space.Context, batch int, hints ...[]float64) ([]optimization.Candidate, error) {
	if acq == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "select needs an acquisition function")
	}
	if batch < 1 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "batch size %d must be at least 1", batch)
	}

	bound, err := space.Bind(s.space, fixed)
	if err != nil {
		return nil, err
	}

	if bound.FreeWidth() == 0 {
		if batch > 1 {
			return nil, optimization.NewErrorf(optimization.KindInfeasibleContext,
				"context fixes every parameter, a batch of %d cannot be diverse", batch)
		}
		return s.fullyFixed(bound, acq)
	}

	radius := s.penaltyRadius * boxDiagonal(bound.Free().Bounds())
	freeHints := s.projectHints(bound, hints)

	picked := make([]optimization.Candidate, 0, batch)
	pickedFree := make([][]float64, 0, batch)
	for len(picked) < batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cand, freeVec, err := s.pickOne(ctx, acq, bound, pickedFree, radius, freeHints)
		if err != nil {
			return nil, err
		}
		picked = append(picked, cand)
		pickedFree = append(pickedFree, freeVec)
		// Hints only help the first pick; later picks explore away
		// from it anyway.
		freeHints = nil
	}
	return picked, nil
}

// fullyFixed handles the degenerate case of a context that pins every
// parameter: the one feasible point is the spliced template itself.
func (s *Selector) fullyFixed(bound *space.BoundContext, acq optimization.AcquisitionFunction) ([]optimization.Candidate, error) {
	full, err := bound.Splice(nil)
	if err != nil {
		return nil, err
	}
	if err := s.space.Validate(full); err != nil {
		return nil, err
	}
	score, err := acq.Evaluate(full)
	if err != nil {
		return nil, optimization.WrapError(optimization.KindOptimizationFailure, err, "scoring the fully fixed point")
	}
	return []optimization.Candidate{{X: full, Score: score}}, nil
}

// projectHints maps full-width hint vectors into repaired free-space
// starts, dropping any that do not fit the bound space.
func (s *Selector) projectHints(bound *space.BoundContext, hints [][]float64) [][]float64 {
	out := make([][]float64, 0, len(hints))
	for _, h := range hints {
		freeVec, err := bound.Project(h)
		if err != nil {
			continue
		}
		repaired, err := bound.Free().Repair(freeVec)
		if err != nil {
			continue
		}
		out = append(out, repaired)
	}
	return out
}

// pickOne retries the inner search with fresh random starts until it
// yields a feasible, non-duplicate candidate or the budget runs out.
func (s *Selector) pickOne(ctx context.Context, acq optimization.AcquisitionFunction, bound *space.BoundContext, prior [][]float64, radius float64, hints [][]float64) (optimization.Candidate, []float64, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return optimization.Candidate{}, nil, err
		}
		cand, freeVec, err := s.searchOnce(acq, bound, prior, radius, hints)
		if err == nil {
			return cand, freeVec, nil
		}
		lastErr = err
		// Hints did not produce a feasible point; retry on random
		// starts alone.
		hints = nil
		s.logger.Debug("candidate search restarting",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return optimization.Candidate{}, nil, optimization.WrapErrorf(optimization.KindOptimizationFailure, lastErr,
		"no feasible candidate after %d restarts", s.retries+1)
}

// searchOnce runs one multi-start Nelder-Mead maximization of the
// penalized acquisition over the free box. Starts run in parallel and
// are reduced to the best finite result.
func (s *Selector) searchOnce(acq optimization.AcquisitionFunction, bound *space.BoundContext, prior [][]float64, radius float64, hints [][]float64) (optimization.Candidate, []float64, error) {
	free := bound.Free()
	bounds := free.Bounds()
	freeW := free.Width()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			// Keep the simplex inside the box.
			for i := range x {
				x[i] = math.Max(bounds[i][0], math.Min(x[i], bounds[i][1]))
			}
			full, err := bound.Splice(x)
			if err != nil {
				return math.Inf(1)
			}
			score, err := acq.Evaluate(full)
			if err != nil {
				return math.Inf(1)
			}
			return -penalize(score, proximity(x, prior, radius))
		},
	}

	starts := s.makeStarts(free, freeW, hints)
	type result struct {
		x   []float64
		val float64
	}
	results := make([]result, len(starts))

	var wg sync.WaitGroup
	for i, start := range starts {
		wg.Add(1)
		go func(i int, start []float64) {
			defer wg.Done()
			results[i].val = math.Inf(1)
			settings := &optimize.Settings{
				Converger: &optimize.FunctionConverge{
					Absolute:   1e-6,
					Relative:   1e-6,
					Iterations: 100,
				},
			}
			method := &optimize.NelderMead{
				Reflection:  1.0,
				Expansion:   2.0,
				Contraction: 0.5,
				Shrink:      0.5,
				SimplexSize: 0.2,
			}
			res, err := optimize.Minimize(problem, start, settings, method)
			if err != nil || res == nil {
				return
			}
			results[i] = result{x: res.X, val: res.F}
		}(i, start)
	}
	wg.Wait()

	bestIdx := -1
	bestVal := math.Inf(1)
	for i, r := range results {
		if r.x != nil && r.val < bestVal {
			bestIdx, bestVal = i, r.val
		}
	}
	if bestIdx < 0 {
		return optimization.Candidate{}, nil, optimization.NewError(optimization.KindOptimizationFailure, "every optimizer start failed")
	}

	// Clamp the winning point, splice, and snap it onto the feasible
	// grid before rescoring.
	bestX := append([]float64(nil), results[bestIdx].x...)
	for i := range bestX {
		bestX[i] = math.Max(bounds[i][0], math.Min(bestX[i], bounds[i][1]))
	}
	full, err := bound.Splice(bestX)
	if err != nil {
		return optimization.Candidate{}, nil, err
	}
	repaired, err := s.space.Repair(full)
	if err != nil {
		return optimization.Candidate{}, nil, err
	}
	if err := s.space.Validate(repaired); err != nil {
		return optimization.Candidate{}, nil, err
	}

	freeVec, err := bound.Project(repaired)
	if err != nil {
		return optimization.Candidate{}, nil, err
	}
	for _, q := range prior {
		if euclidean(freeVec, q) <= dupTol {
			return optimization.Candidate{}, nil, optimization.NewError(optimization.KindOptimizationFailure, "candidate duplicates an earlier pick")
		}
	}

	score, err := acq.Evaluate(repaired)
	if err != nil {
		return optimization.Candidate{}, nil, optimization.WrapError(optimization.KindOptimizationFailure, err, "rescoring repaired candidate")
	}
	return optimization.Candidate{X: repaired, Score: score}, freeVec, nil
}

// makeStarts builds the start set: hints first, then uniform random
// points. The count follows 5 + 5*sqrt(dims) unless configured.
func (s *Selector) makeStarts(free *space.Space, freeW int, hints [][]float64) [][]float64 {
	nStarts := s.restarts
	if nStarts == 0 {
		nStarts = 5 + int(5*math.Sqrt(float64(freeW)))
	}
	if nStarts < len(hints) {
		nStarts = len(hints)
	}
	starts := make([][]float64, 0, nStarts)
	starts = append(starts, hints...)
	for len(starts) < nStarts {
		starts = append(starts, free.Sample(s.rng))
	}
	return starts
}

// proximity returns the multiplicative closeness factor in [0, 1] of x
// to the prior picks: 1 when clear of all of them, approaching 0 as x
// moves onto one.
func proximity(x []float64, prior [][]float64, radius float64) float64 {
	if radius <= 0 || len(prior) == 0 {
		return 1
	}
	p := 1.0
	for _, q := range prior {
		if d := euclidean(x, q); d < radius {
			p *= d / radius
		}
	}
	return p
}

// penalize pulls score down as p drops toward zero, monotone for both
// signs of score so penalized ordering stays meaningful for
// acquisitions that can go negative.
func penalize(score, p float64) float64 {
	if p >= 1 {
		return score
	}
	if p <= 0 {
		return math.Inf(-1)
	}
	if score >= 0 {
		return score * p
	}
	return score / p
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func boxDiagonal(bounds [][2]float64) float64 {
	sum := 0.0
	for _, b := range bounds {
		d := b[1] - b[0]
		sum += d * d
	}
	return math.Sqrt(sum)
}
