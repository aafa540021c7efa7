// Package loop orchestrates sequential model-based optimization: it
// ties a surrogate model, an acquisition function, a candidate selector,
// and the evaluation record together and runs the iterate-evaluate-
// update cycle until a stopping condition fires.
package loop

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"

	"seqopt/internal/optimization"
	"seqopt/internal/optimization/design"
	"seqopt/internal/optimization/space"
)

// ErrAlreadyRunning is returned by Run when another Run call on the
// same loop has not finished yet.
var ErrAlreadyRunning = errors.New("loop: already running")

// CandidateSelector produces the next batch of evaluation points from
// an acquisition function, honoring a per-run fixed context. Hints seed
// the selector's search, typically with the best point observed so far.
type CandidateSelector interface {
	Select(ctx context.Context, acq optimization.AcquisitionFunction, fixed space.Context, batch int, hints ...[]float64) ([]optimization.Candidate, error)
}

// Config assembles a Loop.
type Config struct {
	// Model is synchronized with the evaluation record after every
	// appended batch.
	Model optimization.Model
	// Acquisition scores candidate points; it must be bound to Model.
	Acquisition optimization.AcquisitionFunction
	// Selector turns the acquisition into concrete batches.
	Selector CandidateSelector
	// State is the evaluation record to grow. Nil starts empty.
	State *optimization.LoopState
	// BatchSize is the number of points selected and evaluated per
	// iteration. Zero means one.
	BatchSize int
	// Logger receives progress output. Nil disables logging.
	Logger *zap.Logger
}

// Result summarizes one completed run.
type Result struct {
	// Iterations completed by this run.
	Iterations int
	// Evaluations appended by this run.
	Evaluations int
	// Best is the best evaluation in the loop state, including rows
	// recorded by earlier runs.
	Best *optimization.Solution
}

// Loop is the optimization orchestrator. It is idle between Run calls
// and restartable: a later Run resumes from the accumulated state,
// possibly under a different fixed context.
type Loop struct {
	model  optimization.Model
	acq    optimization.AcquisitionFunction
	sel    CandidateSelector
	state  *optimization.LoopState
	batch  int
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// New assembles a loop from cfg.
func New(cfg Config) (*Loop, error) {
	if cfg.Model == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "loop needs a model")
	}
	if cfg.Acquisition == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "loop needs an acquisition function")
	}
	if cfg.Selector == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "loop needs a candidate selector")
	}
	if cfg.BatchSize < 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "batch size %d must not be negative", cfg.BatchSize)
	}
	batch := cfg.BatchSize
	if batch == 0 {
		batch = 1
	}
	state := cfg.State
	if state == nil {
		state = optimization.NewLoopState()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		model:  cfg.Model,
		acq:    cfg.Acquisition,
		sel:    cfg.Selector,
		state:  state,
		batch:  batch,
		logger: logger.Named("loop"),
	}, nil
}

// State returns the evaluation record the loop grows. Callers may read
// it concurrently with a run; snapshots are consistent.
func (l *Loop) State() *optimization.LoopState { return l.state }

// Running reports whether a run is in progress.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Run executes the iterate-evaluate-update cycle until stop fires, the
// context is canceled, or a collaborator fails. The fixed context
// applies to this run only; a later Run may supply a different one.
//
// Failure semantics: an objective failure discards the whole batch, so
// the state only ever holds fully evaluated batches. A model update
// failure keeps the already-evaluated batch and aborts before the next
// iteration. In both cases the returned Result reflects the progress
// that was kept.
func (l *Loop) Run(ctx context.Context, objective optimization.Objective, stop StoppingCondition, fixed space.Context) (*Result, error) {
	res := &Result{}
	if objective == nil {
		return res, optimization.NewError(optimization.KindInvalidValue, "run needs an objective")
	}
	if stop == nil {
		return res, optimization.NewError(optimization.KindInvalidValue, "run needs a stopping condition")
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return res, ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	// Bring the model up to date with observations recorded before
	// this run: a seeded design or a previous run's batches.
	if l.state.Len() > 0 {
		if err := l.model.Update(l.state); err != nil {
			return l.finish(res), wrapModelErr(err)
		}
	}

	metrics := Metrics{BestAcquisition: math.Inf(1)}
	for {
		if err := ctx.Err(); err != nil {
			return l.finish(res), err
		}

		metrics.Iterations = res.Iterations
		metrics.Evaluations = l.state.Len()
		if stop.Done(metrics) {
			break
		}

		var hints [][]float64
		if sol, ok := l.state.Best(); ok {
			hints = append(hints, sol.Parameters)
		}

		cands, err := l.sel.Select(ctx, l.acq, fixed, l.batch, hints...)
		if err != nil {
			return l.finish(res), err
		}

		X := make([][]float64, len(cands))
		bestScore := math.Inf(-1)
		for i, c := range cands {
			X[i] = c.X
			if c.Score > bestScore {
				bestScore = c.Score
			}
		}
		metrics.BestAcquisition = bestScore

		Y, err := objective(X)
		if err != nil {
			// All-or-nothing: none of this batch reaches the state.
			return l.finish(res), wrapObjectiveErr(err)
		}
		if len(Y) != len(X) {
			return l.finish(res), optimization.NewErrorf(optimization.KindObjectiveEvaluationFailure,
				"objective returned %d rows for %d inputs", len(Y), len(X))
		}

		if err := l.state.Append(X, Y); err != nil {
			return l.finish(res), err
		}
		res.Iterations++
		res.Evaluations += len(X)

		l.logger.Debug("iteration complete",
			zap.Int("iteration", res.Iterations),
			zap.Int("batch", len(X)),
			zap.Int("state_len", l.state.Len()),
			zap.Float64("best_acquisition", bestScore),
		)

		// The evaluations are already committed; an update failure
		// aborts before the next selection uses a stale model.
		if err := l.model.Update(l.state); err != nil {
			return l.finish(res), wrapModelErr(err)
		}
	}

	return l.finish(res), nil
}

func (l *Loop) finish(res *Result) *Result {
	if sol, ok := l.state.Best(); ok {
		res.Best = sol
	}
	return res
}

func wrapModelErr(err error) error {
	if optimization.KindOf(err) == optimization.KindModelUpdateFailure {
		return err
	}
	return optimization.WrapError(optimization.KindModelUpdateFailure, err, "model update failed")
}

func wrapObjectiveErr(err error) error {
	if optimization.KindOf(err) == optimization.KindObjectiveEvaluationFailure {
		return err
	}
	return optimization.WrapError(optimization.KindObjectiveEvaluationFailure, err, "objective evaluation failed")
}

// SeedState samples an initial design, evaluates it, and returns a
// state holding the results, ready to hand to a Loop.
func SeedState(ctx context.Context, d design.Design, s *space.Space, objective optimization.Objective, count int) (*optimization.LoopState, error) {
	if d == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "seeding needs a design")
	}
	if objective == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "seeding needs an objective")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	X, err := d.Sample(s, count)
	if err != nil {
		return nil, err
	}
	Y, err := objective(X)
	if err != nil {
		return nil, wrapObjectiveErr(err)
	}
	if len(Y) != len(X) {
		return nil, optimization.NewErrorf(optimization.KindObjectiveEvaluationFailure,
			"objective returned %d rows for %d inputs", len(Y), len(X))
	}
	return optimization.NewLoopStateFrom(X, Y)
}
