package loop

import "math"

// Metrics is the progress view a stopping condition is checked against
// at the top of every iteration.
type Metrics struct {
	// Iterations completed in the current run.
	Iterations int
	// Evaluations recorded in the loop state, across all runs.
	Evaluations int
	// BestAcquisition is the best score of the previous iteration's
	// selection. It is +Inf before the first selection of a run, so
	// threshold conditions cannot fire on an empty run.
	BestAcquisition float64
}

// StoppingCondition decides when a run returns to idle. Conditions hold
// no per-run state, so the same value can govern consecutive runs.
type StoppingCondition interface {
	Done(m Metrics) bool
}

type fixedIterations int

// FixedIterations stops once the current run has completed n
// iterations.
func FixedIterations(n int) StoppingCondition {
	return fixedIterations(n)
}

func (f fixedIterations) Done(m Metrics) bool {
	return m.Iterations >= int(f)
}

type maxEvaluations int

// MaxEvaluations stops once the loop state holds at least n
// evaluations, counting those recorded by earlier runs and designs.
func MaxEvaluations(n int) StoppingCondition {
	return maxEvaluations(n)
}

func (f maxEvaluations) Done(m Metrics) bool {
	return m.Evaluations >= int(f)
}

type acquisitionBelow float64

// AcquisitionBelow stops once the best acquisition score of the
// previous iteration drops below threshold, signaling that the model
// expects no further improvement worth evaluating.
func AcquisitionBelow(threshold float64) StoppingCondition {
	return acquisitionBelow(threshold)
}

func (a acquisitionBelow) Done(m Metrics) bool {
	return !math.IsInf(m.BestAcquisition, 1) && m.BestAcquisition < float64(a)
}

type andCondition []StoppingCondition

// And stops only when every condition is satisfied.
func And(conds ...StoppingCondition) StoppingCondition {
	return andCondition(conds)
}

func (c andCondition) Done(m Metrics) bool {
	if len(c) == 0 {
		return false
	}
	for _, cond := range c {
		if !cond.Done(m) {
			return false
		}
	}
	return true
}

type orCondition []StoppingCondition

// Or stops as soon as any condition is satisfied.
func Or(conds ...StoppingCondition) StoppingCondition {
	return orCondition(conds)
}

func (c orCondition) Done(m Metrics) bool {
	for _, cond := range c {
		if cond.Done(m) {
			return true
		}
	}
	return false
}
