package loop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIterationsCondition(t *testing.T) {
	stop := FixedIterations(3)

	assert.False(t, stop.Done(Metrics{Iterations: 0}))
	assert.False(t, stop.Done(Metrics{Iterations: 2}))
	assert.True(t, stop.Done(Metrics{Iterations: 3}))
	assert.True(t, stop.Done(Metrics{Iterations: 4}))
}

func TestMaxEvaluationsCondition(t *testing.T) {
	stop := MaxEvaluations(10)

	assert.False(t, stop.Done(Metrics{Evaluations: 9}))
	assert.True(t, stop.Done(Metrics{Evaluations: 10}))
	assert.True(t, stop.Done(Metrics{Evaluations: 25}))
}

func TestAcquisitionBelowCondition(t *testing.T) {
	stop := AcquisitionBelow(0.01)

	// +Inf marks "no selection yet" and must never fire.
	assert.False(t, stop.Done(Metrics{BestAcquisition: math.Inf(1)}))
	assert.False(t, stop.Done(Metrics{BestAcquisition: 0.5}))
	assert.False(t, stop.Done(Metrics{BestAcquisition: 0.01}))
	assert.True(t, stop.Done(Metrics{BestAcquisition: 0.005}))
	assert.True(t, stop.Done(Metrics{BestAcquisition: -1}))
}

func TestAndCondition(t *testing.T) {
	both := And(FixedIterations(3), MaxEvaluations(10))

	assert.False(t, both.Done(Metrics{Iterations: 3, Evaluations: 5}))
	assert.False(t, both.Done(Metrics{Iterations: 1, Evaluations: 20}))
	assert.True(t, both.Done(Metrics{Iterations: 3, Evaluations: 10}))

	// An empty conjunction never stops the loop.
	assert.False(t, And().Done(Metrics{Iterations: 100, Evaluations: 100}))
}

func TestOrCondition(t *testing.T) {
	either := Or(FixedIterations(3), MaxEvaluations(10))

	assert.True(t, either.Done(Metrics{Iterations: 3, Evaluations: 0}))
	assert.True(t, either.Done(Metrics{Iterations: 0, Evaluations: 10}))
	assert.False(t, either.Done(Metrics{Iterations: 2, Evaluations: 9}))

	assert.False(t, Or().Done(Metrics{Iterations: 100, Evaluations: 100}))
}

func TestNestedConditions(t *testing.T) {
	stop := Or(
		MaxEvaluations(100),
		And(FixedIterations(5), AcquisitionBelow(0.1)),
	)

	assert.False(t, stop.Done(Metrics{Iterations: 5, Evaluations: 10, BestAcquisition: 0.5}))
	assert.True(t, stop.Done(Metrics{Iterations: 5, Evaluations: 10, BestAcquisition: 0.05}))
	assert.True(t, stop.Done(Metrics{Iterations: 1, Evaluations: 100, BestAcquisition: math.Inf(1)}))
}
