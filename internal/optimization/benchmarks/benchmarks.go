// Package benchmarks provides synthetic objectives for exercising the
// optimization loop from tests and the job server.
package benchmarks

import (
	"fmt"
	"math"
	"sort"

	"seqopt/internal/optimization"
	"seqopt/internal/optimization/space"
)

// Benchmark couples an objective with the space it is defined over.
type Benchmark struct {
	Name      string
	Space     *space.Space
	Objective optimization.Objective
	// Optimum is the known best value, for reporting and tests.
	Optimum float64
}

var builders = map[string]func() (*Benchmark, error){
	"sphere":       func() (*Benchmark, error) { return Sphere(3) },
	"rosenbrock":   func() (*Benchmark, error) { return Rosenbrock(2) },
	"branin":       Branin,
	"mixed-sphere": MixedSphere,
}

// Lookup returns a fresh instance of the named benchmark.
func Lookup(name string) (*Benchmark, error) {
	build, ok := builders[name]
	if !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "unknown benchmark %q", name)
	}
	return build()
}

// Names lists the available benchmarks in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObjectiveFor returns the named objective bound to a caller-supplied
// space, for runs over custom spaces. Sphere and rosenbrock work on any
// encoded width; branin requires exactly two dimensions.
func ObjectiveFor(name string, s *space.Space) (optimization.Objective, error) {
	if s == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "objective needs a space")
	}
	switch name {
	case "sphere", "quadratic":
		return optimization.SingleObjective(sphereFunc), nil
	case "rosenbrock":
		if s.Width() < 2 {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "rosenbrock needs at least 2 dimensions, space has %d", s.Width())
		}
		return optimization.SingleObjective(rosenbrockFunc), nil
	case "branin":
		if s.Width() != 2 {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "branin is two-dimensional, space has width %d", s.Width())
		}
		return optimization.SingleObjective(braninFunc), nil
	default:
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "unknown objective %q", name)
	}
}

// Sphere is the convex bowl sum(x^2) over dims continuous dimensions in
// [-5.12, 5.12], with its optimum of 0 at the origin.
func Sphere(dims int) (*Benchmark, error) {
	if dims < 1 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "sphere needs at least 1 dimension, got %d", dims)
	}
	params := make([]space.Parameter, dims)
	for i := range params {
		p, err := space.NewContinuous(dimName(i), -5.12, 5.12)
		if err != nil {
			return nil, err
		}
		params[i] = p
	}
	s, err := space.New(params...)
	if err != nil {
		return nil, err
	}
	return &Benchmark{
		Name:      "sphere",
		Space:     s,
		Objective: optimization.SingleObjective(sphereFunc),
		Optimum:   0,
	}, nil
}

// Rosenbrock is the banana valley over dims continuous dimensions in
// [-2.048, 2.048], with its optimum of 0 at (1, ..., 1).
func Rosenbrock(dims int) (*Benchmark, error) {
	if dims < 2 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "rosenbrock needs at least 2 dimensions, got %d", dims)
	}
	params := make([]space.Parameter, dims)
	for i := range params {
		p, err := space.NewContinuous(dimName(i), -2.048, 2.048)
		if err != nil {
			return nil, err
		}
		params[i] = p
	}
	s, err := space.New(params...)
	if err != nil {
		return nil, err
	}
	return &Benchmark{
		Name:      "rosenbrock",
		Space:     s,
		Objective: optimization.SingleObjective(rosenbrockFunc),
		Optimum:   0,
	}, nil
}

// Branin is the classic two-dimensional test function on
// [-5, 10] x [0, 15] with three global minima of about 0.397887.
func Branin() (*Benchmark, error) {
	x1, err := space.NewContinuous("x1", -5, 10)
	if err != nil {
		return nil, err
	}
	x2, err := space.NewContinuous("x2", 0, 15)
	if err != nil {
		return nil, err
	}
	s, err := space.New(x1, x2)
	if err != nil {
		return nil, err
	}
	return &Benchmark{
		Name:      "branin",
		Space:     s,
		Objective: optimization.SingleObjective(braninFunc),
		Optimum:   0.3978873577,
	}, nil
}

// MixedSphere is a sphere whose scale and offset depend on a one-hot
// categorical mode, exercising mixed spaces end to end. Its optimum of
// 0 sits at the origin with mode "low".
func MixedSphere() (*Benchmark, error) {
	x1, err := space.NewContinuous("x1", -5, 5)
	if err != nil {
		return nil, err
	}
	x2, err := space.NewContinuous("x2", -5, 5)
	if err != nil {
		return nil, err
	}
	mode, err := space.NewCategorical("mode", []string{"low", "med", "high"}, space.OneHot{})
	if err != nil {
		return nil, err
	}
	s, err := space.New(x1, x2, mode)
	if err != nil {
		return nil, err
	}

	scale := map[string]float64{"low": 1, "med": 2, "high": 4}
	offset := map[string]float64{"low": 0, "med": 0.5, "high": 1}
	objective := optimization.SingleObjective(func(x []float64) (float64, error) {
		values, err := s.Decode(x)
		if err != nil {
			return 0, err
		}
		a := values["x1"].(float64)
		b := values["x2"].(float64)
		m := values["mode"].(string)
		return scale[m]*(a*a+b*b) + offset[m], nil
	})

	return &Benchmark{
		Name:      "mixed-sphere",
		Space:     s,
		Objective: objective,
		Optimum:   0,
	}, nil
}

func sphereFunc(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

func rosenbrockFunc(x []float64) (float64, error) {
	sum := 0.0
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum, nil
}

func braninFunc(x []float64) (float64, error) {
	const (
		a = 1.0
		r = 6.0
		s = 10.0
	)
	b := 5.1 / (4 * math.Pi * math.Pi)
	c := 5 / math.Pi
	t := 1 / (8 * math.Pi)
	x1, x2 := x[0], x[1]
	term := x2 - b*x1*x1 + c*x1 - r
	return a*term*term + s*(1-t)*math.Cos(x1) + s, nil
}

func dimName(i int) string {
	return fmt.Sprintf("x%d", i+1)
}
