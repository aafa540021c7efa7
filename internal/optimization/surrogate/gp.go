// Package surrogate provides concrete Model implementations consumed by
// the optimization loop through the Model interface.
package surrogate

import (
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"seqopt/internal/optimization"
	"seqopt/internal/optimization/kernels"
)

const (
	// gpJitterStart is the first diagonal jitter tried when the kernel
	// matrix fails to factorize.
	gpJitterStart = 1e-12
	// gpJitterTries bounds the escalation ladder; each retry multiplies
	// the jitter by ten.
	gpJitterTries = 10
)

// GP is a Gaussian process regression surrogate over encoded points.
// It fits the first output column of the loop state and is safe for
// concurrent Predict calls; Update takes the write side of the lock.
type GP struct {
	mu sync.RWMutex

	kernel   kernels.Kernel
	noiseVar float64
	meanFunc func([]float64) float64

	// Training snapshot from the last successful Update.
	x     *mat.Dense
	alpha *mat.VecDense
	chol  *mat.Cholesky

	scratch predictScratchPool
	logger  *zap.Logger
}

// NewGP creates a Gaussian process surrogate with the given kernel and
// observation noise variance. A nil logger disables logging.
func NewGP(kernel kernels.Kernel, noiseVar float64, logger *zap.Logger) (*GP, error) {
	if kernel == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "gaussian process needs a kernel")
	}
	if noiseVar < 0 || math.IsNaN(noiseVar) {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "noise variance %v must be non-negative", noiseVar)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GP{
		kernel:   kernel,
		noiseVar: noiseVar,
		meanFunc: zeroMean,
		logger:   logger.Named("gaussian_process"),
	}, nil
}

// SetMean replaces the prior mean function. Must be called before the
// first Update.
func (g *GP) SetMean(m func([]float64) float64) {
	if m != nil {
		g.meanFunc = m
	}
}

// Update refits the process on the full evaluation record, implementing
// the loop's Model contract.
func (g *GP) Update(state *optimization.LoopState) error {
	if state == nil || state.Len() == 0 {
		return optimization.NewError(optimization.KindModelUpdateFailure, "cannot fit on an empty loop state")
	}
	X, Y := state.Matrices()
	n, _ := Y.Dims()
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y.SetVec(i, Y.At(i, 0))
	}
	return g.Fit(X, y)
}

// Fit trains the process on the given inputs and targets.
func (g *GP) Fit(X *mat.Dense, y *mat.VecDense) error {
	if X == nil || y == nil {
		return optimization.NewError(optimization.KindModelUpdateFailure, "fit needs both inputs and targets")
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return optimization.NewError(optimization.KindModelUpdateFailure, "fit needs a non-empty input matrix")
	}
	if yLen := y.Len(); yLen != nSamples {
		return optimization.NewErrorf(optimization.KindModelUpdateFailure, "X has %d samples but y has length %d", nSamples, yLen)
	}

	g.logger.Debug("fitting gaussian process",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
		zap.Float64("noise_var", g.noiseVar),
	)

	// Center the targets on the prior mean so predictions can add it
	// back.
	yc := mat.NewVecDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		yc.SetVec(i, y.AtVec(i)-g.meanFunc(X.RawRowView(i)))
	}

	K := g.kernelMatrix(X, nSamples)

	chol, jitter, err := factorizeWithJitter(K, g.logger)
	if err != nil {
		return err
	}
	if jitter > 0 {
		g.logger.Debug("kernel matrix needed jitter",
			zap.Float64("jitter", jitter),
			zap.Int("samples", nSamples),
		)
	}

	alpha := mat.NewVecDense(nSamples, nil)
	if err := chol.SolveVecTo(alpha, yc); err != nil {
		return optimization.WrapError(optimization.KindModelUpdateFailure, err, "solving for alpha")
	}

	g.mu.Lock()
	g.x = mat.DenseCopyOf(X)
	g.alpha = alpha
	g.chol = chol
	g.mu.Unlock()
	return nil
}

// kernelMatrix builds K(X, X) + noise on the diagonal.
func (g *GP) kernelMatrix(X *mat.Dense, n int) *mat.SymDense {
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		K.SetSym(i, i, g.kernel.Eval(xi, xi)+g.noiseVar)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, g.kernel.Eval(xi, X.RawRowView(j)))
		}
	}
	return K
}

// factorizeWithJitter attempts a Cholesky factorization, escalating a
// diagonal jitter tenfold per retry until the matrix factorizes or the
// ladder is exhausted. K's diagonal is modified in place.
func factorizeWithJitter(K *mat.SymDense, logger *zap.Logger) (*mat.Cholesky, float64, error) {
	n := K.SymmetricDim()
	var chol mat.Cholesky
	added := 0.0
	next := gpJitterStart
	for attempt := 0; attempt <= gpJitterTries; attempt++ {
		if attempt > 0 {
			bump := next - added
			for i := 0; i < n; i++ {
				K.SetSym(i, i, K.At(i, i)+bump)
			}
			added = next
			next *= 10
			logger.Debug("cholesky factorization failed, escalating jitter",
				zap.Int("attempt", attempt),
				zap.Float64("jitter", added),
			)
		}
		if chol.Factorize(K) {
			return &chol, added, nil
		}
	}
	return nil, added, optimization.NewErrorf(optimization.KindModelUpdateFailure,
		"kernel matrix is not positive definite after %d jitter attempts", gpJitterTries)
}

// Predict returns the posterior predictive mean and variance at the
// rows of X. The variance includes the observation noise and is
// clamped at zero when rounding drives it negative.
func (g *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	if X == nil {
		return nil, nil, optimization.NewError(optimization.KindInvalidValue, "predict needs an input matrix")
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.x == nil || g.alpha == nil || g.chol == nil {
		return nil, nil, optimization.NewError(optimization.KindModelUpdateFailure, "model has not been fitted")
	}

	nTest, nFeatures := X.Dims()
	nTrain, trainFeatures := g.x.Dims()
	if nFeatures != trainFeatures {
		return nil, nil, optimization.NewErrorf(optimization.KindDimensionMismatch, "input width %d, model trained on width %d", nFeatures, trainFeatures)
	}

	s := g.scratch.get(nTest, nTrain)
	defer g.scratch.put(s)

	kss := s.kss
	kstar := s.kstar
	for i := 0; i < nTest; i++ {
		xi := X.RawRowView(i)
		kss[i] = g.kernel.Eval(xi, xi) + g.noiseVar
		for j := 0; j < nTrain; j++ {
			kstar.Set(i, j, g.kernel.Eval(xi, g.x.RawRowView(j)))
		}
	}

	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(kstar, g.alpha)
	for i := 0; i < nTest; i++ {
		mean.SetVec(i, mean.AtVec(i)+g.meanFunc(X.RawRowView(i)))
	}

	// v = K^-1 K*^T via the stored factorization, then
	// var_i = kss_i - K*_i . v_i.
	if err := g.chol.SolveTo(s.v, kstar.T()); err != nil {
		return nil, nil, optimization.WrapError(optimization.KindModelUpdateFailure, err, "solving predictive covariance")
	}
	variance := mat.NewVecDense(nTest, nil)
	for i := 0; i < nTest; i++ {
		reduction := 0.0
		for j := 0; j < nTrain; j++ {
			reduction += kstar.At(i, j) * s.v.At(j, i)
		}
		v := kss[i] - reduction
		if v < 0 {
			g.logger.Warn("negative predictive variance, clamping to zero",
				zap.Float64("variance", v),
				zap.Int("test_point", i),
			)
			v = 0
		}
		variance.SetVec(i, v)
	}

	return mean, variance, nil
}

// zeroMean is the default prior mean.
func zeroMean([]float64) float64 { return 0 }
