// Package server exposes the optimization loop as an HTTP service with
// REST and JSON-RPC 2.0 surfaces. Jobs run in background goroutines and
// are observable and cancellable while they run.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"seqopt/internal/config"
	errs "seqopt/internal/errors"
	"seqopt/internal/logging"
	"seqopt/internal/optimization"
	"seqopt/internal/optimization/acquisition"
	"seqopt/internal/optimization/benchmarks"
	"seqopt/internal/optimization/design"
	"seqopt/internal/optimization/kernels"
	"seqopt/internal/optimization/loop"
	"seqopt/internal/optimization/selector"
	"seqopt/internal/optimization/space"
	"seqopt/internal/optimization/surrogate"
)

// Logger defines the logging interface used by the server.
// This allows us to be flexible with our logging implementation.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Job lifecycle states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Default acquisition parameters for jobs that don't override them.
const (
	defaultXi   = 0.01
	defaultBeta = 2.0
)

var errJobNotFound = errs.New("optimization not found")

// Job tracks one optimization run from submission to a terminal state.
// All field access goes through the server's job lock; the loop state
// behind Loop has its own synchronization.
type Job struct {
	ID          string
	Status      string
	Objective   string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Err         string

	Loop   *loop.Loop
	Cancel context.CancelFunc
	Result *loop.Result

	// Target is the planned number of evaluations, for progress
	// reporting.
	Target int
}

// OptimizeRequest is the wire form of a job submission, shared by the
// REST and JSON-RPC surfaces. A request names either a preset or an
// objective; explicit fields override preset values.
type OptimizeRequest struct {
	Preset        string                 `json:"preset,omitempty"`
	Objective     string                 `json:"objective,omitempty"`
	Space         []config.ParameterSpec `json:"space,omitempty"`
	Iterations    int                    `json:"iterations,omitempty"`
	BatchSize     int                    `json:"batch_size,omitempty"`
	InitialPoints int                    `json:"initial_points,omitempty"`
	Acquisition   string                 `json:"acquisition,omitempty"`
	Kernel        string                 `json:"kernel,omitempty"`
	Seed          int64                  `json:"seed,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

// jobSpec is a fully resolved request: concrete space and objective,
// defaults applied, context validated.
type jobSpec struct {
	name          string
	space         *space.Space
	objective     optimization.Objective
	fixed         space.Context
	iterations    int
	batchSize     int
	initialPoints int
	acquisition   string
	kernel        string
	rng           *rand.Rand
}

// Server manages optimization jobs and serves their REST and JSON-RPC
// endpoints.
type Server struct {
	cfg     *config.Config
	logger  Logger
	zlog    *zap.Logger
	presets map[string]config.Preset
	metrics *Metrics

	jobs   map[string]*Job
	jobsMu sync.RWMutex
	seq    uint64
}

// NewServer creates a new server instance. The zap logger feeds the
// optimization packages; nil disables their output.
func NewServer(cfg *config.Config, logger Logger, zlog *zap.Logger) *Server {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		zlog:    zlog,
		presets: make(map[string]config.Preset),
		jobs:    make(map[string]*Job),
	}
}

// SetPresets installs the named problem presets served by the API.
func (s *Server) SetPresets(presets map[string]config.Preset) {
	if presets == nil {
		presets = make(map[string]config.Preset)
	}
	s.presets = presets
}

// SetMetrics installs the Prometheus instruments. A nil receiver stays
// valid; every metric call is a no-op without instruments.
func (s *Server) SetMetrics(m *Metrics) {
	s.metrics = m
}

// RegisterRoutes mounts the API onto the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/presets", s.handlePresets)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil, nil)
		return
	}
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", request.ID, nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimize.start":
		var req OptimizeRequest
		if perr := decodeParams(request.Params, &req); perr != nil {
			s.respondWithError(w, -32602, "Invalid params", request.ID, perr.Error())
			return
		}
		result, err = s.startJob(req)
	case "optimize.status":
		var req struct {
			ID string `json:"optimization_id"`
		}
		if perr := decodeParams(request.Params, &req); perr != nil {
			s.respondWithError(w, -32602, "Invalid params", request.ID, perr.Error())
			return
		}
		result, err = s.jobStatus(req.ID)
	case "optimize.cancel":
		var req struct {
			ID string `json:"optimization_id"`
		}
		if perr := decodeParams(request.Params, &req); perr != nil {
			s.respondWithError(w, -32602, "Invalid params", request.ID, perr.Error())
			return
		}
		err = s.cancelJob(req.ID)
		if err == nil {
			result = map[string]interface{}{"status": StatusCancelled}
		}
	case "optimize.presets":
		result = s.presetsPayload()
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		s.respondWithError(w, -32000, "Server error", request.ID, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts JSON-RPC params either as an object or as a
// single-element positional array.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Errorf("missing required parameters")
	}
	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return fmt.Errorf("missing required parameters")
		}
		trimmed = arr[0]
	}
	return json.Unmarshal(trimmed, dst)
}

// startJob resolves and assembles a submission, then runs it in the
// background. It returns the payload confirming the accepted job.
func (s *Server) startJob(req OptimizeRequest) (map[string]interface{}, error) {
	spec, err := s.resolveRequest(req)
	if err != nil {
		return nil, err
	}
	job, err := s.buildJob(spec)
	if err != nil {
		return nil, errs.Wrap(err, "assembling optimization").WithComponent("server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.Cancel = cancel

	s.jobsMu.Lock()
	s.seq++
	job.ID = fmt.Sprintf("opt_%d", s.seq)
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	s.logger.Info("optimization accepted", map[string]interface{}{
		"optimization_id": job.ID,
		"objective":       spec.name,
		"iterations":      spec.iterations,
		"batch_size":      spec.batchSize,
	})

	go s.runOptimization(ctx, job, spec)

	return map[string]interface{}{
		"optimization_id": job.ID,
		"status":          job.Status,
	}, nil
}

// resolveRequest applies the preset, fills defaults from the service
// configuration, and materializes the space, objective, and context.
func (s *Server) resolveRequest(req OptimizeRequest) (*jobSpec, error) {
	if req.Preset != "" {
		preset, ok := s.presets[req.Preset]
		if !ok {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "unknown preset %q", req.Preset)
		}
		req = overlayPreset(preset, req)
	}
	if req.Objective == "" {
		return nil, optimization.NewError(optimization.KindInvalidValue, "an objective is required")
	}
	if req.Iterations < 0 || req.BatchSize < 0 || req.InitialPoints < 0 {
		return nil, optimization.NewError(optimization.KindInvalidValue, "iterations, batch_size, and initial_points must be non-negative")
	}

	var (
		spc *space.Space
		obj optimization.Objective
		err error
	)
	if len(req.Space) > 0 {
		spc, err = config.BuildSpace(req.Space)
		if err != nil {
			return nil, err
		}
		obj, err = benchmarks.ObjectiveFor(req.Objective, spc)
		if err != nil {
			return nil, err
		}
	} else {
		bench, berr := benchmarks.Lookup(req.Objective)
		if berr != nil {
			return nil, berr
		}
		spc, obj = bench.Space, bench.Objective
	}

	// Validate the fixed context at submission so a bad request fails
	// here instead of inside the job.
	fixed := space.Context(req.Context)
	if len(fixed) > 0 {
		if _, err := space.Bind(spc, fixed); err != nil {
			return nil, err
		}
	}

	spec := &jobSpec{
		name:          req.Objective,
		space:         spc,
		objective:     obj,
		fixed:         fixed,
		iterations:    req.Iterations,
		batchSize:     req.BatchSize,
		initialPoints: req.InitialPoints,
		acquisition:   req.Acquisition,
		kernel:        req.Kernel,
	}
	if req.Preset != "" {
		spec.name = req.Preset
	}
	if spec.iterations == 0 {
		spec.iterations = s.cfg.Optimization.MaxIterations
	}
	if spec.batchSize == 0 {
		spec.batchSize = s.cfg.Optimization.BatchSize
	}
	if spec.initialPoints == 0 {
		spec.initialPoints = s.cfg.Optimization.InitialPoints
	}
	if spec.acquisition == "" {
		spec.acquisition = "ei"
	}
	if spec.kernel == "" {
		spec.kernel = "matern52"
	}
	if req.Seed != 0 {
		spec.rng = rand.New(rand.NewSource(req.Seed))
	} else {
		spec.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return spec, nil
}

// overlayPreset merges a preset under a request: request fields win
// when set, preset fields fill the gaps.
func overlayPreset(p config.Preset, req OptimizeRequest) OptimizeRequest {
	if req.Objective == "" {
		req.Objective = p.Objective
	}
	if len(req.Space) == 0 {
		req.Space = p.Space
	}
	if req.Iterations == 0 {
		req.Iterations = p.Iterations
	}
	if req.BatchSize == 0 {
		req.BatchSize = p.BatchSize
	}
	if req.InitialPoints == 0 {
		req.InitialPoints = p.InitialPoints
	}
	if req.Acquisition == "" {
		req.Acquisition = p.Acquisition
	}
	if req.Kernel == "" {
		req.Kernel = p.Kernel
	}
	if req.Seed == 0 {
		req.Seed = p.Seed
	}
	if req.Context == nil {
		req.Context = p.Context
	}
	return req
}

// buildJob assembles the surrogate, acquisition, selector, and loop for
// a resolved spec. The loop state starts empty; the runner seeds it.
func (s *Server) buildJob(spec *jobSpec) (*Job, error) {
	var (
		kern kernels.Kernel
		err  error
	)
	switch spec.kernel {
	case "rbf":
		kern, err = kernels.NewRBF(1.0, 1.0)
	case "matern52":
		kern, err = kernels.NewMatern52(1.0, 1.0)
	default:
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "unknown kernel %q", spec.kernel)
	}
	if err != nil {
		return nil, err
	}

	gp, err := surrogate.NewGP(kern, s.cfg.Optimization.NoiseVariance, s.zlog)
	if err != nil {
		return nil, err
	}

	st := optimization.NewLoopState()

	var acq optimization.AcquisitionFunction
	switch spec.acquisition {
	case "ei":
		acq, err = acquisition.NewExpectedImprovement(gp, st, defaultXi)
	case "ucb":
		acq, err = acquisition.NewUpperConfidenceBound(gp, defaultBeta)
	case "pi":
		acq, err = acquisition.NewProbabilityOfImprovement(gp, st, defaultXi)
	default:
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "unknown acquisition %q", spec.acquisition)
	}
	if err != nil {
		return nil, err
	}

	sel, err := selector.New(spec.space, selector.Config{
		Restarts: s.cfg.Optimization.Restarts,
		Rand:     spec.rng,
		Logger:   s.zlog,
	})
	if err != nil {
		return nil, err
	}

	l, err := loop.New(loop.Config{
		Model:       gp,
		Acquisition: acq,
		Selector:    sel,
		State:       st,
		BatchSize:   spec.batchSize,
		Logger:      s.zlog,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Job{
		Status:      StatusPending,
		Objective:   spec.name,
		StartTime:   now,
		LastUpdated: now,
		Loop:        l,
		Target:      spec.initialPoints + spec.iterations*spec.batchSize,
	}, nil
}

// runOptimization executes one job in a goroutine: seed the state with
// an initial design, then run the loop until the iteration budget.
func (s *Server) runOptimization(ctx context.Context, job *Job, spec *jobSpec) {
	start := time.Now()

	s.jobsMu.Lock()
	job.Status = StatusRunning
	job.LastUpdated = time.Now()
	s.jobsMu.Unlock()
	s.metrics.jobStarted()

	seeded, err := loop.SeedState(ctx, design.NewLatin(spec.rng), spec.space, spec.objective, spec.initialPoints)
	if err != nil {
		s.finishJob(job, nil, err, start)
		return
	}
	X, Y := seeded.Snapshot()
	if err := job.Loop.State().Append(X, Y); err != nil {
		s.finishJob(job, nil, err, start)
		return
	}

	res, err := job.Loop.Run(ctx, spec.objective, loop.FixedIterations(spec.iterations), spec.fixed)
	s.finishJob(job, res, err, start)
}

// finishJob records the terminal state of a job. A job already marked
// cancelled keeps that status regardless of how the run returned.
func (s *Server) finishJob(job *Job, res *loop.Result, err error, start time.Time) {
	s.jobsMu.Lock()

	job.Result = res
	switch {
	case job.Status == StatusCancelled:
		// Cancellation won the race; keep it.
	case err != nil && stderrors.Is(err, context.Canceled):
		job.Status = StatusCancelled
	case err != nil:
		job.Status = StatusFailed
		job.Err = err.Error()
	default:
		job.Status = StatusCompleted
	}
	if job.EndTime == nil {
		now := time.Now()
		job.EndTime = &now
	}
	job.LastUpdated = time.Now()

	id, status := job.ID, job.Status
	s.jobsMu.Unlock()

	s.metrics.jobFinished(status, time.Since(start))
	if res != nil {
		s.metrics.addEvaluations(res.Evaluations)
	}

	fields := map[string]interface{}{
		"optimization_id": id,
		"status":          status,
	}
	if res != nil {
		fields["iterations"] = res.Iterations
		fields["evaluations"] = res.Evaluations
		if res.Best != nil {
			fields["best_value"] = res.Best.Value
		}
	}
	if err != nil {
		s.logger.Error("optimization finished with error", mergeFields(fields, map[string]interface{}{
			"error": err.Error(),
		}))
		return
	}
	s.logger.Info("optimization finished", fields)
}

func mergeFields(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// jobStatus builds the status payload for one job, including the best
// solution so far and the full evaluation history.
func (s *Server) jobStatus(id string) (map[string]interface{}, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errJobNotFound
	}

	response := map[string]interface{}{
		"optimization_id": job.ID,
		"status":          job.Status,
		"objective":       job.Objective,
		"start_time":      job.StartTime.Format(time.RFC3339),
		"last_update":     job.LastUpdated.Format(time.RFC3339),
	}
	if job.EndTime != nil {
		response["end_time"] = job.EndTime.Format(time.RFC3339)
	}
	if job.Err != "" {
		response["error"] = job.Err
	}

	state := job.Loop.State()
	n := state.Len()
	response["evaluations"] = n

	progress := 0.0
	if job.Status == StatusCompleted {
		progress = 1.0
	} else if job.Target > 0 {
		progress = float64(n) / float64(job.Target)
		if progress > 1 {
			progress = 1.0
		}
	}
	response["progress"] = progress

	if sol, ok := state.Best(); ok {
		response["best"] = map[string]interface{}{
			"parameters": sol.Parameters,
			"value":      sol.Value,
		}
	}

	if job.Result != nil {
		response["iterations"] = job.Result.Iterations
	}

	X, Y := state.Snapshot()
	history := make([]map[string]interface{}, len(X))
	for i := range X {
		history[i] = map[string]interface{}{
			"parameters": X[i],
			"values":     Y[i],
		}
	}
	response["history"] = history

	return response, nil
}

// cancelJob cancels a running job. Terminal jobs cannot be cancelled.
func (s *Server) cancelJob(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errJobNotFound
	}

	switch job.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return optimization.NewErrorf(optimization.KindInvalidValue, "cannot cancel optimization with status %s", job.Status)
	}

	if job.Cancel != nil {
		job.Cancel()
	}
	job.Status = StatusCancelled
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now

	s.logger.Info("optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// presetsPayload lists the installed presets and built-in objectives.
func (s *Server) presetsPayload() map[string]interface{} {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return map[string]interface{}{
		"presets":    names,
		"objectives": benchmarks.Names(),
	}
}

// respondWithError sends a JSON-RPC 2.0 error response.
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data interface{}) {
	s.logger.Error("rpc error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		errObj["data"] = data
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   errObj,
		"id":      id,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// httpStatusFor maps taxonomy errors onto HTTP status codes for the
// REST surface.
func httpStatusFor(err error) int {
	if stderrors.Is(err, errJobNotFound) {
		return http.StatusNotFound
	}
	switch optimization.KindOf(err) {
	case optimization.KindInvalidValue,
		optimization.KindDimensionMismatch,
		optimization.KindUnknownParameter,
		optimization.KindInvalidEncoding,
		optimization.KindInfeasibleContext:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleOptimize handles POST /api/v1/optimize.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	result, err := s.startJob(req)
	if err != nil {
		s.respondJSON(w, httpStatusFor(err), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "missing optimization ID",
		})
		return
	}

	result, err := s.jobStatus(id)
	if err != nil {
		s.respondJSON(w, httpStatusFor(err), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "missing optimization ID",
		})
		return
	}

	if err := s.cancelJob(id); err != nil {
		s.respondJSON(w, httpStatusFor(err), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// handlePresets handles GET /api/v1/presets.
func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.presetsPayload())
}

// Close cancels all running optimizations.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, job := range s.jobs {
		if job.Cancel != nil {
			job.Cancel()
		}
	}
	return nil
}
