package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hudlink/internal/config"
	apperrors "hudlink/internal/errors"
	"hudlink/internal/operations"
	"hudlink/pkg/contracts/domain"
)

// UnitExecutor runs one state/year unit. operations.Manager implements it.
type UnitExecutor interface {
	Execute(ctx context.Context, req operations.Request) (*operations.Response, *operations.Output, error)
	CancelOperation(id string) error
}

// RunService starts runs over many state/year units and keeps their status
// for the HTTP API and the CLI. Units run concurrently up to the configured
// worker count; a failing unit never stops the others.
type RunService struct {
	pipeline config.PipelineConfig
	workers  int
	executor UnitExecutor
	logger   *slog.Logger

	// base outlives the requests that start asynchronous runs
	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.RWMutex
	runs  map[string]*run
	order []string
}

// NewRunService creates a run service
func NewRunService(pipeline config.PipelineConfig, workers int, executor UnitExecutor, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	base, shutdown := context.WithCancel(context.Background())
	return &RunService{
		pipeline: pipeline,
		workers:  workers,
		executor: executor,
		logger:   logger.With(slog.String("service", "runs")),
		base:     base,
		shutdown: shutdown,
		runs:     make(map[string]*run),
	}
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("state_abbrev", func(fl validator.FieldLevel) bool {
		return domain.IsStateAbbrev(fl.Field().String())
	})
	return v
}

// ConfiguredRequest returns a request for every configured state and year
// with no overrides
func (s *RunService) ConfiguredRequest() RunRequest {
	return RunRequest{
		States: append([]string(nil), s.pipeline.States...),
		Years:  append([]int(nil), s.pipeline.Years...),
	}
}

// Options merges the request overrides onto the configured pipeline options
func (s *RunService) Options(req RunRequest) (operations.Options, error) {
	if err := requestValidator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return operations.Options{}, apperrors.NewInputError("invalid run request: "+strings.Join(msgs, "; "), err)
		}
		return operations.Options{}, apperrors.NewInputError("invalid run request", err)
	}

	cfg := s.pipeline
	if len(req.ProgramLabels) > 0 {
		cfg.ProgramLabels = req.ProgramLabels
	}
	if req.SplitHouseholds != nil {
		cfg.SplitHouseholds = *req.SplitHouseholds
	}
	if req.ExcludeGroupQuarters != nil {
		cfg.ExcludeGroupQuarters = *req.ExcludeGroupQuarters
	}
	if req.IncomeLimitAgg != "" {
		cfg.IncomeLimitAgg = req.IncomeLimitAgg
	}
	opts, err := operations.OptionsFromConfig(cfg)
	if err != nil {
		return operations.Options{}, apperrors.NewInputError("invalid run request", err)
	}
	return opts, nil
}

// Start registers a run and executes it in the background. The returned
// status is the run's initial snapshot.
func (s *RunService) Start(ctx context.Context, req RunRequest) (*RunStatus, error) {
	opts, err := s.Options(req)
	if err != nil {
		return nil, err
	}
	if s.base.Err() != nil {
		return nil, ErrServiceStopping
	}

	r := s.register(req.Units(), opts)
	runCtx, cancel := context.WithCancel(s.base)
	r.cancel = cancel
	snapshot := r.snapshot()

	s.logger.InfoContext(ctx, "run accepted",
		slog.String("run_id", r.id),
		slog.Int("units", len(snapshot.Units)),
		slog.String("mode", opts.Mode()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.execute(runCtx, r, opts)
	}()
	return snapshot, nil
}

// RunAll executes a run synchronously. The error joins every unit failure.
func (s *RunService) RunAll(ctx context.Context, req RunRequest) (*RunStatus, error) {
	opts, err := s.Options(req)
	if err != nil {
		return nil, err
	}
	r := s.register(req.Units(), opts)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel = cancel

	s.execute(ctx, r, opts)

	status := r.snapshot()
	var errs []error
	for _, u := range status.Units {
		if u.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", u.Unit, u.Error))
		} else if u.Status != operations.OperationStatusCompleted {
			errs = append(errs, fmt.Errorf("%s: %s", u.Unit, u.Status))
		}
	}
	return status, errors.Join(errs...)
}

func (s *RunService) register(units []domain.Unit, opts operations.Options) *run {
	r := newRun(uuid.NewString(), units, opts.Mode())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.id] = r
	s.order = append(s.order, r.id)
	return r
}

// execute runs every unit of r, at most s.workers at a time
func (s *RunService) execute(ctx context.Context, r *run, opts operations.Options) {
	r.start()
	logger := s.logger.With(slog.String("run_id", r.id))

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for i, u := range r.snapshot().Units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r.setUnit(i, operations.OperationStatusRunning)
			resp, _, err := s.executor.Execute(ctx, operations.Request{
				ID:      unitOperationID(r.id, u.Unit),
				Unit:    u.Unit,
				Options: opts,
			})
			r.record(i, resp, err)
			if err != nil {
				logger.ErrorContext(ctx, "unit failed",
					slog.String("unit", u.Unit.String()),
					slog.String("kind", string(apperrors.KindOf(err))),
					slog.String("error", err.Error()))
			}
			// unit failures are recorded, never propagated to siblings
			return nil
		})
	}
	_ = g.Wait()
	r.finish()

	final := r.snapshot()
	logger.InfoContext(ctx, "run finished",
		slog.String("status", string(final.Status)),
		slog.Int("units", len(final.Units)),
		slog.Int("failed", final.Failed()))
}

func unitOperationID(runID string, unit domain.Unit) string {
	return runID + "/" + unit.String()
}

// Get returns a snapshot of a run
func (s *RunService) Get(id string) (*RunStatus, error) {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	return r.snapshot(), nil
}

// List returns snapshots of all runs, newest first
func (s *RunService) List() []*RunStatus {
	s.mu.RLock()
	out := make([]*RunStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id].snapshot())
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Active counts runs that have not finished
func (s *RunService) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.runs {
		if !r.isFinished() {
			n++
		}
	}
	return n
}

// Cancel aborts every unit of a run that has not finished. Cancelled units
// write nothing.
func (s *RunService) Cancel(ctx context.Context, id string) error {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}
	if r.isFinished() {
		return ErrRunFinished
	}
	r.cancel()
	for _, u := range r.snapshot().Units {
		// units that already finished are no longer registered with the executor
		_ = s.executor.CancelOperation(unitOperationID(id, u.Unit))
	}
	s.logger.InfoContext(ctx, "run cancelled", slog.String("run_id", id))
	return nil
}

// Wait blocks until the run finishes or ctx is done
func (s *RunService) Wait(ctx context.Context, id string) (*RunStatus, error) {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels background runs and waits for them to stop
func (s *RunService) Shutdown(ctx context.Context) error {
	s.shutdown()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
