package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager runs state/year units through the registered steps. Steps of one
// unit run sequentially; separate units may run concurrently on one Manager.
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
	logger   *slog.Logger

	mu         sync.RWMutex
	operations map[string]*running
}

type running struct {
	state  *OperationState
	cancel context.CancelFunc
}

// NewManager creates a manager. A nil tracer disables instrumentation.
func NewManager(registry *Registry, config *Config, tracer *OperationTracer, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer, _ = NewOperationTracer(nil)
	}
	return &Manager{
		registry:   registry,
		config:     config,
		tracer:     tracer,
		logger:     logger.With(slog.String("component", "operations")),
		operations: make(map[string]*running),
	}
}

// GetRegistry returns the step registry
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs one unit to completion. A failing step aborts the unit and
// every later step is skipped, so the export step only runs after all others
// succeeded.
func (m *Manager) Execute(ctx context.Context, req Request) (*Response, *Output, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	state := NewOperationState(req.ID, req.Unit, req.Options, m.logger)

	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		state.Fail(err)
		return state.Response(), nil, fmt.Errorf("failed to get dependency order: %w", err)
	}
	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	if m.config.UnitTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, m.config.UnitTimeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.store(req.ID, &running{state: state, cancel: cancel})
	defer m.remove(req.ID)

	ctx, span := m.tracer.TraceUnit(ctx, req.ID, req.Unit, req.Options.Mode())
	state.Start()
	state.Logger.InfoContext(ctx, "unit started",
		slog.String("mode", req.Options.Mode()),
		slog.Int("steps", len(steps)))

	err = m.executeSequential(ctx, state, steps)
	switch {
	case err == nil:
		state.Complete()
	case GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel(err)
	default:
		state.Fail(err)
	}

	resp := state.Response()
	m.tracer.RecordUnitCompletion(ctx, span, req.Unit, resp.Duration, resp.Status, resp.Flags, err)

	if err != nil {
		state.Logger.ErrorContext(ctx, "unit aborted",
			slog.String("status", string(resp.Status)),
			slog.String("error", err.Error()))
		return resp, nil, err
	}
	state.Logger.InfoContext(ctx, "unit completed",
		slog.Duration("duration", resp.Duration),
		slog.Int("flags", state.Audit.Len()))
	return resp, state.Output(), nil
}

func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	for i, step := range steps {
		if ctx.Err() != nil {
			m.skipRemaining(state, steps[i:], "unit cancelled")
			return Classify(step.ID(), ctx.Err())
		}
		if err := m.executeStage(ctx, state, step); err != nil {
			m.skipRemaining(state, steps[i+1:], fmt.Sprintf("step %s failed", step.ID()))
			return err
		}
	}
	return nil
}

// executeStage runs one step, retrying retryable failures
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError(step.ID(), fmt.Errorf("step state not found"))
	}
	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		return err
	}
	if err := step.Validate(state); err != nil {
		stepState.Fail(err)
		return NewValidationError(step.ID(), err.Error())
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retry := m.config.RetryConfig
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	logger := state.Logger.With(slog.String("stage", step.ID()))

	for attempt := 1; ; attempt++ {
		stepState.Start()
		spanCtx, span := m.tracer.TraceStage(stageCtx, state.ID, step.ID())
		started := time.Now()
		err := step.Execute(spanCtx, state)
		duration := time.Since(started)

		rows, _ := stepState.metadataInt(MetaRowsOut)
		m.tracer.RecordStageCompletion(spanCtx, span, step.ID(), duration, rows, err)

		if err == nil {
			stepState.Complete()
			in, _ := stepState.metadataInt(MetaRowsIn)
			logger.InfoContext(ctx, "stage completed",
				slog.Int("rows_in", in),
				slog.Int("rows_out", rows),
				slog.Duration("duration", duration))
			return nil
		}

		opErr := Classify(step.ID(), err)
		if opErr.Type == ErrorTypeTimeout && ctx.Err() == nil {
			opErr = NewTimeoutError(step.ID(), timeout.String())
			opErr.Cause = err
		}
		if !opErr.Retryable || attempt >= retry.MaxAttempts {
			stepState.Fail(opErr)
			logger.ErrorContext(ctx, "stage failed",
				slog.String("error_type", string(opErr.Type)),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return opErr
		}

		delay := retry.Delay(attempt)
		logger.WarnContext(ctx, "stage retry",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-stageCtx.Done():
			opErr = Classify(step.ID(), stageCtx.Err())
			if opErr.Type == ErrorTypeTimeout {
				opErr = NewTimeoutError(step.ID(), timeout.String())
			}
			stepState.Fail(opErr)
			return opErr
		}
	}
}

func (m *Manager) skipRemaining(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		if s := state.GetStage(step.ID()); s != nil && s.GetStatus() == StepStatusPending {
			s.Skip(reason)
		}
	}
}

func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s not registered", dep))
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	return nil
}

// GetOperation returns a snapshot of a running unit
func (m *Manager) GetOperation(id string) (*Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.operations[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return r.state.Response(), nil
}

// ListOperations returns snapshots of all running units
func (m *Manager) ListOperations() []*Response {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Response, 0, len(m.operations))
	for _, r := range m.operations {
		out = append(out, r.state.Response())
	}
	return out
}

// CancelOperation aborts a running unit. Nothing is written for it.
func (m *Manager) CancelOperation(id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.operations[id]
	if !ok {
		return ErrOperationNotFound
	}
	r.cancel()
	return nil
}

func (m *Manager) store(id string, r *running) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[id] = r
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
}
