package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hudlink/internal/audit"
	"hudlink/internal/crosswalk"
	"hudlink/internal/imputation"
	"hudlink/pkg/contracts/domain"
)

// OperationStatus represents the overall status of a unit
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// Inputs are the in-memory source tables of one state/year unit.
// A nil Incarceration slice means no incarceration source was configured.
type Inputs struct {
	Survey        []domain.SurveyRecord
	Crosswalks    map[domain.Vintage][]domain.CountyAllocation
	IncomeLimits  []domain.IncomeLimit
	Incarceration []domain.IncarcerationRecord
	Programs      []domain.ProgramRecord
}

// Source loads the inputs of a unit
type Source interface {
	Load(ctx context.Context, unit domain.Unit) (*Inputs, error)
}

// Output is everything a completed unit hands to its sinks
type Output struct {
	RunID       string
	Unit        domain.Unit
	Options     Options
	Households  []domain.HouseholdRecord
	Counties    []domain.CountyEligibility
	Summaries   map[string][]domain.CountySummary
	Labels      []string
	Flags       []domain.DataQualityFlag
	Corrections []crosswalk.Correction
}

// Sink persists the output of a completed unit in two phases. Prepare does
// every part of the write that can fail and leaves nothing visible; the
// returned Pending publishes or discards it.
type Sink interface {
	Prepare(ctx context.Context, out *Output) (Pending, error)
}

// Pending is a prepared, unpublished sink write
type Pending interface {
	Commit(ctx context.Context) error
	Abort(ctx context.Context)
}

// Dataset carries stage outputs from one step to the next. Each field is
// written by exactly one step.
type Dataset struct {
	Inputs     *Inputs
	Resolver   *crosswalk.Resolver
	Imputation *imputation.Result
	Households []domain.HouseholdRecord
	Units      []domain.HouseholdRecord
	Counties   []domain.CountyEligibility
	Summaries  map[string][]domain.CountySummary
}

// OperationState is the runtime state of one unit
type OperationState struct {
	mu sync.RWMutex

	ID        string          `json:"id"`
	Unit      domain.Unit     `json:"unit"`
	Options   Options         `json:"options"`
	Status    OperationStatus `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`

	Data   *Dataset     `json:"-"`
	Audit  *audit.Log   `json:"-"`
	Logger *slog.Logger `json:"-"`

	Error error `json:"-"`
}

// NewOperationState creates the state of a unit
func NewOperationState(id string, unit domain.Unit, opts Options, logger *slog.Logger) *OperationState {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("operation_id", id),
		slog.String("state", unit.State),
		slog.Int("year", unit.Year),
	)
	return &OperationState{
		ID:        id,
		Unit:      unit,
		Options:   opts,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Data:      &Dataset{},
		Audit:     audit.NewLog(logger),
		Logger:    logger,
	}
}

// Start marks the unit as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the unit as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the unit as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	p.Error = err
}

// Cancel marks the unit as cancelled
func (p *OperationState) Cancel(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCancelled
	p.Error = err
}

// GetStatus returns the current status
func (p *OperationState) GetStatus() OperationStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStage returns the state of a step
func (p *OperationState) GetStage(stepID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stepID]
}

// SetStage sets the state of a step
func (p *OperationState) SetStage(stepID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stepID] = state
}

// RecordRows stores the row counts a step consumed and produced
func (p *OperationState) RecordRows(stepID string, in, out int) {
	s := p.GetStage(stepID)
	if s == nil {
		return
	}
	s.SetMetadata(MetaRowsIn, in)
	s.SetMetadata(MetaRowsOut, out)
}

// Duration returns how long the unit ran
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// HasFailures returns true if any step failed
func (p *OperationState) HasFailures() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.Steps {
		if s.GetStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Response snapshots the state for callers outside the pipeline
func (p *OperationState) Response() *Response {
	p.mu.RLock()
	defer p.mu.RUnlock()

	resp := &Response{
		ID:     p.ID,
		Unit:   p.Unit,
		Status: p.Status,
		Steps:  make(map[string]*StepState, len(p.Steps)),
		Flags:  p.Audit.CountByKind(),
	}
	if p.EndTime != nil {
		resp.Duration = p.EndTime.Sub(p.StartTime)
	} else {
		resp.Duration = time.Since(p.StartTime)
	}
	for id, s := range p.Steps {
		resp.Steps[id] = s.clone()
	}
	if p.Error != nil {
		resp.Error = p.Error.Error()
	}
	return resp
}

// Output assembles what the sinks receive
func (p *OperationState) Output() *Output {
	d := p.Data
	out := &Output{
		RunID:     p.ID,
		Unit:      p.Unit,
		Options:   p.Options,
		Summaries: d.Summaries,
		Flags:     p.Audit.Sorted(),
	}
	out.Households = d.Units
	out.Counties = d.Counties
	for _, label := range p.Options.ProgramLabels {
		if _, ok := d.Summaries[label]; ok {
			out.Labels = append(out.Labels, label)
		}
	}
	if d.Resolver != nil {
		out.Corrections = d.Resolver.Corrections()
	}
	return out
}
