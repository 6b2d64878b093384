package services

import (
	"sync"
	"time"

	"hudlink/internal/operations"
	"hudlink/pkg/contracts/domain"
)

// RunRequest selects the units of a run and optionally overrides the
// configured pipeline options. Nil overrides keep the configured value.
type RunRequest struct {
	States               []string `json:"states" validate:"required,min=1,dive,state_abbrev"`
	Years                []int    `json:"years" validate:"required,min=1,dive,min=2000,max=2100"`
	ProgramLabels        []string `json:"program_labels,omitempty" validate:"omitempty,dive,required"`
	SplitHouseholds      *bool    `json:"split_households_into_families,omitempty"`
	ExcludeGroupQuarters *bool    `json:"exclude_group_quarters,omitempty"`
	IncomeLimitAgg       string   `json:"income_limit_agg,omitempty" validate:"omitempty,oneof=max min mean median mode"`
}

// Units lists the requested state/year pairs, states outermost, without duplicates
func (r RunRequest) Units() []domain.Unit {
	seen := make(map[domain.Unit]bool)
	var units []domain.Unit
	for _, s := range r.States {
		for _, y := range r.Years {
			u := domain.NewUnit(s, y)
			if !seen[u] {
				seen[u] = true
				units = append(units, u)
			}
		}
	}
	return units
}

// UnitStatus is the outcome of one unit inside a run
type UnitStatus struct {
	Unit     domain.Unit                      `json:"unit"`
	Status   operations.OperationStatus       `json:"status"`
	Mode     string                           `json:"mode"`
	Duration time.Duration                    `json:"duration,omitempty"`
	Flags    map[domain.FlagKind]int          `json:"flags,omitempty"`
	Error    string                           `json:"error,omitempty"`
	Steps    map[string]*operations.StepState `json:"steps,omitempty"`
}

// RunStatus is a point-in-time snapshot of a run
type RunStatus struct {
	ID         string                     `json:"id"`
	Status     operations.OperationStatus `json:"status"`
	CreatedAt  time.Time                  `json:"created_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
	Units      []UnitStatus               `json:"units"`
}

// Failed counts units that did not complete
func (s *RunStatus) Failed() int {
	n := 0
	for _, u := range s.Units {
		if u.Status == operations.OperationStatusFailed || u.Status == operations.OperationStatusCancelled {
			n++
		}
	}
	return n
}

// run is the mutable record behind a RunStatus
type run struct {
	mu       sync.RWMutex
	id       string
	status   operations.OperationStatus
	created  time.Time
	finished *time.Time
	units    []UnitStatus
	cancel   func()
	done     chan struct{}
}

func newRun(id string, units []domain.Unit, mode string) *run {
	r := &run{
		id:      id,
		status:  operations.OperationStatusPending,
		created: time.Now(),
		units:   make([]UnitStatus, len(units)),
		cancel:  func() {},
		done:    make(chan struct{}),
	}
	for i, u := range units {
		r.units[i] = UnitStatus{Unit: u, Status: operations.OperationStatusPending, Mode: mode}
	}
	return r
}

func (r *run) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = operations.OperationStatusRunning
}

func (r *run) setUnit(i int, status operations.OperationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[i].Status = status
}

// record stores the manager's response for unit i
func (r *run) record(i int, resp *operations.Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &r.units[i]
	if resp != nil {
		u.Status = resp.Status
		u.Duration = resp.Duration
		u.Flags = resp.Flags
		u.Steps = resp.Steps
	}
	if err != nil {
		if u.Status == operations.OperationStatusCompleted || u.Status == operations.OperationStatusRunning || u.Status == operations.OperationStatusPending {
			u.Status = operations.OperationStatusFailed
		}
		u.Error = err.Error()
	}
}

// finish derives the run status from its units. Any failed unit fails the
// run; otherwise a cancelled unit cancels it.
func (r *run) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.finished = &now
	r.status = operations.OperationStatusCompleted
	for i := range r.units {
		switch r.units[i].Status {
		case operations.OperationStatusPending, operations.OperationStatusRunning:
			r.units[i].Status = operations.OperationStatusCancelled
			if r.status == operations.OperationStatusCompleted {
				r.status = operations.OperationStatusCancelled
			}
		case operations.OperationStatusCancelled:
			if r.status == operations.OperationStatusCompleted {
				r.status = operations.OperationStatusCancelled
			}
		case operations.OperationStatusFailed:
			r.status = operations.OperationStatusFailed
		}
	}
	close(r.done)
}

func (r *run) snapshot() *RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := &RunStatus{
		ID:         r.id,
		Status:     r.status,
		CreatedAt:  r.created,
		FinishedAt: r.finished,
		Units:      make([]UnitStatus, len(r.units)),
	}
	copy(s.Units, r.units)
	return s
}

func (r *run) isFinished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
