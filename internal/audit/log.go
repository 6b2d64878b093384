// Package audit accumulates the non-fatal data quality flags raised while a
// state/year unit is processed. The log travels with the unit's output.
package audit

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"hudlink/pkg/contracts/domain"
)

// Log is safe for concurrent use; the HTTP API reads counts while a unit runs.
type Log struct {
	mu     sync.RWMutex
	flags  []domain.DataQualityFlag
	logger *slog.Logger
}

// NewLog creates an empty audit log. Each flag is also written to logger at WARN.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With(slog.String("component", "audit"))}
}

// Add records a flag.
func (l *Log) Add(ctx context.Context, flag domain.DataQualityFlag) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.flags = append(l.flags, flag)
	l.mu.Unlock()

	l.logger.WarnContext(ctx, "data quality flag",
		slog.String("kind", string(flag.Kind)),
		slog.String("stage", flag.Stage),
		slog.String("key", flag.Key),
		slog.String("message", flag.Message),
	)
}

// Flag is shorthand for Add with the flag fields spelled out.
func (l *Log) Flag(ctx context.Context, kind domain.FlagKind, stage, key, message string) {
	l.Add(ctx, domain.DataQualityFlag{Kind: kind, Stage: stage, Key: key, Message: message})
}

// Flags returns the recorded flags in insertion order.
func (l *Log) Flags() []domain.DataQualityFlag {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.DataQualityFlag, len(l.flags))
	copy(out, l.flags)
	return out
}

// Len returns the number of recorded flags.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.flags)
}

// CountByKind tallies flags per kind.
func (l *Log) CountByKind() map[domain.FlagKind]int {
	counts := make(map[domain.FlagKind]int)
	for _, f := range l.Flags() {
		counts[f.Kind]++
	}
	return counts
}

// Sorted returns the flags ordered by stage, kind and key so exported audit
// tables are identical across runs.
func (l *Log) Sorted() []domain.DataQualityFlag {
	flags := l.Flags()
	sort.SliceStable(flags, func(i, j int) bool {
		a, b := flags[i], flags[j]
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Key < b.Key
	})
	return flags
}
