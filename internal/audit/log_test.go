package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hudlink/internal/shared/testutil"
	"hudlink/pkg/contracts/domain"
)

func TestLog_AddAndCount(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	l := NewLog(logger)
	ctx := context.Background()

	l.Flag(ctx, domain.FlagMissingIncome, "income", "1001-06037-0", "HHINCOME sentinel 9999999")
	l.Flag(ctx, domain.FlagMissingIncome, "income", "1002-06037-0", "INCWAGE sentinel 999999")
	l.Flag(ctx, domain.FlagUnmatchedProgram, "linkage", "06099", "program row has no eligibility county")

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, map[domain.FlagKind]int{
		domain.FlagMissingIncome:    2,
		domain.FlagUnmatchedProgram: 1,
	}, l.CountByKind())

	testutil.AssertLogContains(t, logs, slog.LevelWarn, "data quality flag")
	assert.True(t, logs.ContainsAttr("kind", "unmatched_program_county"))
}

func TestLog_SortedIsDeterministic(t *testing.T) {
	l := NewLog(nil)
	ctx := context.Background()

	l.Flag(ctx, domain.FlagUnitsSuppressed, "linkage", "b", "")
	l.Flag(ctx, domain.FlagCrosswalkNormalized, "crosswalk", "z", "")
	l.Flag(ctx, domain.FlagUnitsSuppressed, "linkage", "a", "")

	sorted := l.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "crosswalk", sorted[0].Stage)
	assert.Equal(t, "a", sorted[1].Key)
	assert.Equal(t, "b", sorted[2].Key)

	// insertion order is untouched
	assert.Equal(t, "b", l.Flags()[0].Key)
}

func TestLog_ConcurrentAdd(t *testing.T) {
	l := NewLog(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Flag(context.Background(), domain.FlagMissingIncome, "income", "k", "")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, l.Len())
}

func TestLog_NilSafe(t *testing.T) {
	var l *Log
	l.Flag(context.Background(), domain.FlagMissingIncome, "income", "k", "")
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Flags())
}
