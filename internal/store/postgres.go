// Package store persists county summaries to Postgres. Each unit replaces its
// previous rows inside one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	apperrors "hudlink/internal/errors"
	"hudlink/internal/operations"
	"hudlink/pkg/contracts/domain"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSink writes one row per county, program and threshold
type PostgresSink struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewPostgresSink opens the database and creates the summary table if needed
func NewPostgresSink(ctx context.Context, dsn, table string, logger *slog.Logger) (*PostgresSink, error) {
	ident, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid store DSN", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to connect to store", err)
	}

	s := &PostgresSink{db: db, table: ident, logger: logger.With(slog.String("component", "store"))}
	if _, err := db.ExecContext(ctx, s.createTableSQL()); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to create summary table", err)
	}
	return s, nil
}

// Close releases the connection pool
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// PingContext checks that the database is reachable
func (s *PostgresSink) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func quoteTable(table string) (string, error) {
	if !tableName.MatchString(table) {
		return "", apperrors.NewConfigError(fmt.Sprintf("invalid store table name %q", table), nil)
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize(), nil
}

func (s *PostgresSink) createTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id            TEXT NOT NULL,
	state             TEXT NOT NULL,
	year              INTEGER NOT NULL,
	mode              TEXT NOT NULL,
	county_id         TEXT NOT NULL,
	county_name       TEXT NOT NULL,
	program_label     TEXT NOT NULL,
	threshold         INTEGER NOT NULL,
	weighted_units    DOUBLE PRECISION NOT NULL,
	unadjusted        DOUBLE PRECISION NOT NULL,
	removed           DOUBLE PRECISION NOT NULL,
	eligible          DOUBLE PRECISION NOT NULL,
	program_matched   BOOLEAN NOT NULL,
	program_units     DOUBLE PRECISION,
	units_suppressed  BOOLEAN NOT NULL,
	gap               DOUBLE PRECISION,
	allocation_rate   DOUBLE PRECISION,
	written_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (state, year, mode, program_label, county_id, threshold)
)`, s.table)
}

// Row is one persisted summary row
type Row struct {
	CountyID        string
	CountyName      string
	ProgramLabel    string
	Threshold       int
	WeightedUnits   float64
	Unadjusted      float64
	Removed         float64
	Eligible        float64
	ProgramMatched  bool
	ProgramUnits    *float64
	UnitsSuppressed bool
	Gap             *float64
	AllocationRate  *float64
}

// Rows flattens the summaries of out in label, county and threshold order
func Rows(out *operations.Output) []Row {
	var rows []Row
	for _, label := range out.Labels {
		for _, cs := range out.Summaries[label] {
			for _, th := range domain.Thresholds {
				l := cs.At(th)
				rows = append(rows, Row{
					CountyID:        cs.CountyID,
					CountyName:      cs.CountyName,
					ProgramLabel:    label,
					Threshold:       int(th),
					WeightedUnits:   cs.Units,
					Unadjusted:      l.Threshold.Unadjusted,
					Removed:         l.Threshold.Removed,
					Eligible:        l.Threshold.Eligible,
					ProgramMatched:  cs.ProgramMatched,
					ProgramUnits:    cs.ProgramUnits,
					UnitsSuppressed: cs.UnitsSuppressed,
					Gap:             l.Gap,
					AllocationRate:  l.AllocationRate,
				})
			}
		}
	}
	return rows
}

// lockKey serializes writers of the same unit and mode across processes
func lockKey(unit domain.Unit, mode string) int64 {
	h := fnv.New64a()
	h.Write([]byte("hudlink:" + unit.String() + ":" + mode))
	return int64(h.Sum64())
}

// Write replaces the unit's rows with the summaries of out and commits
func (s *PostgresSink) Write(ctx context.Context, out *operations.Output) error {
	p, err := s.Prepare(ctx, out)
	if err != nil {
		return err
	}
	return p.Commit(ctx)
}

// Prepare replaces the unit's rows inside an open transaction. The rows
// become visible when the returned commit runs; the transaction holds the
// unit's advisory lock until then.
func (s *PostgresSink) Prepare(ctx context.Context, out *operations.Output) (operations.Pending, error) {
	mode := out.Options.Mode()
	rows := Rows(out)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, apperrors.NewStorageError("begin tx", err)
	}
	if err := s.replaceRows(ctx, tx, out, mode, rows); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &pendingTx{s: s, tx: tx, unit: out.Unit, mode: mode, rows: len(rows)}, nil
}

func (s *PostgresSink) replaceRows(ctx context.Context, tx *sql.Tx, out *operations.Output, mode string, rows []Row) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(out.Unit, mode)); err != nil {
		return apperrors.NewStorageError("advisory lock", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE state = $1 AND year = $2 AND mode = $3`, s.table),
		out.Unit.State, out.Unit.Year, mode); err != nil {
		return apperrors.NewStorageError("delete previous rows", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (
	run_id, state, year, mode, county_id, county_name, program_label, threshold,
	weighted_units, unadjusted, removed, eligible, program_matched, program_units,
	units_suppressed, gap, allocation_rate, written_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`, s.table))
	if err != nil {
		return apperrors.NewStorageError("prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			out.RunID, out.Unit.State, out.Unit.Year, mode, r.CountyID, r.CountyName, r.ProgramLabel, r.Threshold,
			r.WeightedUnits, r.Unadjusted, r.Removed, r.Eligible, r.ProgramMatched, r.ProgramUnits,
			r.UnitsSuppressed, r.Gap, r.AllocationRate, now,
		); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("insert %s %s", r.ProgramLabel, r.CountyID), err)
		}
	}
	return nil
}

// pendingTx is a unit's row replacement waiting for commit
type pendingTx struct {
	s    *PostgresSink
	tx   *sql.Tx
	unit domain.Unit
	mode string
	rows int
}

func (p *pendingTx) Commit(ctx context.Context) error {
	if err := p.tx.Commit(); err != nil {
		return apperrors.NewStorageError("commit", err)
	}
	p.s.logger.InfoContext(ctx, "summaries stored",
		slog.String("unit", p.unit.String()),
		slog.String("mode", p.mode),
		slog.Int("rows", p.rows))
	return nil
}

func (p *pendingTx) Abort(ctx context.Context) {
	if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		p.s.logger.WarnContext(ctx, "rollback failed",
			slog.String("unit", p.unit.String()),
			slog.String("error", err.Error()))
	}
}
