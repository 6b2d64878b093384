package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hudlink/internal/config"
	apperrors "hudlink/internal/errors"
	"hudlink/internal/exporter"
	"hudlink/internal/operations"
	"hudlink/pkg/contracts/domain"
)

// stagingDir holds in-progress unit outputs under the output directory, so
// the final rename never crosses file systems
const stagingDir = ".staging"

// Manager writes unit outputs under the output directory. It implements
// operations.Sink: Prepare writes files to a staging directory and the commit
// swaps them into <out>/<STATE>/<STATE>_<YEAR> in one rename, so a unit's
// directory holds either the previous complete output or the new one.
type Manager struct {
	paths    config.PathsConfig
	exporter *exporter.Exporter
	logger   *slog.Logger
}

// NewManager creates a new file manager instance
func NewManager(paths config.PathsConfig, exp *exporter.Exporter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if exp == nil {
		exp = exporter.NewExporter(exporter.Options{Workbook: paths.Workbook}, logger)
	}
	return &Manager{
		paths:    paths,
		exporter: exp,
		logger:   logger.With(slog.String("component", "files")),
	}
}

// UnitDir returns the committed output directory of a unit
func (m *Manager) UnitDir(unit domain.Unit) string {
	return m.paths.UnitDir(unit)
}

// Write exports out and commits it at once
func (m *Manager) Write(ctx context.Context, out *operations.Output) error {
	p, err := m.Prepare(ctx, out)
	if err != nil {
		return err
	}
	return p.Commit(ctx)
}

// Prepare exports out into a staging directory. Nothing under the unit
// directory changes until the returned commit runs.
func (m *Manager) Prepare(ctx context.Context, out *operations.Output) (operations.Pending, error) {
	staging, err := m.stage(out)
	if err != nil {
		return nil, err
	}
	files, err := m.exporter.Export(ctx, staging, out)
	if err != nil {
		m.discard(ctx, staging)
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to export %s", out.Unit), err)
	}
	if err := ctx.Err(); err != nil {
		m.discard(ctx, staging)
		return nil, err
	}
	return &stagedUnit{m: m, out: out, staging: staging, files: len(files)}, nil
}

// stagedUnit is an exported unit waiting in the staging directory
type stagedUnit struct {
	m       *Manager
	out     *operations.Output
	staging string
	files   int
	done    bool
}

// Commit swaps the staged directory into place
func (u *stagedUnit) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := ctx.Err(); err != nil {
		u.m.discard(ctx, u.staging)
		return err
	}

	target := u.m.UnitDir(u.out.Unit)
	if err := u.m.commit(u.staging, target, u.out.RunID); err != nil {
		u.m.discard(ctx, u.staging)
		return apperrors.NewStorageError(fmt.Sprintf("failed to commit %s", u.out.Unit), err)
	}

	u.m.logger.InfoContext(ctx, "unit committed",
		slog.String("unit", u.out.Unit.String()),
		slog.String("dir", target),
		slog.Int("files", u.files))
	return nil
}

// Abort removes the staged directory
func (u *stagedUnit) Abort(ctx context.Context) {
	if u.done {
		return
	}
	u.done = true
	u.m.discard(ctx, u.staging)
	u.m.logger.DebugContext(ctx, "staged unit discarded", slog.String("unit", u.out.Unit.String()))
}

func (m *Manager) stage(out *operations.Output) (string, error) {
	root := filepath.Join(m.paths.OutputDir, stagingDir)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", apperrors.NewStorageError("failed to create staging directory", err)
	}
	dir, err := os.MkdirTemp(root, out.Unit.String()+"-")
	if err != nil {
		return "", apperrors.NewStorageError("failed to create staging directory", err)
	}
	return dir, nil
}

// commit swaps staging into target. An existing target is renamed aside
// first and restored if the swap fails.
func (m *Manager) commit(staging, target, runID string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	backup := ""
	if _, err := os.Stat(target); err == nil {
		backup = fmt.Sprintf("%s.replaced-%s", target, safeID(runID))
		if err := os.Rename(target, backup); err != nil {
			return fmt.Errorf("failed to move previous output aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			if rerr := os.Rename(backup, target); rerr != nil {
				m.logger.Error("failed to restore previous output",
					slog.String("backup", backup),
					slog.String("error", rerr.Error()))
			}
		}
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			m.logger.Warn("failed to remove previous output",
				slog.String("path", backup),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (m *Manager) discard(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.WarnContext(ctx, "failed to remove staging directory",
			slog.String("path", dir),
			slog.String("error", err.Error()))
	}
}

// CleanStaging removes staging directories left behind by interrupted runs
func (m *Manager) CleanStaging() error {
	root := filepath.Join(m.paths.OutputDir, stagingDir)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		m.logger.Debug("removing stale staging directory", slog.String("path", path))
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

func safeID(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '_'
		}
		return r
	}, id)
}
