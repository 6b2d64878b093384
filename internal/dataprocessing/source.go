package dataprocessing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"hudlink/internal/config"
	apperrors "hudlink/internal/errors"
	"hudlink/internal/operations"
	"hudlink/pkg/contracts/domain"
)

// FileSource loads a unit's inputs from the files named by the path templates
type FileSource struct {
	paths      config.PathsConfig
	additional []string
	logger     *slog.Logger
}

// NewFileSource creates a source over the configured paths. additional names
// extra survey columns carried through to the outputs.
func NewFileSource(paths config.PathsConfig, additional []string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		paths:      paths,
		additional: additional,
		logger:     logger.With(slog.String("component", "file_source")),
	}
}

// Load reads every input of the unit. The files are read concurrently; income
// limits are read last because name-only rows are resolved through the
// crosswalk county names.
func (s *FileSource) Load(ctx context.Context, unit domain.Unit) (*operations.Inputs, error) {
	stateFIPS, err := unit.FIPS()
	if err != nil {
		return nil, apperrors.NewInputError(err.Error(), nil)
	}
	files := s.paths.Inputs(unit)
	logger := s.logger.With(slog.String("unit", unit.String()))

	in := &operations.Inputs{Crosswalks: make(map[domain.Vintage][]domain.CountyAllocation)}
	var cw2012, cw2022 []domain.CountyAllocation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := openTable(gctx, files.Survey, SurveyRequiredColumns...)
		if err != nil {
			return err
		}
		in.Survey, err = ParseSurvey(t, s.additional)
		return err
	})
	g.Go(func() error {
		var err error
		cw2012, err = s.readCrosswalk(gctx, files.Crosswalk2012, domain.Vintage2012, stateFIPS)
		return err
	})
	g.Go(func() error {
		var err error
		cw2022, err = s.readCrosswalk(gctx, files.Crosswalk2022, domain.Vintage2022, stateFIPS)
		return err
	})
	g.Go(func() error {
		if files.Programs == "" {
			return nil
		}
		t, err := openTable(gctx, files.Programs, programLabelColumn, programUnitsColumn)
		if err != nil {
			return err
		}
		in.Programs, err = ParsePrograms(t, unit, stateFIPS)
		return err
	})
	g.Go(func() error {
		if files.Incarceration == "" {
			return nil
		}
		t, err := openTable(gctx, files.Incarceration, incarcerationCounts[0].column)
		if err != nil {
			return err
		}
		in.Incarceration, err = ParseIncarceration(t, unit, stateFIPS)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(cw2012) > 0 {
		in.Crosswalks[domain.Vintage2012] = cw2012
	}
	if len(cw2022) > 0 {
		in.Crosswalks[domain.Vintage2022] = cw2022
	}

	t, err := openTable(ctx, files.IncomeLimits, LimitsRequiredColumns()...)
	if err != nil {
		return nil, err
	}
	limits, unmatched, err := ParseIncomeLimits(t, unit, stateFIPS, NewCountyIndex(cw2022, cw2012))
	if err != nil {
		return nil, err
	}
	in.IncomeLimits = limits
	if len(unmatched) > 0 {
		logger.WarnContext(ctx, "income limit rows without a county",
			slog.Int("rows", len(unmatched)),
			slog.String("first", unmatched[0]))
	}

	logger.InfoContext(ctx, "inputs loaded",
		slog.Int("survey_rows", len(in.Survey)),
		slog.Int("crosswalk_2012_rows", len(cw2012)),
		slog.Int("crosswalk_2022_rows", len(cw2022)),
		slog.Int("income_limits", len(in.IncomeLimits)),
		slog.Int("program_rows", len(in.Programs)),
		slog.Int("incarceration_rows", len(in.Incarceration)))
	return in, nil
}

func (s *FileSource) readCrosswalk(ctx context.Context, path string, v domain.Vintage, stateFIPS string) ([]domain.CountyAllocation, error) {
	if path == "" {
		return nil, nil
	}
	t, err := openTable(ctx, path, crosswalkFactor[0])
	if err != nil {
		return nil, err
	}
	return ParseCrosswalk(t, v, stateFIPS)
}

// openTable reads a CSV or xlsx file. For workbooks, required picks the sheet
// and header row.
func openTable(ctx context.Context, path string, required ...string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperrors.NewConfigError("input path not configured", nil)
	}
	name := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, openError(path, err)
		}
		defer f.Close()
		return ReadSheet(name, f, required...)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, openError(path, err)
		}
		defer f.Close()
		return ReadCSV(name, f)
	}
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewInputError(fmt.Sprintf("input file not found: %s", path), err)
	}
	return apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
}
