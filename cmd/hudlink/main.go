// Command hudlink processes every configured state/year unit and writes the
// eligibility and linked summary tables under the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hudlink/internal/app"
	"hudlink/internal/config"
	"hudlink/internal/infrastructure"
	"hudlink/internal/services"
	"hudlink/internal/validation"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	configFile string
	envFile    string
	states     string
	years      string
	programs   string
	agg        string
	dataDir    string
	outDir     string
	workers    int
	split      bool
	excludeGQ  bool
	workbook   bool
	check      bool
	set        map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("hudlink", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configFile, "config", "", "YAML configuration file (default hudlink.yaml when present)")
	fs.StringVar(&f.envFile, "env", "", ".env file (default .env when present)")
	fs.StringVar(&f.states, "states", "", "comma-separated state abbreviations, e.g. FL,CA")
	fs.StringVar(&f.years, "years", "", "comma-separated survey years, e.g. 2022,2023")
	fs.StringVar(&f.programs, "programs", "", "comma-separated HUD program labels or shortcuts (HCV, PH, ALL...)")
	fs.StringVar(&f.agg, "agg", "", "income limit aggregation: max, min, mean, median or mode")
	fs.StringVar(&f.dataDir, "data-dir", "", "input data directory")
	fs.StringVar(&f.outDir, "out", "", "output directory")
	fs.IntVar(&f.workers, "workers", 0, "state/year units processed concurrently")
	fs.BoolVar(&f.split, "split", false, "split households into family units")
	fs.BoolVar(&f.excludeGQ, "exclude-gq", false, "suppress eligibility for institutional group quarters")
	fs.BoolVar(&f.workbook, "workbook", true, "also write the summary workbook")
	fs.BoolVar(&f.check, "check", false, "only verify each unit's input files and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// overrides applies the flags that were given on the command line
func (f *flags) overrides() (func(*config.Config), error) {
	var years []int
	if f.set["years"] {
		for _, s := range splitList(f.years) {
			y, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid year %q", s)
			}
			years = append(years, y)
		}
	}

	return func(c *config.Config) {
		if f.set["states"] {
			c.Pipeline.States = splitList(f.states)
		}
		if f.set["years"] {
			c.Pipeline.Years = years
		}
		if f.set["programs"] {
			c.Pipeline.ProgramLabels = splitList(f.programs)
		}
		if f.set["agg"] {
			c.Pipeline.IncomeLimitAgg = f.agg
		}
		if f.set["split"] {
			c.Pipeline.SplitHouseholds = f.split
		}
		if f.set["exclude-gq"] {
			c.Pipeline.ExcludeGroupQuarters = f.excludeGQ
		}
		if f.set["data-dir"] {
			c.Paths.DataDir = f.dataDir
		}
		if f.set["out"] {
			c.Paths.OutputDir = f.outDir
		}
		if f.set["workbook"] {
			c.Paths.Workbook = f.workbook
		}
		if f.set["workers"] {
			c.Workers.Count = f.workers
		}
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	overrides, err := f.overrides()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: f.configFile, EnvFile: f.envFile, Overrides: overrides})
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitUsage
	}
	if len(cfg.Units()) == 0 {
		fmt.Fprintln(stderr, "no state/year units: set pipeline.states and pipeline.years or pass -states and -years")
		return exitUsage
	}

	logger, closer, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "logger error: %v\n", err)
		return exitUsage
	}
	defer closer.Close()

	if f.check {
		return checkInputs(stdout, validation.NewFileValidator(cfg.Paths, logger), cfg)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialize application", slog.String("error", err.Error()))
		return exitFailed
	}
	defer application.Close(context.Background())

	start := time.Now()
	status, err := application.RunService.RunAll(ctx, application.RunService.ConfiguredRequest())
	if status != nil {
		printSummary(stdout, status, time.Since(start))
	}
	if err != nil {
		logger.ErrorContext(ctx, "run finished with failures", slog.String("error", err.Error()))
		return exitFailed
	}
	return exitOK
}

func printSummary(w io.Writer, status *services.RunStatus, elapsed time.Duration) {
	fmt.Fprintf(w, "run %s: %s (%d units, %d failed, %s)\n",
		status.ID, status.Status, len(status.Units), status.Failed(), elapsed.Round(time.Millisecond))
	for _, u := range status.Units {
		fmt.Fprintf(w, "  %-8s %-10s %-4s %10s  flags=%d", u.Unit, u.Status, u.Mode, u.Duration.Round(time.Millisecond), flagTotal(u))
		if u.Error != "" {
			fmt.Fprintf(w, "  error=%s", u.Error)
		}
		fmt.Fprintln(w)
	}
}

func checkInputs(w io.Writer, v *validation.FileValidator, cfg *config.Config) int {
	code := exitOK
	for _, c := range v.CheckUnits(cfg.Units()) {
		state := "ok"
		if !c.OK() {
			state = "missing"
			code = exitFailed
		}
		fmt.Fprintf(w, "%s %s\n", c.Unit, state)
		for _, f := range c.Files {
			if f.Error != "" {
				fmt.Fprintf(w, "  %-15s %s\n", f.Role, f.Error)
			} else {
				fmt.Fprintf(w, "  %-15s %s (%d bytes)\n", f.Role, f.Path, f.Size)
			}
		}
	}
	return code
}

func flagTotal(u services.UnitStatus) int {
	total := 0
	for _, n := range u.Flags {
		total += n
	}
	return total
}
