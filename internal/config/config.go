package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "hudlink/internal/errors"
	"hudlink/internal/linkage"
	"hudlink/pkg/contracts/domain"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Workers   WorkersConfig   `yaml:"workers" envconfig:"WORKERS"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
}

// PipelineConfig holds the options every state/year unit is processed with
type PipelineConfig struct {
	// States and Years are the batch CLI's units; the server takes them per run
	States               []string `yaml:"states" envconfig:"STATES" validate:"dive,state_abbrev"`
	Years                []int    `yaml:"years" envconfig:"YEARS" validate:"dive,min=2000,max=2100"`
	ProgramLabels        []string `yaml:"program_labels" envconfig:"PROGRAM_LABELS"`
	SplitHouseholds      bool     `yaml:"split_households_into_families" envconfig:"SPLIT_HOUSEHOLDS_INTO_FAMILIES"`
	ExcludeGroupQuarters bool     `yaml:"exclude_group_quarters" envconfig:"EXCLUDE_GROUP_QUARTERS"`
	IncomeLimitAgg       string   `yaml:"income_limit_agg" envconfig:"INCOME_LIMIT_AGG" validate:"oneof=max min mean median mode"`
	AdditionalVariables  []string `yaml:"additional_variables" envconfig:"ADDITIONAL_VARIABLES" validate:"dive,required"`

	// IncomeFloor, when set, raises lower unit incomes to the floor
	IncomeFloor *float64 `yaml:"income_floor" envconfig:"INCOME_FLOOR"`

	IncarcerationStratified bool `yaml:"incarceration_stratified" envconfig:"INCARCERATION_STRATIFIED"`

	VintageCutover  int     `yaml:"vintage_cutover" envconfig:"VINTAGE_CUTOVER" validate:"min=2000,max=2100"`
	FullRecodeYear  int     `yaml:"full_recode_year" envconfig:"FULL_RECODE_YEAR" validate:"gtefield=VintageCutover"`
	WeightTolerance float64 `yaml:"weight_tolerance" envconfig:"WEIGHT_TOLERANCE" validate:"gt=0,lt=1"`
}

// PathsConfig locates inputs and outputs
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`

	Survey        string `yaml:"survey" envconfig:"SURVEY" validate:"required"`
	Crosswalk2012 string `yaml:"crosswalk_2012" envconfig:"CROSSWALK_2012" validate:"required"`
	Crosswalk2022 string `yaml:"crosswalk_2022" envconfig:"CROSSWALK_2022" validate:"required"`
	IncomeLimits  string `yaml:"income_limits" envconfig:"INCOME_LIMITS" validate:"required"`
	Programs      string `yaml:"programs" envconfig:"PROGRAMS"`
	// Incarceration is optional; empty disables the adjustment
	Incarceration string `yaml:"incarceration" envconfig:"INCARCERATION"`

	// Workbook also writes the summary workbook next to the CSV tables
	Workbook bool `yaml:"workbook" envconfig:"WORKBOOK"`
}

// WorkersConfig bounds how many state/year units run at once
type WorkersConfig struct {
	Count       int           `yaml:"count" envconfig:"COUNT" validate:"min=1,max=64"`
	UnitTimeout time.Duration `yaml:"unit_timeout" envconfig:"UNIT_TIMEOUT" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// TelemetryConfig toggles OpenTelemetry tracing and metrics
type TelemetryConfig struct {
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// StoreConfig configures the optional Postgres sink; an empty DSN disables it
type StoreConfig struct {
	DSN   string `yaml:"dsn" envconfig:"DSN"`
	Table string `yaml:"table" envconfig:"TABLE" validate:"required_with=DSN"`
}

// Enabled reports whether summaries are persisted to Postgres
func (s StoreConfig) Enabled() bool { return s.DSN != "" }

// LoadOptions names the files Load reads. Empty values fall back to the defaults
// looked up in the working directory.
type LoadOptions struct {
	ConfigFile string
	EnvFile    string

	// Overrides runs after the environment is applied and before validation;
	// command-line flags land here.
	Overrides func(*Config)
}

// Load builds the configuration from defaults, the YAML file, the .env file,
// the environment and finally opts.Overrides, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfg.mergeFile(configFile); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to load config file %s", configFile), err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err == nil {
		// godotenv never overrides variables already present in the environment
		if err := godotenv.Load(envFile); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to load env file %s", envFile), err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}
	if opts.Overrides != nil {
		opts.Overrides(cfg)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, c)
}

// Normalize upper-cases states, expands program shortcuts where possible and
// drops blank entries. It is idempotent.
func (c *Config) Normalize() {
	states := c.Pipeline.States[:0:0]
	for _, s := range c.Pipeline.States {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			states = append(states, s)
		}
	}
	c.Pipeline.States = states
	c.Pipeline.IncomeLimitAgg = strings.ToLower(strings.TrimSpace(c.Pipeline.IncomeLimitAgg))
	if expanded, err := linkage.ExpandLabels(c.Pipeline.ProgramLabels); err == nil {
		c.Pipeline.ProgramLabels = expanded
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("state_abbrev", func(fl validator.FieldLevel) bool {
		return domain.IsStateAbbrev(fl.Field().String())
	})
	return v
}

// Validate checks field constraints and that every program label is known
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return apperrors.NewConfigError("invalid configuration: "+strings.Join(msgs, "; "), err)
		}
		return apperrors.NewConfigError("invalid configuration", err)
	}
	if _, err := linkage.ExpandLabels(c.Pipeline.ProgramLabels); err != nil {
		return apperrors.NewConfigError("invalid program_labels", err)
	}
	if _, err := domain.ParseAggregationPolicy(c.Pipeline.IncomeLimitAgg); err != nil {
		return apperrors.NewConfigError("invalid income_limit_agg", err)
	}
	return nil
}

// Units lists every configured state and year, states outermost
func (c *Config) Units() []domain.Unit {
	units := make([]domain.Unit, 0, len(c.Pipeline.States)*len(c.Pipeline.Years))
	for _, s := range c.Pipeline.States {
		for _, y := range c.Pipeline.Years {
			units = append(units, domain.NewUnit(s, y))
		}
	}
	return units
}

func findConfigFile() string {
	for _, location := range []string{DefaultConfigFile, "configs/" + DefaultConfigFile} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			ProgramLabels:           []string{linkage.ProgramAllHUD},
			IncomeLimitAgg:          string(domain.AggregateMax),
			IncarcerationStratified: true,
			VintageCutover:          DefaultVintageCutover,
			FullRecodeYear:          DefaultFullRecodeYear,
			WeightTolerance:         DefaultWeightTolerance,
		},
		Paths: PathsConfig{
			DataDir:       DefaultDataDir,
			OutputDir:     DefaultOutputDir,
			Survey:        DefaultSurveyTemplate,
			Crosswalk2012: DefaultCrosswalk2012Template,
			Crosswalk2022: DefaultCrosswalk2022Template,
			IncomeLimits:  DefaultIncomeLimitsTemplate,
			Programs:      DefaultProgramsTemplate,
			Incarceration: DefaultIncarcerationTemplate,
			Workbook:      true,
		},
		Workers: WorkersConfig{
			Count:       1,
			UnitTimeout: DefaultUnitTimeout,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics:  true,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
			Environment:    "development",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Store: StoreConfig{
			Table: "county_summaries",
		},
	}
}
