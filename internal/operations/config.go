package operations

import (
	"math"
	"time"
)

// Default timeouts
const (
	DefaultStageTimeout = 10 * time.Minute
	DefaultUnitTimeout  = 30 * time.Minute
)

// RetryConfig bounds retries of retryable step errors
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// DefaultRetryConfig returns the default retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait before attempt+1
func (r RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}

// Config holds manager execution settings
type Config struct {
	StageTimeouts  map[string]time.Duration `json:"stage_timeouts"`
	DefaultTimeout time.Duration            `json:"default_timeout"`
	UnitTimeout    time.Duration            `json:"unit_timeout"`
	RetryConfig    RetryConfig              `json:"retry_config"`
}

// NewConfig creates a configuration with default values
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			StepIDLoad:   15 * time.Minute,
			StepIDExport: 5 * time.Minute,
		},
		DefaultTimeout: DefaultStageTimeout,
		UnitTimeout:    DefaultUnitTimeout,
		RetryConfig:    DefaultRetryConfig(),
	}
}

// GetStageTimeout returns the timeout for a step
func (c *Config) GetStageTimeout(stepID string) time.Duration {
	if t, ok := c.StageTimeouts[stepID]; ok && t > 0 {
		return t
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return DefaultStageTimeout
}
