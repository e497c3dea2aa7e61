package confirmations

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultIntervalMonths = 6
	defaultMaxRetries     = 1
	defaultPollInterval   = time.Hour
	defaultOpenLeadDays   = 30
)

// Config carries the tunables of the confirmation engine and its scheduler.
type Config struct {
	// IntervalMonths is the calendar-month spacing between periodic
	// confirmations.
	IntervalMonths int
	// MaxRetries bounds retries of a submission that failed for a reason
	// other than a taxonomy error.
	MaxRetries int
	// SchedulerEnabled controls the background sweep that opens periodic
	// cycles as due dates approach.
	SchedulerEnabled bool
	// PollInterval is how often the scheduler sweeps for due trials.
	PollInterval time.Duration
	// OpenLeadDays is how many days before the due date a cycle is opened,
	// giving trial teams a submission window.
	OpenLeadDays int
}

// DefaultConfig returns the built-in settings: six-month cycles, one retry
// on transient failure, hourly sweeps opening cycles 30 days ahead.
func DefaultConfig() Config {
	return Config{
		IntervalMonths:   defaultIntervalMonths,
		MaxRetries:       defaultMaxRetries,
		SchedulerEnabled: true,
		PollInterval:     defaultPollInterval,
		OpenLeadDays:     defaultOpenLeadDays,
	}
}

// ConfigFromEnv reads settings from CTSR_CONFIRMATION_* environment
// variables, falling back to the defaults for anything unset or malformed.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("CTSR_CONFIRMATION_INTERVAL_MONTHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IntervalMonths = n
		}
	}
	if v := os.Getenv("CTSR_CONFIRMATION_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("CTSR_CONFIRMATION_SCHEDULER_ENABLED"); v != "" {
		cfg.SchedulerEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CTSR_CONFIRMATION_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("CTSR_CONFIRMATION_OPEN_LEAD_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.OpenLeadDays = n
		}
	}
	return cfg
}
