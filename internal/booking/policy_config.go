package booking

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadConfigFromEnv reads the orchestrator tunables from the environment,
// starting from DefaultConfig so unset variables keep their defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.Steps.MaxAttempts, err = overrideInt("BOOKING_RETRY_MAX_ATTEMPTS", cfg.Steps.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.Steps.Backoff.Base, err = overrideDuration("BOOKING_RETRY_BASE_DELAY", cfg.Steps.Backoff.Base); err != nil {
		return cfg, err
	}
	if cfg.Steps.Backoff.Max, err = overrideDuration("BOOKING_RETRY_MAX_DELAY", cfg.Steps.Backoff.Max); err != nil {
		return cfg, err
	}
	if cfg.Steps.Backoff.JitterFraction, err = overrideFloat("BOOKING_RETRY_JITTER", cfg.Steps.Backoff.JitterFraction); err != nil {
		return cfg, err
	}
	if cfg.Steps.Timeout, err = overrideDuration("BOOKING_STEP_TIMEOUT", cfg.Steps.Timeout); err != nil {
		return cfg, err
	}
	if cfg.Compensations.MaxAttempts, err = overrideInt("BOOKING_COMP_MAX_ATTEMPTS", cfg.Compensations.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.Compensations.Timeout, err = overrideDuration("BOOKING_COMP_TIMEOUT", cfg.Compensations.Timeout); err != nil {
		return cfg, err
	}
	if cfg.LeaseTTL, err = overrideDuration("BOOKING_LEASE_TTL", cfg.LeaseTTL); err != nil {
		return cfg, err
	}

	workers, err := overrideInt("BOOKING_WORKERS", int(cfg.Workers))
	if err != nil {
		return cfg, err
	}
	cfg.Workers = int64(workers)

	if cfg.ResumeBatch, err = overrideInt("BOOKING_RESUME_BATCH", cfg.ResumeBatch); err != nil {
		return cfg, err
	}

	cfg.Compensations.Backoff.Base = cfg.Steps.Backoff.Base
	cfg.Compensations.Backoff.Max = cfg.Steps.Backoff.Max
	cfg.Compensations.Backoff.JitterFraction = cfg.Steps.Backoff.JitterFraction

	return cfg, nil
}

func overrideDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}

func overrideInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}

func overrideFloat(name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 || val > 1 {
		return 0, errors.New(name + " must be between 0 and 1")
	}
	return val, nil
}
