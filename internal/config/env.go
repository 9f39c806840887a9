package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env returns the value of the named environment variable, or fallback if
// the variable is unset or blank.
func Env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset or not parseable.
func EnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

// EnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset or not parseable.
func EnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

// EnvBool returns the boolean value of the named environment variable, or
// fallback if the variable is unset or not parseable.
func EnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// EnvDuration returns the duration value of the named environment variable
// (Go duration syntax, e.g. "5s"), or fallback if unset or not parseable.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
