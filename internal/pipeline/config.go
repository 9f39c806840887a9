package pipeline

import (
	"time"

	"github.com/54b3r/cinerag/internal/config"
)

// Timeouts bound each external call of a request. Zero fields take defaults.
type Timeouts struct {
	Classify    time.Duration
	DenseEmbed  time.Duration
	SparseEmbed time.Duration
	Fetch       time.Duration
	Generate    time.Duration
}

// DefaultTimeouts are applied to zero fields of Timeouts.
var DefaultTimeouts = Timeouts{
	Classify:    10 * time.Second,
	DenseEmbed:  10 * time.Second,
	SparseEmbed: 2 * time.Second,
	Fetch:       10 * time.Second,
	Generate:    3 * time.Minute,
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Classify <= 0 {
		t.Classify = DefaultTimeouts.Classify
	}
	if t.DenseEmbed <= 0 {
		t.DenseEmbed = DefaultTimeouts.DenseEmbed
	}
	if t.SparseEmbed <= 0 {
		t.SparseEmbed = DefaultTimeouts.SparseEmbed
	}
	if t.Fetch <= 0 {
		t.Fetch = DefaultTimeouts.Fetch
	}
	if t.Generate <= 0 {
		t.Generate = DefaultTimeouts.Generate
	}
	return t
}

// TimeoutsFromEnv reads PIPELINE_CLASSIFY_TIMEOUT, PIPELINE_DENSE_TIMEOUT,
// PIPELINE_SPARSE_TIMEOUT, PIPELINE_FETCH_TIMEOUT and
// PIPELINE_GENERATE_TIMEOUT (Go duration syntax).
func TimeoutsFromEnv() Timeouts {
	return Timeouts{
		Classify:    config.EnvDuration("PIPELINE_CLASSIFY_TIMEOUT", DefaultTimeouts.Classify),
		DenseEmbed:  config.EnvDuration("PIPELINE_DENSE_TIMEOUT", DefaultTimeouts.DenseEmbed),
		SparseEmbed: config.EnvDuration("PIPELINE_SPARSE_TIMEOUT", DefaultTimeouts.SparseEmbed),
		Fetch:       config.EnvDuration("PIPELINE_FETCH_TIMEOUT", DefaultTimeouts.Fetch),
		Generate:    config.EnvDuration("PIPELINE_GENERATE_TIMEOUT", DefaultTimeouts.Generate),
	}
}

// SkipSparseOnChatFromEnv reads PIPELINE_SKIP_SPARSE_ON_CHAT (default false).
func SkipSparseOnChatFromEnv() bool {
	return config.EnvBool("PIPELINE_SKIP_SPARSE_ON_CHAT", false)
}
