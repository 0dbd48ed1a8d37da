package types

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// RunnerOptions configure a workflow runner.
type RunnerOptions struct {
	/**
	 * default: 10
	 * upper bound on concurrently executing node handlers within a run.
	 * Restored and skipped nodes are free and do not count.
	 */
	MaxParallel int `default:"10"`
	/**
	 * default: 0 (unbuffered)
	 * capacity of the event stream channel. With 0 the producer blocks on
	 * every send, so consumer backpressure is immediate.
	 */
	EventBuffer int `default:"0"`
	/**
	 * default: 30s, shared timeout for each council voter invocation and
	 * for the synthesizer call.
	 */
	VoterTimeout time.Duration `default:"30s"`
}

func NewRunnerOptions() *RunnerOptions {
	opts := &RunnerOptions{}
	defaults.SetDefaults(opts)
	return opts
}

type RunnerOption func(*RunnerOptions)

func WithMaxParallel(n int) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.MaxParallel = n
	}
}

func WithEventBuffer(n int) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.EventBuffer = n
	}
}

func WithVoterTimeout(d time.Duration) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.VoterTimeout = d
	}
}

// PostgresConfig holds PostgreSQL connection configuration for the engine
// store selection.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

// EngineOptions configure the top-level engine facade.
type EngineOptions struct {
	Runner RunnerOptions

	/**
	 * default: true, persist snapshots/audit records in memory.
	 * Postgres takes precedence when configured.
	 */
	MemStore bool `default:"true"`

	Postgres *PostgresConfig
}

func NewEngineOptions() *EngineOptions {
	opts := &EngineOptions{}
	defaults.SetDefaults(opts)
	return opts
}

type EngineOption func(*EngineOptions)

func WithPostgres(config *PostgresConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.Postgres = config
	}
}

func WithRunnerOptions(runnerOpts ...RunnerOption) EngineOption {
	return func(opts *EngineOptions) {
		for _, o := range runnerOpts {
			o(&opts.Runner)
		}
	}
}
