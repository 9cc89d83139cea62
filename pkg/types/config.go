package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Forest.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// DSN is the connection string for the postgres backend.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// PartitionColumn names the column that scopes tree ids. Defaults to
	// DefaultPartitionColumn.
	PartitionColumn string `json:"partition_column,omitempty" yaml:"partition_column,omitempty"`

	// BaseLevel is the level assigned to roots.
	BaseLevel int64 `json:"base_level" yaml:"base_level"`

	// Verify runs CheckForest on the touched partition before every commit.
	Verify bool `json:"verify" yaml:"verify"`

	SyncStrategy  string        `json:"sync_strategy,omitempty" yaml:"sync_strategy,omitempty"`
	BatchSize     int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	BatchInterval time.Duration `json:"batch_interval,omitempty" yaml:"batch_interval,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// JSONL sync strategies for the sqlite backend.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
	SyncBatch     = "batch"
	SyncNone      = "none"
)

// Defaults applied by the getters below.
const (
	DefaultBatchSize     = 100
	DefaultBatchInterval = 5 * time.Second
)

// DefaultPartitionColumn is the partition column of the nodes table.
const DefaultPartitionColumn = "partition_key"

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrDSNEmpty             = errors.New("dsn must not be empty for the postgres backend")
	ErrBaseLevelNegative    = errors.New("base level must not be negative")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
)

var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
}

var knownSyncStrategies = map[string]bool{
	SyncImmediate: true,
	SyncOnClose:   true,
	SyncBatch:     true,
	SyncNone:      true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.DSN == "" {
		return ErrDSNEmpty
	}
	if c.BaseLevel < 0 {
		return ErrBaseLevelNegative
	}
	if c.SyncStrategy != "" && !knownSyncStrategies[c.SyncStrategy] {
		return ErrSyncStrategyUnknown
	}
	if c.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	if c.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	return nil
}

// GetSyncStrategy returns the effective sync strategy. The postgres backend
// has no JSONL mirror.
func (c Config) GetSyncStrategy() string {
	if c.Backend == BackendPostgres {
		return SyncNone
	}
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}

// GetBatchSize returns the batch size, defaulting to DefaultBatchSize.
func (c Config) GetBatchSize() int {
	if c.BatchSize == 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// GetBatchInterval returns the batch interval, defaulting to DefaultBatchInterval.
func (c Config) GetBatchInterval() time.Duration {
	if c.BatchInterval == 0 {
		return DefaultBatchInterval
	}
	return c.BatchInterval
}

// GetPartitionColumn returns the partition column name.
func (c Config) GetPartitionColumn() string {
	if c.PartitionColumn == "" {
		return DefaultPartitionColumn
	}
	return c.PartitionColumn
}
