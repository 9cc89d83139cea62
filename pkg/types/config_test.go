package types

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "mysql", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: "sqlite", DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir is valid at config level",
			config:  Config{Backend: "sqlite", DataDir: ""},
			wantErr: nil,
		},
		{
			name:    "postgres without dsn",
			config:  Config{Backend: "postgres"},
			wantErr: ErrDSNEmpty,
		},
		{
			name:    "postgres with dsn",
			config:  Config{Backend: "postgres", DSN: "postgres://localhost/grove"},
			wantErr: nil,
		},
		{
			name:    "negative base level",
			config:  Config{Backend: "sqlite", BaseLevel: -1},
			wantErr: ErrBaseLevelNegative,
		},
		{
			name:    "unknown sync strategy",
			config:  Config{Backend: "sqlite", SyncStrategy: "eventually"},
			wantErr: ErrSyncStrategyUnknown,
		},
		{
			name:    "negative batch size",
			config:  Config{Backend: "sqlite", SyncStrategy: SyncBatch, BatchSize: -5},
			wantErr: ErrBatchSizeInvalid,
		},
		{
			name:    "negative batch interval",
			config:  Config{Backend: "sqlite", SyncStrategy: SyncBatch, BatchInterval: -time.Second},
			wantErr: ErrBatchIntervalInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigGetters(t *testing.T) {
	c := Config{Backend: BackendSQLite}
	if got := c.GetSyncStrategy(); got != SyncImmediate {
		t.Errorf("GetSyncStrategy() = %q, want %q", got, SyncImmediate)
	}
	if got := c.GetBatchSize(); got != DefaultBatchSize {
		t.Errorf("GetBatchSize() = %d, want %d", got, DefaultBatchSize)
	}
	if got := c.GetBatchInterval(); got != DefaultBatchInterval {
		t.Errorf("GetBatchInterval() = %v, want %v", got, DefaultBatchInterval)
	}

	if got := c.GetPartitionColumn(); got != DefaultPartitionColumn {
		t.Errorf("GetPartitionColumn() = %q, want %q", got, DefaultPartitionColumn)
	}
	if got := (Config{PartitionColumn: "tenant"}).GetPartitionColumn(); got != "tenant" {
		t.Errorf("GetPartitionColumn() = %q, want tenant", got)
	}

	pg := Config{Backend: BackendPostgres, SyncStrategy: SyncBatch}
	if got := pg.GetSyncStrategy(); got != SyncNone {
		t.Errorf("postgres GetSyncStrategy() = %q, want %q", got, SyncNone)
	}
}
