// Package store is the data-access layer that hosts the nested-set core.
// It owns the connection, the schema, one write transaction per batch, the
// per-partition locks, the identity map of loaded nodes and, for the sqlite
// backend, the JSONL mirror that is the source of truth between runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/grove/internal/logger"
	"github.com/mesh-intelligence/grove/internal/metrics"
	"github.com/mesh-intelligence/grove/internal/nestedset"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// File names inside DataDir.
const (
	dbFile    = "grove.db"
	nodesFile = "nodes.jsonl"
)

var _ types.Forest = (*Backend)(nil)

// Backend implements types.Forest on SQLite or PostgreSQL.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	table    nestedset.Table
	tree     *nestedset.Tree
	dataDir  string

	log     zerolog.Logger
	coreLog zerolog.Logger
	metrics *metrics.Metrics

	// One writer per partition. Batches on different partitions may run
	// side by side when the driver allows it.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	nodes *identityMap

	// Mirror state. mirrorMu serializes snapshot-and-rename so a slower
	// writer cannot replace a newer snapshot with an older one.
	mirrorMu      sync.Mutex
	syncStrategy  string
	batchSize     int
	batchInterval time.Duration
	pendingWrites []pendingWrite
	batchTimer    *time.Timer
	batchMu       sync.Mutex
}

// pendingWrite is a deferred mirror write, used by the on_close and batch
// strategies.
type pendingWrite struct {
	file      string
	operation string
	persist   func() error
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. Backend events are tagged component=store and
// interval rewrites component=nestedset. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) {
		b.log = logger.Component(l, "store")
		b.coreLog = logger.Component(l, "nestedset")
	}
}

// WithMetrics wires prometheus collectors into the backend and the core.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

// NewBackend creates a detached backend. Call Attach to open it.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		log:     zerolog.Nop(),
		coreLog: zerolog.Nop(),
		locks:   make(map[string]*sync.Mutex),
		nodes:   newIdentityMap(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens the store described by config. For the sqlite backend with a
// mirror, the database file is recreated and rebuilt from nodes.jsonl, then
// checked; a mirror that does not form a valid forest fails the attach with
// ErrConsistencyViolation.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	table := nestedset.Table{
		Name:            "nodes",
		PK:              "id",
		PartitionColumn: config.GetPartitionColumn(),
		BaseLevel:       config.BaseLevel,
	}
	treeOpts := []nestedset.Option{nestedset.WithLogger(b.coreLog)}
	if b.metrics != nil {
		treeOpts = append(treeOpts, nestedset.WithObserver(b.metrics))
	}

	syncStrategy := config.GetSyncStrategy()
	var (
		db  *sql.DB
		err error
	)
	switch config.Backend {
	case types.BackendSQLite:
		dataDir := config.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return err
		}
		dbPath := filepath.Join(dataDir, dbFile)
		if syncStrategy != types.SyncNone {
			// The mirror is authoritative; start from a fresh file.
			_ = os.Remove(dbPath)
		}
		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			return err
		}
		db.SetMaxOpenConns(1)
		b.dataDir = dataDir
	case types.BackendPostgres:
		db, err = sql.Open("pgx", config.DSN)
		if err != nil {
			return err
		}
		table.Placeholder = nestedset.Dollar
		b.dataDir = config.DataDir
	}

	tree, err := nestedset.New(table, treeOpts...)
	if err != nil {
		db.Close()
		return err
	}

	ctx := context.Background()
	if err := createSchema(ctx, db, table); err != nil {
		db.Close()
		return fmt.Errorf("create schema: %w", err)
	}

	b.db = db
	b.table = table
	b.tree = tree
	b.config = config
	b.syncStrategy = syncStrategy
	b.batchSize = config.GetBatchSize()
	b.batchInterval = config.GetBatchInterval()
	b.pendingWrites = nil

	if b.mirrored() {
		if err := b.initMirror(); err != nil {
			db.Close()
			return err
		}
		n, err := b.loadMirror(ctx)
		if err != nil {
			db.Close()
			return fmt.Errorf("load JSONL: %w", err)
		}
		b.log.Debug().Int("nodes", n).Str("file", b.mirrorPath()).Msg("rebuilt from mirror")
	}

	if b.syncStrategy == types.SyncBatch && b.batchInterval > 0 {
		b.startBatchTimer()
	}

	b.attached = true
	b.log.Info().
		Str("backend", config.Backend).
		Str("data_dir", b.dataDir).
		Str("sync", b.syncStrategy).
		Bool("verify", config.Verify).
		Msg("forest attached")
	return nil
}

// Detach flushes pending mirror writes and closes the connection. After
// Detach every operation returns ErrForestDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.stopBatchTimer()

	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.nodes.reset()
	b.log.Info().Msg("forest detached")
	return nil
}

// lockPartition serializes writers of one partition and returns the unlock.
func (b *Backend) lockPartition(partition string) func() {
	b.locksMu.Lock()
	l, ok := b.locks[partition]
	if !ok {
		l = &sync.Mutex{}
		b.locks[partition] = l
	}
	b.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// lockPartitionTx takes the cross-process write lock on partition inside
// tx. Postgres gets a transaction-scoped advisory lock keyed by the
// partition name. SQLite needs none: its single connection and database
// lock already serialize writers.
func (b *Backend) lockPartitionTx(ctx context.Context, tx *sql.Tx, partition string) error {
	q := partitionLockSQL(b.config.Backend)
	if q == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, q, partition); err != nil {
		return fmt.Errorf("locking partition %q: %w", partition, err)
	}
	return nil
}

// lockTableTx takes the cross-process lock on the whole nodes table, for
// loads that replace every partition.
func (b *Backend) lockTableTx(ctx context.Context, tx *sql.Tx) error {
	q := tableLockSQL(b.config.Backend, b.table.Name)
	if q == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("locking %s: %w", b.table.Name, err)
	}
	return nil
}

func partitionLockSQL(backend string) string {
	if backend == types.BackendPostgres {
		return "SELECT pg_advisory_xact_lock(hashtext($1))"
	}
	return ""
}

func tableLockSQL(backend, table string) string {
	if backend == types.BackendPostgres {
		return "LOCK TABLE " + table + " IN EXCLUSIVE MODE"
	}
	return ""
}

// generateUUID generates a UUID v7 for node ids.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Sync strategy methods.

// mirrored reports whether this backend keeps a JSONL mirror.
func (b *Backend) mirrored() bool {
	return b.config.Backend == types.BackendSQLite && b.syncStrategy != types.SyncNone
}

// mirrorWrite persists the mirror after a committed batch according to the
// sync strategy.
func (b *Backend) mirrorWrite(operation string) error {
	if !b.mirrored() {
		return nil
	}
	if b.syncStrategy == types.SyncImmediate {
		return b.persistMirror()
	}
	b.queueWrite(nodesFile, operation, b.persistMirror)
	return nil
}

// queueWrite adds a write to the pending queue. The batch strategy flushes
// once batchSize writes are queued.
func (b *Backend) queueWrite(file, operation string, persist func() error) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	b.pendingWrites = append(b.pendingWrites, pendingWrite{
		file:      file,
		operation: operation,
		persist:   persist,
	})

	if b.syncStrategy == types.SyncBatch && b.batchSize > 0 && len(b.pendingWrites) >= b.batchSize {
		if err := b.flushPendingWritesBatchLocked(); err != nil {
			b.log.Error().Err(err).Msg("batch flush failed")
		}
	}
}

// flushPendingWritesLocked flushes the queue. The caller must hold b.mu.
func (b *Backend) flushPendingWritesLocked() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	return b.flushPendingWritesBatchLocked()
}

// flushPendingWritesBatchLocked runs the queued writes. Every write
// snapshots the whole file, so one write per file is enough. The caller
// must hold b.batchMu.
func (b *Backend) flushPendingWritesBatchLocked() error {
	if len(b.pendingWrites) == 0 {
		return nil
	}

	done := make(map[string]bool)
	for i := len(b.pendingWrites) - 1; i >= 0; i-- {
		pw := b.pendingWrites[i]
		if done[pw.file] {
			continue
		}
		if err := pw.persist(); err != nil {
			// Keep the queue; the next flush or Attach reconciles.
			return fmt.Errorf("flush %s %s: %w", pw.file, pw.operation, err)
		}
		done[pw.file] = true
	}

	b.log.Debug().Int("queued", len(b.pendingWrites)).Msg("flushed mirror")
	b.pendingWrites = nil
	return nil
}

// startBatchTimer starts the periodic flush for the batch strategy.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}

	b.batchTimer = time.AfterFunc(b.batchInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.attached {
			return
		}

		if err := b.flushPendingWritesLocked(); err != nil {
			b.log.Error().Err(err).Msg("timed flush failed")
		}

		b.batchMu.Lock()
		if b.batchTimer != nil && b.attached {
			b.batchTimer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
}

// stopBatchTimer stops the periodic flush if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}
