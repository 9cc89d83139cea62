package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mesh-intelligence/grove/internal/nestedset"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// mirrorTimeout bounds mirror reads and writes that run outside a caller's
// context.
const mirrorTimeout = time.Minute

func contextForMirror() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), mirrorTimeout)
}

// loadMirror rebuilds the nodes table from nodes.jsonl in one transaction.
// It returns the number of nodes loaded.
func (b *Backend) loadMirror(ctx context.Context) (int, error) {
	f, err := os.Open(b.mirrorPath())
	if err != nil {
		return 0, err
	}
	defer f.Close()

	nodes, skipped, err := readJSONL(f)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		b.log.Warn().Int("skipped", skipped).Str("file", b.mirrorPath()).Msg("skipped malformed records")
	}
	if err := b.replaceAll(ctx, nodes); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// replaceAll swaps the table contents for nodes. The records must form a
// valid forest in every partition; nothing is written otherwise.
func (b *Backend) replaceAll(ctx context.Context, nodes []*types.Node) error {
	if err := types.CheckForest(nodes, b.table.BaseLevel); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	if err := b.lockTableTx(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+b.table.Name); err != nil {
		return fmt.Errorf("clearing %s: %w", b.table.Name, err)
	}
	if err := insertNodes(ctx, tx, b.table, nodes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertNodes inserts rows verbatim, positions included.
func insertNodes(ctx context.Context, tx *sql.Tx, t nestedset.Table, nodes []*types.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, name) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		t.Name, t.PK, nestedset.ColParentID, nestedset.ColLft, nestedset.ColRgt,
		nestedset.ColLevel, nestedset.ColTreeID, t.PartitionColumn)
	stmt, err := tx.PrepareContext(ctx, t.Rebind(q))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, n.ID, n.ParentID, n.Lft, n.Rgt, n.Level, n.TreeID, n.Partition, n.Name); err != nil {
			return fmt.Errorf("inserting %s: %w", n.ID, err)
		}
	}
	return nil
}

// Export writes every node of every partition to w as JSONL, ordered by
// partition, tree_id and lft.
func (b *Backend) Export(ctx context.Context, w io.Writer) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return err
	}
	nodes, err := b.allNodes(ctx, db)
	if err != nil {
		return err
	}
	return writeJSONL(w, nodes)
}

// Import replaces the whole store with the JSONL records read from r. The
// records are checked as a forest first; on any violation the store is left
// untouched. Cached nodes are refreshed afterwards.
func (b *Backend) Import(ctx context.Context, r io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrForestDetached
	}

	nodes, skipped, err := readJSONL(r)
	if err != nil {
		return err
	}
	if skipped > 0 {
		return fmt.Errorf("%w: %d malformed records", types.ErrInvalidOperation, skipped)
	}
	if err := b.replaceAll(ctx, nodes); err != nil {
		return err
	}
	if err := b.refresh(ctx, b.nodes.ids()); err != nil {
		return err
	}

	b.log.Info().Int("nodes", len(nodes)).Msg("imported forest")
	return b.mirrorWrite("import")
}
