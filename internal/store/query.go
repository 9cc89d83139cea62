package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/grove/internal/nestedset"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// refreshChunk bounds the IN list of one refresh query.
const refreshChunk = 500

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// selectColumns lists every column in scanNode order.
func (b *Backend) selectColumns() string {
	return strings.Join([]string{
		b.table.PK, nestedset.ColParentID, nestedset.ColLft, nestedset.ColRgt,
		nestedset.ColLevel, nestedset.ColTreeID, b.table.PartitionColumn, "name",
	}, ", ")
}

func scanNode(row rowScanner) (*types.Node, error) {
	var (
		n      types.Node
		parent sql.NullString
	)
	if err := row.Scan(&n.ID, &parent, &n.Lft, &n.Rgt, &n.Level, &n.TreeID, &n.Partition, &n.Name); err != nil {
		return nil, err
	}
	if parent.Valid {
		n.ParentID = &parent.String
	}
	return &n, nil
}

// readNode loads one full row, returning ErrNotFound when it is missing.
func (b *Backend) readNode(ctx context.Context, q querier, id string) (*types.Node, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", b.selectColumns(), b.table.Name, b.table.PK)
	n, err := scanNode(q.QueryRowContext(ctx, b.table.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading node %s: %w", id, err)
	}
	return n, nil
}

// queryNodes runs a SELECT whose WHERE clause and ordering follow the
// column list.
func (b *Backend) queryNodes(ctx context.Context, q querier, tail string, args ...any) ([]*types.Node, error) {
	query := fmt.Sprintf("SELECT %s FROM %s %s", b.selectColumns(), b.table.Name, tail)
	rows, err := q.QueryContext(ctx, b.table.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var out []*types.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// attachedDB returns the connection or ErrForestDetached. The caller must
// hold b.mu.
func (b *Backend) attachedDB() (*sql.DB, error) {
	if !b.attached {
		return nil, types.ErrForestDetached
	}
	return b.db, nil
}

// Get returns the node with the given id.
func (b *Backend) Get(ctx context.Context, id string) (*types.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return nil, err
	}
	n, err := b.readNode(ctx, db, id)
	if err != nil {
		return nil, err
	}
	return b.nodes.adopt(n), nil
}

// Children returns the direct children of id ordered by lft.
func (b *Backend) Children(ctx context.Context, id string) ([]*types.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return nil, err
	}
	parent, err := b.readNode(ctx, db, id)
	if err != nil {
		return nil, err
	}
	nodes, err := b.queryNodes(ctx, db,
		fmt.Sprintf("WHERE %s = ? ORDER BY %s", nestedset.ColParentID, nestedset.ColLft), parent.ID)
	if err != nil {
		return nil, err
	}
	b.nodes.adopt(parent)
	return b.nodes.adoptAll(nodes), nil
}

// Subtree returns id and all of its descendants in preorder.
func (b *Backend) Subtree(ctx context.Context, id string) ([]*types.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return nil, err
	}
	n, err := b.readNode(ctx, db, id)
	if err != nil {
		return nil, err
	}
	nodes, err := b.queryNodes(ctx, db,
		fmt.Sprintf("WHERE %s = ? AND %s = ? AND %s >= ? AND %s <= ? ORDER BY %s",
			b.table.PartitionColumn, nestedset.ColTreeID, nestedset.ColLft, nestedset.ColRgt, nestedset.ColLft),
		n.Partition, n.TreeID, n.Lft, n.Rgt)
	if err != nil {
		return nil, err
	}
	return b.nodes.adoptAll(nodes), nil
}

// Ancestors returns the ancestors of id from the root down, excluding id.
func (b *Backend) Ancestors(ctx context.Context, id string) ([]*types.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return nil, err
	}
	n, err := b.readNode(ctx, db, id)
	if err != nil {
		return nil, err
	}
	nodes, err := b.queryNodes(ctx, db,
		fmt.Sprintf("WHERE %s = ? AND %s = ? AND %s < ? AND %s > ? ORDER BY %s",
			b.table.PartitionColumn, nestedset.ColTreeID, nestedset.ColLft, nestedset.ColRgt, nestedset.ColLft),
		n.Partition, n.TreeID, n.Lft, n.Rgt)
	if err != nil {
		return nil, err
	}
	return b.nodes.adoptAll(nodes), nil
}

// Roots returns the roots of a partition in tree_id order.
func (b *Backend) Roots(ctx context.Context, partition string) ([]*types.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return nil, err
	}
	nodes, err := b.queryNodes(ctx, db,
		fmt.Sprintf("WHERE %s = ? AND %s IS NULL ORDER BY %s",
			b.table.PartitionColumn, nestedset.ColParentID, nestedset.ColTreeID),
		partition)
	if err != nil {
		return nil, err
	}
	return b.nodes.adoptAll(nodes), nil
}

// Nodes returns every node of a partition ordered by tree_id, then lft.
func (b *Backend) Nodes(ctx context.Context, partition string) ([]*types.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return nil, err
	}
	nodes, err := b.partitionNodes(ctx, db, partition)
	if err != nil {
		return nil, err
	}
	return b.nodes.adoptAll(nodes), nil
}

func (b *Backend) partitionNodes(ctx context.Context, q querier, partition string) ([]*types.Node, error) {
	return b.queryNodes(ctx, q,
		fmt.Sprintf("WHERE %s = ? ORDER BY %s, %s", b.table.PartitionColumn, nestedset.ColTreeID, nestedset.ColLft),
		partition)
}

func (b *Backend) allNodes(ctx context.Context, q querier) ([]*types.Node, error) {
	return b.queryNodes(ctx, q,
		fmt.Sprintf("ORDER BY %s, %s, %s", b.table.PartitionColumn, nestedset.ColTreeID, nestedset.ColLft))
}

// Partitions lists the partitions that hold at least one node.
func (b *Backend) Partitions(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s ORDER BY %[1]s", b.table.PartitionColumn, b.table.Name)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Check verifies the forest invariants of one partition and returns an
// error wrapping ErrConsistencyViolation on the first breach.
func (b *Backend) Check(ctx context.Context, partition string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return err
	}
	nodes, err := b.partitionNodes(ctx, db, partition)
	if err != nil {
		return err
	}
	return types.CheckForest(nodes, b.table.BaseLevel)
}

// refresh re-reads the given cached ids and merges the rows into the cached
// objects. Ids whose rows are gone are evicted.
func (b *Backend) refresh(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += refreshChunk {
		end := min(start+refreshChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		in := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		fresh, err := b.queryNodes(ctx, b.db, fmt.Sprintf("WHERE %s IN (%s)", b.table.PK, in), args...)
		if err != nil {
			return err
		}

		found := make(map[string]*types.Node, len(fresh))
		for _, n := range fresh {
			found[n.ID] = n
		}
		for _, id := range chunk {
			if n, ok := found[id]; ok {
				b.nodes.adopt(n)
			} else {
				b.nodes.evict(id)
			}
		}
	}
	return nil
}
