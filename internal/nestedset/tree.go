package nestedset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// Observer receives the number of rows each rewrite statement touched.
// op is one of "insert", "remove", "delete", "relocate", "promote", "renumber".
type Observer interface {
	ObserveRewrite(op string, rows int64)
}

type nopObserver struct{}

func (nopObserver) ObserveRewrite(string, int64) {}

// Tree runs the nested-set hooks against one Table.
type Tree struct {
	table    Table
	registry *Registry
	log      zerolog.Logger
	observer Observer
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for per-operation debug events.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tree) { t.log = l }
}

// WithObserver sets the rewrite observer.
func WithObserver(o Observer) Option {
	return func(t *Tree) { t.observer = o }
}

// New returns a Tree for table.
func New(table Table, opts ...Option) (*Tree, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	t := &Tree{
		table:    table,
		log:      zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.registry = &Registry{table: table, tree: t}
	return t, nil
}

// Table returns the table description.
func (t *Tree) Table() Table {
	return t.table
}

// Registry returns the forest registry bound to the same table.
func (t *Tree) Registry() *Registry {
	return t.registry
}

// ReadNode loads the structural columns of one row. Returns an error wrapping
// types.ErrNotFound when no row has that key.
func (t *Tree) ReadNode(ctx context.Context, tx DBTX, id string) (*types.Node, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", t.table.columns(), t.table.Name, t.table.PK)
	n, err := t.scanNode(tx.QueryRowContext(ctx, t.table.Rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading node %s: %w", id, err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (t *Tree) scanNode(row rowScanner) (*types.Node, error) {
	var (
		n      types.Node
		parent sql.NullString
	)
	dest := []any{&n.ID, &parent, &n.Lft, &n.Rgt, &n.Level, &n.TreeID}
	if t.table.Partitioned() {
		dest = append(dest, &n.Partition)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if parent.Valid {
		n.ParentID = &parent.String
	}
	return &n, nil
}

// SubtreeIDs returns the ids of n and all of its descendants ordered by lft.
func (t *Tree) SubtreeIDs(ctx context.Context, tx DBTX, n *types.Node) ([]string, error) {
	scope, scopeArgs := t.table.scope(n.Partition)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= ? AND %s <= ? AND %s = ?%s ORDER BY %s",
		t.table.PK, t.table.Name, ColLft, ColRgt, ColTreeID, scope, ColLft)
	args := append([]any{n.Lft, n.Rgt, n.TreeID}, scopeArgs...)

	rows, err := tx.QueryContext(ctx, t.table.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("scanning subtree of %s: %w", n.ID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning subtree id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// exec runs one rewrite statement and reports its row count.
func (t *Tree) exec(ctx context.Context, tx DBTX, op, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, t.table.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	t.observer.ObserveRewrite(op, rows)
	return rows, nil
}

// samePartition rejects cross-partition references.
func samePartition(a, b *types.Node) error {
	if a.Partition != b.Partition {
		return fmt.Errorf("%w: %s in %q, %s in %q",
			types.ErrCrossPartition, a.ID, a.Partition, b.ID, b.Partition)
	}
	return nil
}
