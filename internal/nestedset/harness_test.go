package nestedset

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// harness drives a Tree against an in-memory SQLite table, committing one
// transaction per operation the way a host data layer would.
type harness struct {
	t    *testing.T
	db   *sql.DB
	tree *Tree
}

func newHarness(t *testing.T, table Table) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	partCol := ""
	if table.Partitioned() {
		partCol = fmt.Sprintf(", %s TEXT NOT NULL DEFAULT ''", table.PartitionColumn)
	}
	ddl := fmt.Sprintf(`CREATE TABLE %s (
    %s TEXT PRIMARY KEY,
    parent_id TEXT,
    lft INTEGER NOT NULL,
    rgt INTEGER NOT NULL,
    level INTEGER NOT NULL,
    tree_id INTEGER NOT NULL%s
);`, table.Name, table.PK, partCol)
	_, err = db.Exec(ddl)
	require.NoError(t, err)

	tree, err := New(table)
	require.NoError(t, err)
	return &harness{t: t, db: db, tree: tree}
}

func (h *harness) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := h.db.Begin()
	require.NoError(h.t, err)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// tryCreate inserts a node under parent ("" for a root).
func (h *harness) tryCreate(id, parent, partition string) (*types.Node, error) {
	n := &types.Node{ID: id, Partition: partition}
	if parent != "" {
		n.ParentID = types.StringPtr(parent)
	}
	err := h.inTx(func(tx *sql.Tx) error {
		if err := h.tree.BeforeCreate(context.Background(), tx, n); err != nil {
			return err
		}
		tbl := h.tree.Table()
		cols := "id, parent_id, lft, rgt, level, tree_id"
		vals := "?, ?, ?, ?, ?, ?"
		args := []any{n.ID, n.ParentID, n.Lft, n.Rgt, n.Level, n.TreeID}
		if tbl.Partitioned() {
			cols += ", " + tbl.PartitionColumn
			vals += ", ?"
			args = append(args, n.Partition)
		}
		_, err := tx.Exec(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tbl.Name, cols, vals), args...)
		return err
	})
	return n, err
}

func (h *harness) create(id, parent string) *types.Node {
	h.t.Helper()
	n, err := h.tryCreate(id, parent, "")
	require.NoError(h.t, err)
	return n
}

func (h *harness) tryDelete(id string) ([]string, error) {
	var ids []string
	err := h.inTx(func(tx *sql.Tx) error {
		var err error
		ids, err = h.tree.BeforeDelete(context.Background(), tx, &types.Node{ID: id}, true)
		return err
	})
	return ids, err
}

func (h *harness) delete(id string) []string {
	h.t.Helper()
	ids, err := h.tryDelete(id)
	require.NoError(h.t, err)
	return ids
}

func (h *harness) tryMove(req types.MoveRequest) (Relocation, error) {
	var rel Relocation
	err := h.inTx(func(tx *sql.Tx) error {
		n := &types.Node{}
		var err error
		rel, err = h.tree.BeforeUpdate(context.Background(), tx, n, req)
		if err != nil {
			return err
		}
		_, err = tx.Exec("UPDATE "+h.tree.Table().Name+" SET parent_id = ? WHERE "+h.tree.Table().PK+" = ?",
			n.ParentID, n.ID)
		return err
	})
	return rel, err
}

func (h *harness) move(req types.MoveRequest) Relocation {
	h.t.Helper()
	rel, err := h.tryMove(req)
	require.NoError(h.t, err)
	return rel
}

func (h *harness) node(id string) *types.Node {
	h.t.Helper()
	var n *types.Node
	require.NoError(h.t, h.inTx(func(tx *sql.Tx) error {
		var err error
		n, err = h.tree.ReadNode(context.Background(), tx, id)
		return err
	}))
	return n
}

func (h *harness) all() []*types.Node {
	h.t.Helper()
	tbl := h.tree.Table()
	rows, err := h.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY tree_id, lft", tbl.columns(), tbl.Name))
	require.NoError(h.t, err)
	defer rows.Close()
	var out []*types.Node
	for rows.Next() {
		n, err := h.tree.scanNode(rows)
		require.NoError(h.t, err)
		out = append(out, n)
	}
	require.NoError(h.t, rows.Err())
	return out
}

func (h *harness) snapshot() map[string]types.Node {
	out := make(map[string]types.Node)
	for _, n := range h.all() {
		out[n.ID] = *n
	}
	return out
}

func (h *harness) check() {
	h.t.Helper()
	require.NoError(h.t, types.CheckForest(h.all(), h.tree.Table().BaseLevel))
}

// pos is the (lft, rgt, level, tree_id) tuple of a node.
type pos struct{ lft, rgt, level, tree int64 }

func (h *harness) pos(id string) pos {
	n := h.node(id)
	return pos{n.Lft, n.Rgt, n.Level, n.TreeID}
}

func (h *harness) children(parent string) []string {
	h.t.Helper()
	rows, err := h.db.Query("SELECT id FROM nodes WHERE parent_id = ? ORDER BY lft", parent)
	require.NoError(h.t, err)
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(h.t, rows.Scan(&id))
		ids = append(ids, id)
	}
	return ids
}
