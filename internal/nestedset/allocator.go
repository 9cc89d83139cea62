package nestedset

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// BeforeCreate assigns lft, rgt, level and tree_id to a node that is about
// to be inserted and opens room for it in its parent's tree. n.ParentID, if
// set, must reference a persisted node in the same partition. The caller
// inserts the row after BeforeCreate returns.
//
// A node without a parent becomes the root of a new tree numbered
// max(tree_id)+1. A node with a parent is appended as its last child: every
// row of the parent's tree with rgt >= parent.rgt grows by two, and rows
// starting right of parent.rgt shift by two.
func (t *Tree) BeforeCreate(ctx context.Context, tx DBTX, n *types.Node) error {
	if !t.table.Partitioned() {
		n.Partition = types.DefaultPartition
	}

	if n.ParentID == nil {
		treeID, err := t.registry.NextTreeID(ctx, tx, n.Partition)
		if err != nil {
			return err
		}
		n.Lft, n.Rgt = 1, 2
		n.Level = t.table.BaseLevel
		n.TreeID = treeID
		t.log.Debug().
			Str("node", n.ID).
			Int64("tree_id", treeID).
			Msg("allocated root")
		return nil
	}

	parent, err := t.ReadNode(ctx, tx, *n.ParentID)
	if err != nil {
		return fmt.Errorf("parent of %s: %w", n.ID, err)
	}
	if err := samePartition(n, parent); err != nil {
		return err
	}

	scope, scopeArgs := t.table.scope(parent.Partition)
	q := fmt.Sprintf(`UPDATE %[1]s SET
		%[2]s = CASE WHEN %[2]s > ? THEN %[2]s + 2 ELSE %[2]s END,
		%[3]s = %[3]s + 2
		WHERE %[3]s >= ? AND %[4]s = ?%[5]s`,
		t.table.Name, ColLft, ColRgt, ColTreeID, scope)
	args := append([]any{parent.Rgt, parent.Rgt, parent.TreeID}, scopeArgs...)
	rows, err := t.exec(ctx, tx, "insert", q, args...)
	if err != nil {
		return err
	}

	n.Lft = parent.Rgt
	n.Rgt = parent.Rgt + 1
	n.Level = parent.Level + 1
	n.TreeID = parent.TreeID

	t.log.Debug().
		Str("node", n.ID).
		Str("parent", parent.ID).
		Int64("tree_id", n.TreeID).
		Int64("lft", n.Lft).
		Int64("rows", rows).
		Msg("allocated child")
	return nil
}
