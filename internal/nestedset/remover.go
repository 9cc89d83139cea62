package nestedset

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// BeforeDelete contracts a node and its subtree out of its tree's numbering.
// With del set the rows in [lft, rgt] are deleted as well; without it they
// stay in place with their old bounds, ready for the relocator to land them
// elsewhere. It returns the subtree ids ordered by lft.
//
// The gap is closed whenever the node had a parent or the rows are kept.
// Deleting a root removes its whole tree, so nothing is left to renumber.
func (t *Tree) BeforeDelete(ctx context.Context, tx DBTX, n *types.Node, del bool) ([]string, error) {
	cur, err := t.ReadNode(ctx, tx, n.ID)
	if err != nil {
		return nil, err
	}
	ids, err := t.SubtreeIDs(ctx, tx, cur)
	if err != nil {
		return nil, err
	}
	if err := t.remove(ctx, tx, cur, del); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *Tree) remove(ctx context.Context, tx DBTX, cur *types.Node, del bool) error {
	delta := cur.Size()
	scope, scopeArgs := t.table.scope(cur.Partition)

	if del {
		q := fmt.Sprintf("DELETE FROM %s WHERE %s >= ? AND %s <= ? AND %s = ?%s",
			t.table.Name, ColLft, ColRgt, ColTreeID, scope)
		args := append([]any{cur.Lft, cur.Rgt, cur.TreeID}, scopeArgs...)
		if _, err := t.exec(ctx, tx, "delete", q, args...); err != nil {
			return err
		}
	}

	if cur.ParentID == nil && del {
		t.log.Debug().
			Str("node", cur.ID).
			Int64("tree_id", cur.TreeID).
			Msg("deleted tree")
		return nil
	}

	// Only rows ending right of the subtree move. The subtree itself keeps
	// its bounds when it is being relocated.
	q := fmt.Sprintf(`UPDATE %[1]s SET
		%[2]s = CASE WHEN %[2]s > ? THEN %[2]s - ? ELSE %[2]s END,
		%[3]s = %[3]s - ?
		WHERE %[3]s > ? AND %[4]s = ?%[5]s`,
		t.table.Name, ColLft, ColRgt, ColTreeID, scope)
	args := append([]any{cur.Lft, delta, delta, cur.Rgt, cur.TreeID}, scopeArgs...)
	rows, err := t.exec(ctx, tx, "remove", q, args...)
	if err != nil {
		return err
	}

	t.log.Debug().
		Str("node", cur.ID).
		Int64("tree_id", cur.TreeID).
		Int64("delta", delta).
		Bool("delete", del).
		Int64("rows", rows).
		Msg("closed gap")
	return nil
}
