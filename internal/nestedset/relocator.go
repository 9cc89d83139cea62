package nestedset

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// Relocation reports what BeforeUpdate did.
type Relocation struct {
	// Moved is false when the request was a no-op and nothing was written.
	Moved bool
	// Subtree holds the moved node and its descendants, ordered by lft as
	// they were before the move.
	Subtree []string
	// OldParent and NewParent are the parent ids before and after.
	OldParent *string
	NewParent *string
	// OldTreeID and NewTreeID are the tree ids before and after.
	OldTreeID int64
	NewTreeID int64
}

// anchor is a sibling interval captured before the subtree is contracted.
type anchor struct {
	id        string
	iv        types.Interval
	treeID    int64
	partition string
}

// BeforeUpdate relocates a node and its subtree according to req and
// updates n to the node's new position. It rewrites lft, rgt, level and
// tree_id of the subtree and of the rows around both positions; the caller
// persists the node's own parent_id from n afterwards. The modes are:
//
//   - req.Before = X: the node becomes X's immediate left sibling;
//   - req.After = X: the node becomes X's immediate right sibling;
//   - req.ParentID = P, optionally with req.Inside: the node becomes P's
//     last child;
//   - req.ParentID = nil: the node becomes the root of a new tree.
//
// Sibling hints take the sibling's parent as the new parent. When a sibling
// is itself a root, the node becomes a root placed next to the sibling's tree
// and the tree ids after it are shifted to make room.
//
// BeforeUpdate does not detect cycles: moving a node under one of its own
// descendants corrupts the forest. Callers must reject such moves first.
func (t *Tree) BeforeUpdate(ctx context.Context, tx DBTX, n *types.Node, req types.MoveRequest) (Relocation, error) {
	if err := req.Validate(); err != nil {
		return Relocation{}, err
	}

	cur, err := t.ReadNode(ctx, tx, req.NodeID)
	if err != nil {
		return Relocation{}, err
	}

	newParent := req.ParentID
	var left, right *anchor
	// rootAnchor is the tree id the node's tree is placed after when it
	// lands at root level next to a sibling tree.
	var rootAnchor *int64

	if req.Before != nil {
		sib, err := t.sibling(ctx, tx, cur, *req.Before)
		if err != nil {
			return Relocation{}, err
		}
		newParent = sib.ParentID
		right = &anchor{id: sib.ID, iv: sib.Interval(), treeID: sib.TreeID, partition: sib.Partition}
		if sib.ParentID == nil {
			a := sib.TreeID - 1
			rootAnchor = &a
		}
	}
	if req.After != nil {
		sib, err := t.sibling(ctx, tx, cur, *req.After)
		if err != nil {
			return Relocation{}, err
		}
		newParent = sib.ParentID
		left = &anchor{id: sib.ID, iv: sib.Interval(), treeID: sib.TreeID, partition: sib.Partition}
		if sib.ParentID == nil {
			a := sib.TreeID
			rootAnchor = &a
		}
	}

	subtree, err := t.SubtreeIDs(ctx, tx, cur)
	if err != nil {
		return Relocation{}, err
	}

	rel := Relocation{
		Subtree:   subtree,
		OldParent: cur.ParentID,
		NewParent: cur.ParentID,
		OldTreeID: cur.TreeID,
		NewTreeID: cur.TreeID,
	}

	if left == nil && right == nil && !req.Inside && sameParent(cur.ParentID, newParent) {
		t.log.Debug().Str("node", cur.ID).Msg("move is a no-op")
		copyPosition(n, cur)
		return rel, nil
	}

	if newParent != nil {
		parent, err := t.ReadNode(ctx, tx, *newParent)
		if err != nil {
			return Relocation{}, fmt.Errorf("new parent of %s: %w", cur.ID, err)
		}
		if err := samePartition(cur, parent); err != nil {
			return Relocation{}, err
		}
		if cur.ParentID == nil && cur.TreeID == parent.TreeID {
			// A root asked to hang below a node of its own tree stays a root.
			t.log.Debug().Str("node", cur.ID).Str("parent", parent.ID).Msg("root stays root")
			copyPosition(n, cur)
			return rel, nil
		}
	}

	if err := t.remove(ctx, tx, cur, false); err != nil {
		return Relocation{}, err
	}

	// Sibling snapshots taken before the contraction are stale when they
	// sat in the same tree.
	removed := cur.Interval()
	for _, a := range []*anchor{left, right} {
		if a != nil && a.treeID == cur.TreeID && a.partition == cur.Partition {
			a.iv = a.iv.AfterRemoval(removed)
		}
	}

	if newParent != nil {
		if err := t.insertSubtree(ctx, tx, cur, subtree, *newParent, left, right, n); err != nil {
			return Relocation{}, err
		}
	} else {
		if err := t.promote(ctx, tx, cur, subtree, rootAnchor, n); err != nil {
			return Relocation{}, err
		}
	}

	rel.Moved = true
	rel.NewParent = n.ParentID
	rel.NewTreeID = n.TreeID
	return rel, nil
}

// sibling loads a positioning target and checks it shares cur's partition.
func (t *Tree) sibling(ctx context.Context, tx DBTX, cur *types.Node, id string) (*types.Node, error) {
	sib, err := t.ReadNode(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("sibling of %s: %w", cur.ID, err)
	}
	if err := samePartition(cur, sib); err != nil {
		return nil, err
	}
	return sib, nil
}

// insertSubtree lands the contracted subtree under parentID. The insertion
// point is right after the left sibling, at the right sibling, or at the
// parent's rgt (last child).
func (t *Tree) insertSubtree(ctx context.Context, tx DBTX, cur *types.Node, subtree []string,
	parentID string, left, right *anchor, n *types.Node) error {
	// Re-read the parent: the contraction may have moved it.
	parent, err := t.ReadNode(ctx, tx, parentID)
	if err != nil {
		return fmt.Errorf("new parent of %s: %w", cur.ID, err)
	}

	size := cur.Size()
	var at int64
	switch {
	case left != nil:
		at = left.iv.Rgt + 1
	case right != nil:
		at = right.iv.Lft
	default:
		at = parent.Rgt
	}

	in, inArgs := inList(subtree)

	q := fmt.Sprintf(`UPDATE %[1]s SET
		%[2]s = %[2]s - ? + ?,
		%[3]s = %[3]s - ? + ?,
		%[4]s = %[4]s - ? + ?,
		%[5]s = ?
		WHERE %[6]s IN %[7]s`,
		t.table.Name, ColLft, ColRgt, ColLevel, ColTreeID, t.table.PK, in)
	args := append([]any{cur.Lft, at, cur.Lft, at, cur.Level, parent.Level + 1, parent.TreeID}, inArgs...)
	if _, err := t.exec(ctx, tx, "relocate", q, args...); err != nil {
		return err
	}

	scope, scopeArgs := t.table.scope(parent.Partition)
	q = fmt.Sprintf(`UPDATE %[1]s SET
		%[2]s = CASE WHEN %[2]s >= ? THEN %[2]s + ? ELSE %[2]s END,
		%[3]s = %[3]s + ?
		WHERE %[3]s >= ? AND %[4]s = ? AND %[5]s NOT IN %[6]s%[7]s`,
		t.table.Name, ColLft, ColRgt, ColTreeID, t.table.PK, in, scope)
	args = append([]any{at, size, size, at, parent.TreeID}, inArgs...)
	args = append(args, scopeArgs...)
	rows, err := t.exec(ctx, tx, "insert", q, args...)
	if err != nil {
		return err
	}

	pid := parent.ID
	n.ID = cur.ID
	n.ParentID = &pid
	n.Lft = at
	n.Rgt = at + size - 1
	n.Level = parent.Level + 1
	n.TreeID = parent.TreeID
	n.Partition = cur.Partition

	t.log.Debug().
		Str("node", cur.ID).
		Str("parent", pid).
		Int64("from_tree_id", cur.TreeID).
		Int64("tree_id", parent.TreeID).
		Int64("lft", at).
		Int64("size", size).
		Int64("rows", rows).
		Msg("relocated subtree")
	return nil
}

// promote turns the contracted subtree into a standalone tree renumbered
// from 1. With rootAnchor set the tree is placed right after that tree id;
// otherwise it takes the next free id.
func (t *Tree) promote(ctx context.Context, tx DBTX, cur *types.Node, subtree []string,
	rootAnchor *int64, n *types.Node) error {
	var (
		treeID int64
		err    error
	)
	if rootAnchor != nil {
		treeID, err = t.registry.InsertTreeIDAfter(ctx, tx, cur.Partition, *rootAnchor)
	} else {
		treeID, err = t.registry.NextTreeID(ctx, tx, cur.Partition)
	}
	if err != nil {
		return err
	}

	in, inArgs := inList(subtree)
	q := fmt.Sprintf(`UPDATE %[1]s SET
		%[2]s = %[2]s - ? + 1,
		%[3]s = %[3]s - ? + 1,
		%[4]s = %[4]s - ? + ?,
		%[5]s = ?
		WHERE %[6]s IN %[7]s`,
		t.table.Name, ColLft, ColRgt, ColLevel, ColTreeID, t.table.PK, in)
	args := append([]any{cur.Lft, cur.Lft, cur.Level, t.table.BaseLevel, treeID}, inArgs...)
	if _, err := t.exec(ctx, tx, "promote", q, args...); err != nil {
		return err
	}

	n.ID = cur.ID
	n.ParentID = nil
	n.Lft = 1
	n.Rgt = cur.Size()
	n.Level = t.table.BaseLevel
	n.TreeID = treeID
	n.Partition = cur.Partition

	t.log.Debug().
		Str("node", cur.ID).
		Int64("from_tree_id", cur.TreeID).
		Int64("tree_id", treeID).
		Msg("promoted subtree to root")
	return nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyPosition(n, cur *types.Node) {
	n.ID = cur.ID
	n.ParentID = cur.ParentID
	n.Lft, n.Rgt = cur.Lft, cur.Rgt
	n.Level = cur.Level
	n.TreeID = cur.TreeID
	n.Partition = cur.Partition
}
