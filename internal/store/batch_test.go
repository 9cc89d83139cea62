package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/grove/pkg/types"
)

func TestCreate_GeneratesUUID(t *testing.T) {
	b, _ := openBackend(t)
	id, err := b.Create(ctx, &types.Node{Name: "root"})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	n, err := b.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "root", n.Name)
	assert.Equal(t, int64(1), n.Lft)
	assert.Equal(t, int64(2), n.Rgt)
}

func TestCreate_Errors(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")

	_, err := b.Create(ctx, &types.Node{ID: "r"})
	assert.ErrorIs(t, err, types.ErrInvalidID, "duplicate id")

	_, err = b.Create(ctx, &types.Node{ID: "x", ParentID: sp("ghost")})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = b.Create(ctx, &types.Node{ID: "y", ParentID: sp("r"), Partition: "other"})
	assert.ErrorIs(t, err, types.ErrCrossPartition)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	assert.NoError(t, b.Check(ctx, ""))
}

func TestCreate_ChildInheritsParentPartition(t *testing.T) {
	b, _ := openBackend(t)
	_, err := b.Create(ctx, &types.Node{ID: "r", Partition: "p1"})
	require.NoError(t, err)

	child := &types.Node{ID: "c", ParentID: sp("r")}
	_, err = b.Create(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, "p1", child.Partition)
	assert.Equal(t, types.Interval{Lft: 2, Rgt: 3}, child.Interval())
	assert.NoError(t, b.Check(ctx, "p1"))

	// Inside a batch the batch partition still wins.
	err = b.Apply(ctx, "", func(bt types.Batch) error {
		_, err := bt.Create(&types.Node{ID: "d", ParentID: sp("r")})
		return err
	})
	assert.ErrorIs(t, err, types.ErrCrossPartition)
}

func TestApply_CommitsAllOperations(t *testing.T) {
	b, _ := openBackend(t)
	err := b.Apply(ctx, "", func(bt types.Batch) error {
		if _, err := bt.Create(&types.Node{ID: "r"}); err != nil {
			return err
		}
		for _, id := range []string{"a", "b", "c"} {
			if _, err := bt.Create(&types.Node{ID: id, ParentID: sp("r")}); err != nil {
				return err
			}
		}
		if err := bt.Move(types.MoveRequest{NodeID: "c", Before: sp("a")}); err != nil {
			return err
		}
		return bt.Delete("b")
	})
	require.NoError(t, err)

	kids, err := b.Children(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(kids))

	r, err := b.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(6), r.Rgt)
}

func TestApply_RollsBackOnError(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")
	add(t, b, "a", "r")
	before, err := b.Nodes(ctx, "")
	require.NoError(t, err)
	snapshot := make([]types.Node, len(before))
	for i, n := range before {
		snapshot[i] = *n.Clone()
	}

	boom := errors.New("boom")
	err = b.Apply(ctx, "", func(bt types.Batch) error {
		if _, err := bt.Create(&types.Node{ID: "b", ParentID: sp("r")}); err != nil {
			return err
		}
		if err := bt.Move(types.MoveRequest{NodeID: "a"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := b.Nodes(ctx, "")
	require.NoError(t, err)
	require.Len(t, after, len(snapshot))
	for i, n := range after {
		assert.Equal(t, snapshot[i], *n)
	}
	_, err = b.Get(ctx, "b")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestApply_FailedOperationRollsBackBatch(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")

	err := b.Apply(ctx, "", func(bt types.Batch) error {
		if _, err := bt.Create(&types.Node{ID: "a", ParentID: sp("r")}); err != nil {
			return err
		}
		return bt.Delete("ghost")
	})
	require.ErrorIs(t, err, types.ErrNotFound)

	kids, err := b.Children(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestMove_RejectsCycles(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")
	add(t, b, "a", "r")
	add(t, b, "a1", "a")
	add(t, b, "a11", "a1")
	add(t, b, "b", "r")

	tests := []struct {
		name string
		req  types.MoveRequest
	}{
		{"under own child", types.MoveRequest{NodeID: "a", ParentID: sp("a1")}},
		{"under grandchild", types.MoveRequest{NodeID: "a", ParentID: sp("a11")}},
		{"beside own grandchild", types.MoveRequest{NodeID: "a", After: sp("a11")}},
		{"root under own descendant", types.MoveRequest{NodeID: "r", ParentID: sp("b")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Move(ctx, tt.req)
			assert.ErrorIs(t, err, types.ErrCycle)
			assert.ErrorIs(t, err, types.ErrInvalidOperation)
		})
	}
	assert.NoError(t, b.Check(ctx, ""))
}

func TestMove_Errors(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")
	add(t, b, "a", "r")
	_, err := b.Create(ctx, &types.Node{ID: "p", Partition: "other"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  types.MoveRequest
		want error
	}{
		{"empty id", types.MoveRequest{}, types.ErrInvalidID},
		{"missing node", types.MoveRequest{NodeID: "ghost"}, types.ErrNotFound},
		{"missing parent", types.MoveRequest{NodeID: "a", ParentID: sp("ghost")}, types.ErrNotFound},
		{"conflicting hints", types.MoveRequest{NodeID: "a", Before: sp("r"), Inside: true}, types.ErrConflictingHints},
		{"cross partition", types.MoveRequest{NodeID: "a", ParentID: sp("p")}, types.ErrCrossPartition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, b.Move(ctx, tt.req), tt.want)
		})
	}
}

func TestMove_ToCurrentParentIsNoOp(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")
	add(t, b, "a", "r")
	require.NoError(t, b.Move(ctx, types.MoveRequest{NodeID: "a", ParentID: sp("r")}))

	a, err := b.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "r", a.Parent())
	assert.Equal(t, int64(2), a.Lft)
}

func TestApply_RefreshesCachedNodes(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")
	add(t, b, "p", "r")
	add(t, b, "x", "p")
	add(t, b, "q", "r")

	// Materialize everything and keep the pointers.
	r, _ := b.Get(ctx, "r")
	p, _ := b.Get(ctx, "p")
	x, _ := b.Get(ctx, "x")
	q, _ := b.Get(ctx, "q")

	require.NoError(t, b.Move(ctx, types.MoveRequest{NodeID: "p", ParentID: sp("q")}))

	// r(1,8) q(2,7) p(3,6) x(4,5)
	assert.Equal(t, types.Interval{Lft: 1, Rgt: 8}, r.Interval())
	assert.Equal(t, types.Interval{Lft: 2, Rgt: 7}, q.Interval())
	assert.Equal(t, types.Interval{Lft: 3, Rgt: 6}, p.Interval())
	assert.Equal(t, types.Interval{Lft: 4, Rgt: 5}, x.Interval())
	assert.Equal(t, int64(2), p.Level)
	assert.Equal(t, int64(3), x.Level)
	assert.Equal(t, "q", p.Parent())

	same, err := b.Get(ctx, "x")
	require.NoError(t, err)
	assert.Same(t, x, same)
}

func TestApply_RefreshesCachedCousins(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")
	add(t, b, "x", "r")
	add(t, b, "y", "r")
	add(t, b, "z", "y")

	// Only z is materialized; neither it nor its parent is touched below.
	z, err := b.Get(ctx, "z")
	require.NoError(t, err)
	require.Equal(t, types.Interval{Lft: 5, Rgt: 6}, z.Interval())

	add(t, b, "x1", "x")

	// r(1,10) x(2,5) x1(3,4) y(6,9) z(7,8)
	assert.Equal(t, types.Interval{Lft: 7, Rgt: 8}, z.Interval())
}

func TestApply_RefreshesRenumberedTrees(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "a", "")
	add(t, b, "b", "")
	add(t, b, "c", "a")

	bn, err := b.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, int64(2), bn.TreeID)

	require.NoError(t, b.Move(ctx, types.MoveRequest{NodeID: "c", Before: sp("a")}))

	assert.Equal(t, int64(3), bn.TreeID)
	fresh, err := b.Get(ctx, "b")
	require.NoError(t, err)
	assert.Same(t, bn, fresh)
}

func TestApply_EvictsDeletedNodes(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "r", "")
	add(t, b, "a", "r")
	add(t, b, "a1", "a")
	_, err := b.Subtree(ctx, "r")
	require.NoError(t, err)
	require.Equal(t, 3, b.nodes.len())

	require.NoError(t, b.Delete(ctx, "a"))
	assert.False(t, b.nodes.IsLoaded("a"))
	assert.False(t, b.nodes.IsLoaded("a1"))
	r, err := b.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Rgt)
}

func TestApply_PromoteAndRootOrder(t *testing.T) {
	b, _ := openBackend(t)
	add(t, b, "t1", "")
	add(t, b, "t2", "")
	add(t, b, "c", "t2")

	require.NoError(t, b.Move(ctx, types.MoveRequest{NodeID: "c", Before: sp("t1")}))

	roots, err := b.Roots(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "t1", "t2"}, ids(roots))
	assert.NoError(t, b.Check(ctx, ""))
}

func TestApply_PartitionsAreIndependent(t *testing.T) {
	b, _ := openBackend(t)
	for _, part := range []string{"p1", "p2"} {
		_, err := b.Create(ctx, &types.Node{ID: part + "-a", Partition: part})
		require.NoError(t, err)
		_, err = b.Create(ctx, &types.Node{ID: part + "-b", Partition: part})
		require.NoError(t, err)
	}

	a1, _ := b.Get(ctx, "p1-a")
	a2, _ := b.Get(ctx, "p2-a")
	assert.Equal(t, int64(1), a1.TreeID)
	assert.Equal(t, int64(1), a2.TreeID)

	require.NoError(t, b.Move(ctx, types.MoveRequest{NodeID: "p1-b", Before: sp("p1-a")}))
	assert.Equal(t, int64(2), a1.TreeID)
	assert.Equal(t, int64(1), a2.TreeID)

	err := b.Apply(ctx, "p1", func(bt types.Batch) error {
		return bt.Delete("p2-a")
	})
	assert.ErrorIs(t, err, types.ErrCrossPartition)

	parts, err := b.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, parts)
}
