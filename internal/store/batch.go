package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/grove/internal/logger"
	"github.com/mesh-intelligence/grove/internal/nestedset"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// batch is the types.Batch handed to Apply callbacks. It is only valid
// until the callback returns.
type batch struct {
	ctx       context.Context
	tx        *sql.Tx
	b         *Backend
	partition string

	touched []string
	seen    map[string]bool
	ops     int

	// trees holds the tree ids whose intervals the batch rewrote. After a
	// promotion every tree id of the partition may have shifted.
	trees      map[int64]bool
	renumbered bool
}

func (bt *batch) shifted(treeIDs ...int64) {
	if bt.trees == nil {
		bt.trees = make(map[int64]bool)
	}
	for _, id := range treeIDs {
		bt.trees[id] = true
	}
}

func (bt *batch) touch(ids ...string) {
	for _, id := range ids {
		if id != "" && !bt.seen[id] {
			bt.seen[id] = true
			bt.touched = append(bt.touched, id)
		}
	}
}

func (bt *batch) touchPtr(id *string) {
	if id != nil {
		bt.touch(*id)
	}
}

// owned reads a node and checks it belongs to the batch partition.
func (bt *batch) owned(id string) (*types.Node, error) {
	n, err := bt.b.readNode(bt.ctx, bt.tx, id)
	if err != nil {
		return nil, err
	}
	if n.Partition != bt.partition {
		return nil, fmt.Errorf("%w: %s is in %q, batch is %q",
			types.ErrCrossPartition, id, n.Partition, bt.partition)
	}
	return n, nil
}

// Create inserts n. An empty ID gets a UUID v7; an empty Partition takes
// the batch partition.
func (bt *batch) Create(n *types.Node) (string, error) {
	err := bt.create(n)
	bt.b.recordOperation("create", err)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

func (bt *batch) create(n *types.Node) error {
	if n.Partition == "" {
		n.Partition = bt.partition
	}
	if n.Partition != bt.partition {
		return fmt.Errorf("%w: node in %q, batch is %q", types.ErrCrossPartition, n.Partition, bt.partition)
	}
	if n.ID == "" {
		n.ID = generateUUID()
	} else if _, err := bt.b.readNode(bt.ctx, bt.tx, n.ID); err == nil {
		return fmt.Errorf("%w: %s already exists", types.ErrInvalidID, n.ID)
	}
	if n.ParentID != nil {
		if _, err := bt.owned(*n.ParentID); err != nil {
			return err
		}
	}

	if err := bt.b.tree.BeforeCreate(bt.ctx, bt.tx, n); err != nil {
		return err
	}

	t := bt.b.table
	q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, name) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		t.Name, t.PK, nestedset.ColParentID, nestedset.ColLft, nestedset.ColRgt,
		nestedset.ColLevel, nestedset.ColTreeID, t.PartitionColumn)
	if _, err := bt.tx.ExecContext(bt.ctx, t.Rebind(q),
		n.ID, n.ParentID, n.Lft, n.Rgt, n.Level, n.TreeID, n.Partition, n.Name); err != nil {
		return fmt.Errorf("inserting %s: %w", n.ID, err)
	}

	bt.ops++
	bt.touch(n.ID)
	bt.touchPtr(n.ParentID)
	bt.shifted(n.TreeID)
	return nil
}

// Delete removes id and its descendants.
func (bt *batch) Delete(id string) error {
	err := bt.delete(id)
	bt.b.recordOperation("delete", err)
	return err
}

func (bt *batch) delete(id string) error {
	n, err := bt.owned(id)
	if err != nil {
		return err
	}
	ids, err := bt.b.tree.BeforeDelete(bt.ctx, bt.tx, n, true)
	if err != nil {
		return err
	}
	bt.ops++
	bt.touchPtr(n.ParentID)
	bt.touch(ids...)
	bt.shifted(n.TreeID)
	return nil
}

// Move relocates a node. Moves under the node itself or one of its
// descendants fail with ErrCycle before anything is written.
func (bt *batch) Move(req types.MoveRequest) error {
	err := bt.move(req)
	bt.b.recordOperation("move", err)
	return err
}

func (bt *batch) move(req types.MoveRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	cur, err := bt.owned(req.NodeID)
	if err != nil {
		return err
	}

	target := req.ParentID
	for _, sib := range []*string{req.Before, req.After} {
		if sib == nil {
			continue
		}
		s, err := bt.owned(*sib)
		if err != nil {
			return err
		}
		target = s.ParentID
		bt.touch(s.ID)
	}
	if target != nil {
		p, err := bt.owned(*target)
		if err != nil {
			return err
		}
		if p.ID == cur.ID || cur.Contains(p) {
			return fmt.Errorf("%w: %s under %s", types.ErrCycle, cur.ID, p.ID)
		}
	}

	n := &types.Node{}
	rel, err := bt.b.tree.BeforeUpdate(bt.ctx, bt.tx, n, req)
	if err != nil {
		return err
	}
	if !rel.Moved {
		return nil
	}

	t := bt.b.table
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", t.Name, nestedset.ColParentID, t.PK)
	if _, err := bt.tx.ExecContext(bt.ctx, t.Rebind(q), n.ParentID, n.ID); err != nil {
		return fmt.Errorf("updating parent of %s: %w", n.ID, err)
	}

	bt.ops++
	bt.touchPtr(rel.OldParent)
	bt.touchPtr(rel.NewParent)
	bt.touch(rel.Subtree...)
	bt.shifted(rel.OldTreeID, rel.NewTreeID)
	if rel.NewParent == nil {
		bt.renumbered = true
	}
	return nil
}

// Apply runs fn in one transaction holding the partition's write lock.
// With Verify set the partition is checked before commit. After commit the
// invalidator runs once over every node the batch touched and the stale
// cached nodes are refreshed in place.
func (b *Backend) Apply(ctx context.Context, partition string, fn func(types.Batch) error) (err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrForestDetached
	}

	unlock := b.lockPartition(partition)
	defer unlock()

	start := time.Now()
	log := logger.Store(b.log, "apply", partition)
	defer func() {
		if b.metrics != nil {
			b.metrics.RecordBatch(time.Since(start), err)
		}
	}()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	if err := b.lockPartitionTx(ctx, tx, partition); err != nil {
		return err
	}

	bt := &batch{ctx: ctx, tx: tx, b: b, partition: partition, seen: make(map[string]bool)}
	if err := fn(bt); err != nil {
		log.Debug().Err(err).Msg("batch rolled back")
		return err
	}

	if b.config.Verify {
		nodes, err := b.partitionNodes(ctx, tx, partition)
		if err != nil {
			return err
		}
		if err := types.CheckForest(nodes, b.table.BaseLevel); err != nil {
			if b.metrics != nil {
				b.metrics.RecordViolation()
			}
			log.Error().Err(err).Msg("batch failed forest check")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	// The invalidator covers ancestors and descendants of the touched
	// nodes. Cached nodes elsewhere in a rewritten tree, and every cached
	// node of the partition after tree ids were renumbered, are added.
	stale := nestedset.Invalidate(bt.touched, b.nodes)
	stale = mergeIDs(stale, b.nodes.inTrees(partition, bt.trees, bt.renumbered))
	if err := b.refresh(ctx, stale); err != nil {
		return fmt.Errorf("refresh cached nodes: %w", err)
	}
	if b.metrics != nil {
		b.metrics.RecordInvalidated(len(stale))
	}

	log.Debug().
		Int("operations", bt.ops).
		Int("touched", len(bt.touched)).
		Int("refreshed", len(stale)).
		Dur("duration", time.Since(start)).
		Msg("batch committed")

	if bt.ops == 0 {
		return nil
	}
	return b.mirrorWrite("apply")
}

// Create inserts a single node in its own batch. A child with an empty
// Partition joins its parent's partition.
func (b *Backend) Create(ctx context.Context, n *types.Node) (string, error) {
	partition := n.Partition
	if partition == "" && n.ParentID != nil {
		p, err := b.partitionOf(ctx, *n.ParentID)
		if err != nil {
			return "", err
		}
		partition = p
	}
	var id string
	err := b.Apply(ctx, partition, func(bt types.Batch) error {
		var err error
		id, err = bt.Create(n)
		return err
	})
	return id, err
}

// Delete removes a node and its descendants in its own batch.
func (b *Backend) Delete(ctx context.Context, id string) error {
	partition, err := b.partitionOf(ctx, id)
	if err != nil {
		return err
	}
	return b.Apply(ctx, partition, func(bt types.Batch) error {
		return bt.Delete(id)
	})
}

// Move relocates a node in its own batch.
func (b *Backend) Move(ctx context.Context, req types.MoveRequest) error {
	partition, err := b.partitionOf(ctx, req.NodeID)
	if err != nil {
		return err
	}
	return b.Apply(ctx, partition, func(bt types.Batch) error {
		return bt.Move(req)
	})
}

// partitionOf looks up the partition of an existing node.
func (b *Backend) partitionOf(ctx context.Context, id string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.attachedDB()
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", types.ErrInvalidID
	}
	n, err := b.readNode(ctx, db, id)
	if err != nil {
		return "", err
	}
	return n.Partition, nil
}

func (b *Backend) recordOperation(op string, err error) {
	if b.metrics != nil {
		b.metrics.RecordOperation(op, err)
	}
}

// mergeIDs appends the ids of extra missing from ids.
func mergeIDs(ids, extra []string) []string {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range extra {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
