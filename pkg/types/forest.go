package types

import (
	"context"
	"io"
)

// Forest is the backend-agnostic access point to a nested-set store.
// Callers attach to a backend, run structural batches, and detach when done.
type Forest interface {
	// Attach connects the Forest to the backend described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, operations return ErrForestDetached.
	Detach() error

	// Apply runs fn inside one write transaction scoped to partition. Any
	// error returned by fn or by a structural operation rolls the whole
	// batch back. Cached nodes are refreshed once after the commit.
	Apply(ctx context.Context, partition string, fn func(Batch) error) error

	// Create, Delete and Move are single-operation batches. Create puts a
	// child with an empty Partition in its parent's partition; inside Apply
	// an empty Partition means the batch partition instead.
	Create(ctx context.Context, n *Node) (string, error)
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, req MoveRequest) error

	Get(ctx context.Context, id string) (*Node, error)
	Children(ctx context.Context, id string) ([]*Node, error)
	Subtree(ctx context.Context, id string) ([]*Node, error)
	Ancestors(ctx context.Context, id string) ([]*Node, error)
	Roots(ctx context.Context, partition string) ([]*Node, error)
	Nodes(ctx context.Context, partition string) ([]*Node, error)
	Partitions(ctx context.Context) ([]string, error)

	// Check verifies the forest invariants of one partition.
	Check(ctx context.Context, partition string) error

	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) error
}

// Batch is the set of structural operations available inside Forest.Apply.
type Batch interface {
	// Create inserts n as a new root (ParentID nil) or as the last child of
	// ParentID. When n.ID is empty a UUID v7 is generated. Returns the id.
	Create(n *Node) (string, error)

	// Delete removes the node and all of its descendants.
	Delete(id string) error

	// Move relocates a node and its subtree.
	Move(req MoveRequest) error
}
