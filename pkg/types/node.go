package types

// DefaultPartition is the partition used when a forest is not partitioned.
const DefaultPartition = ""

// Interval is the (lft, rgt) pair bounding a node and all of its descendants.
type Interval struct {
	Lft int64 `json:"lft"`
	Rgt int64 `json:"rgt"`
}

// Size returns rgt - lft + 1. For a well-formed node this is always even and
// equal to twice the number of nodes in the subtree.
func (iv Interval) Size() int64 {
	return iv.Rgt - iv.Lft + 1
}

// Contains reports whether b lies strictly inside iv.
func (iv Interval) Contains(b Interval) bool {
	return iv.Lft < b.Lft && b.Rgt < iv.Rgt
}

// AfterRemoval returns the interval as it reads after the subtree occupying
// removed was contracted out of the same tree. Bounds to the right of the
// removed range move left by its size; an ancestor of the removed range
// keeps its lft and shrinks its rgt.
func (iv Interval) AfterRemoval(removed Interval) Interval {
	delta := removed.Size()
	out := iv
	if iv.Lft > removed.Rgt {
		out.Lft -= delta
	}
	if iv.Rgt > removed.Rgt {
		out.Rgt -= delta
	}
	return out
}

// Node is one row of a nested-set forest.
type Node struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id"`
	Lft       int64   `json:"lft"`
	Rgt       int64   `json:"rgt"`
	Level     int64   `json:"level"`
	TreeID    int64   `json:"tree_id"`
	Partition string  `json:"partition,omitempty"`
	Name      string  `json:"name"`
}

// Interval returns the node's (lft, rgt) pair.
func (n *Node) Interval() Interval {
	return Interval{Lft: n.Lft, Rgt: n.Rgt}
}

// Size returns the width of the node's interval.
func (n *Node) Size() int64 {
	return n.Interval().Size()
}

// DescendantCount derives the number of descendants from the interval width.
func (n *Node) DescendantCount() int64 {
	return (n.Size() - 2) / 2
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Contains reports whether b is a descendant of n. Nodes in different trees
// or partitions never contain each other.
func (n *Node) Contains(b *Node) bool {
	if n.TreeID != b.TreeID || n.Partition != b.Partition {
		return false
	}
	return n.Interval().Contains(b.Interval())
}

// Parent returns the parent id or "" for a root.
func (n *Node) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	return &c
}

// StringPtr returns a pointer to s. Convenience for ParentID and move hints.
func StringPtr(s string) *string {
	return &s
}

// MoveRequest describes a relocation. ParentID is the desired parent (nil
// moves the node to root level). Before and After name a sibling the node is
// placed next to; when set they override ParentID with that sibling's
// parent. Inside forces relocation to the last child of ParentID even when
// the parent does not change. At most one of Before, After and Inside may be
// set.
type MoveRequest struct {
	NodeID   string  `json:"node_id"`
	ParentID *string `json:"parent_id,omitempty"`
	Before   *string `json:"before,omitempty"`
	After    *string `json:"after,omitempty"`
	Inside   bool    `json:"inside,omitempty"`
}

// Validate rejects structurally meaningless requests before any write.
func (r MoveRequest) Validate() error {
	if r.NodeID == "" {
		return ErrInvalidID
	}
	hints := 0
	if r.Before != nil {
		hints++
	}
	if r.After != nil {
		hints++
	}
	if r.Inside {
		hints++
	}
	if hints > 1 {
		return ErrConflictingHints
	}
	if r.ParentID != nil && *r.ParentID == r.NodeID {
		return ErrOwnParent
	}
	if (r.Before != nil && *r.Before == r.NodeID) || (r.After != nil && *r.After == r.NodeID) {
		return ErrOwnSibling
	}
	if r.Inside && r.ParentID == nil {
		return ErrInsideWithoutParent
	}
	return nil
}
