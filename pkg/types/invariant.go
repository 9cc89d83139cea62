package types

import (
	"fmt"
	"sort"
)

type treeKey struct {
	partition string
	treeID    int64
}

// CheckForest verifies the nested-set invariants over every partition and
// tree present in nodes:
//
//   - every node has lft < rgt and rgt = lft + 2*descendants + 1;
//   - intervals within a tree nest or are disjoint, never partially overlap;
//   - children are contiguous inside their parent, ordered by lft, and the
//     lft/rgt values of a tree with n nodes are exactly 1..2n;
//   - level(child) = level(parent) + 1 and roots sit at baseLevel;
//   - each tree_id holds exactly one root.
//
// The first violation found is returned wrapped in ErrConsistencyViolation.
func CheckForest(nodes []*Node, baseLevel int64) error {
	trees := make(map[treeKey][]*Node)
	for _, n := range nodes {
		if n.TreeID <= 0 {
			return violation(n, "tree_id %d is not positive", n.TreeID)
		}
		k := treeKey{n.Partition, n.TreeID}
		trees[k] = append(trees[k], n)
	}

	keys := make([]treeKey, 0, len(trees))
	for k := range trees {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].partition != keys[j].partition {
			return keys[i].partition < keys[j].partition
		}
		return keys[i].treeID < keys[j].treeID
	})

	for _, k := range keys {
		if err := checkTree(trees[k], baseLevel); err != nil {
			return err
		}
	}
	return nil
}

func checkTree(tree []*Node, baseLevel int64) error {
	sort.Slice(tree, func(i, j int) bool { return tree[i].Lft < tree[j].Lft })

	root := tree[0]
	if root.ParentID != nil {
		return violation(root, "leftmost node of tree %d is not a root", root.TreeID)
	}
	if root.Level != baseLevel {
		return violation(root, "root level %d, want %d", root.Level, baseLevel)
	}

	seen := make(map[int64]bool, 2*len(tree))
	descendants := make(map[string]int64, len(tree))
	var stack []*Node

	for i, n := range tree {
		if n.Lft >= n.Rgt {
			return violation(n, "lft %d is not below rgt %d", n.Lft, n.Rgt)
		}
		for _, v := range []int64{n.Lft, n.Rgt} {
			if v < 1 || v > int64(2*len(tree)) {
				return violation(n, "bound %d outside 1..%d", v, 2*len(tree))
			}
			if seen[v] {
				return violation(n, "bound %d used twice in tree %d", v, n.TreeID)
			}
			seen[v] = true
		}

		for len(stack) > 0 && stack[len(stack)-1].Rgt < n.Lft {
			stack = stack[:len(stack)-1]
		}
		if i > 0 {
			if len(stack) == 0 {
				return violation(n, "second top-level node in tree %d", n.TreeID)
			}
			parent := stack[len(stack)-1]
			if n.Rgt > parent.Rgt {
				return violation(n, "interval (%d, %d) overlaps (%d, %d) of %s",
					n.Lft, n.Rgt, parent.Lft, parent.Rgt, parent.ID)
			}
			if n.ParentID == nil || *n.ParentID != parent.ID {
				return violation(n, "parent_id %q but enclosing node is %s", n.Parent(), parent.ID)
			}
			if n.Level != parent.Level+1 {
				return violation(n, "level %d under parent level %d", n.Level, parent.Level)
			}
			for _, a := range stack {
				descendants[a.ID]++
			}
		}
		stack = append(stack, n)
	}

	for _, n := range tree {
		if want := n.Lft + 2*descendants[n.ID] + 1; n.Rgt != want {
			return violation(n, "rgt %d, want %d for %d descendants", n.Rgt, want, descendants[n.ID])
		}
	}
	return nil
}

func violation(n *Node, format string, args ...any) error {
	return fmt.Errorf("%w: node %s (partition %q): %s",
		ErrConsistencyViolation, n.ID, n.Partition, fmt.Sprintf(format, args...))
}
