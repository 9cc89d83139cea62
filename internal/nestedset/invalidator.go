package nestedset

// Materialized is the host's view of node objects already loaded in memory.
// None of its methods may query the store.
type Materialized interface {
	// IsLoaded reports whether id is materialized.
	IsLoaded(id string) bool
	// LoadedParent returns the parent of id when both the relation and the
	// parent object are loaded.
	LoadedParent(id string) (string, bool)
	// LoadedChildren returns the loaded children of id.
	LoadedChildren(id string) []string
}

// Invalidate returns, in marking order, the ids whose cached lft, rgt,
// tree_id and level went stale after a committed batch that touched the
// given nodes. For each touched node that is loaded it marks the loaded
// ancestor chain, stopping at the root or at an ancestor already marked in
// this pass, then the node itself, then every loaded descendant.
//
// The host decides how to refresh the returned ids.
func Invalidate(touched []string, m Materialized) []string {
	marked := make(map[string]bool)
	descended := make(map[string]bool)
	var stale []string

	mark := func(id string) {
		if !marked[id] {
			marked[id] = true
			stale = append(stale, id)
		}
	}

	for _, id := range touched {
		if !m.IsLoaded(id) {
			continue
		}

		parent, ok := m.LoadedParent(id)
		for ok && !marked[parent] {
			mark(parent)
			parent, ok = m.LoadedParent(parent)
		}

		mark(id)

		stack := []string{id}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if descended[top] {
				continue
			}
			descended[top] = true
			for _, child := range m.LoadedChildren(top) {
				mark(child)
				stack = append(stack, child)
			}
		}
	}
	return stale
}
