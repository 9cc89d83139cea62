package store

import (
	"sort"
	"sync"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// identityMap holds one *types.Node per id for every node handed out by the
// backend. Reads merge fresh rows into the existing object so callers
// holding a pointer see the new position; after a batch the backend
// refreshes the ids the invalidator marks stale.
//
// It implements nestedset.Materialized and never queries the store.
type identityMap struct {
	mu    sync.Mutex
	nodes map[string]*types.Node
}

func newIdentityMap() *identityMap {
	return &identityMap{nodes: make(map[string]*types.Node)}
}

func (m *identityMap) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[string]*types.Node)
}

// adopt merges fresh into the cached object for its id and returns the
// cached pointer.
func (m *identityMap) adopt(fresh *types.Node) *types.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.nodes[fresh.ID]; ok {
		*cur = *fresh
		return cur
	}
	m.nodes[fresh.ID] = fresh
	return fresh
}

func (m *identityMap) adoptAll(fresh []*types.Node) []*types.Node {
	out := make([]*types.Node, len(fresh))
	for i, n := range fresh {
		out[i] = m.adopt(n)
	}
	return out
}

func (m *identityMap) evict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
}

func (m *identityMap) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// inTrees returns the cached ids of partition whose cached tree id is in
// trees, or every cached id of partition when all is set.
func (m *identityMap) inTrees(partition string, trees map[int64]bool, all bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, n := range m.nodes {
		if n.Partition == partition && (all || trees[n.TreeID]) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (m *identityMap) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// IsLoaded reports whether id is cached.
func (m *identityMap) IsLoaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[id]
	return ok
}

// LoadedParent returns the cached parent relation of id when the parent is
// cached too.
func (m *identityMap) LoadedParent(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok || n.ParentID == nil {
		return "", false
	}
	if _, ok := m.nodes[*n.ParentID]; !ok {
		return "", false
	}
	return *n.ParentID, true
}

// LoadedChildren returns the cached children of id in cached lft order.
func (m *identityMap) LoadedChildren(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kids []*types.Node
	for _, n := range m.nodes {
		if n.ParentID != nil && *n.ParentID == id {
			kids = append(kids, n)
		}
	}
	sort.Slice(kids, func(i, j int) bool { return kids[i].Lft < kids[j].Lft })
	out := make([]string, len(kids))
	for i, n := range kids {
		out[i] = n.ID
	}
	return out
}
