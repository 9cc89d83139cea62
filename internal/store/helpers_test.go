package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/grove/pkg/types"
)

var ctx = context.Background()

// openBackend attaches a sqlite backend in a temp dir. Options adjust the
// config before attach.
func openBackend(t *testing.T, opts ...func(*types.Config)) (*Backend, types.Config) {
	t.Helper()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir(), Verify: true}
	for _, o := range opts {
		o(&cfg)
	}
	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	t.Cleanup(func() { b.Detach() })
	return b, cfg
}

func add(t *testing.T, b *Backend, id, parent string) *types.Node {
	t.Helper()
	n := &types.Node{ID: id, Name: id}
	if parent != "" {
		n.ParentID = types.StringPtr(parent)
	}
	_, err := b.Create(ctx, n)
	require.NoError(t, err)
	return n
}

func ids(nodes []*types.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func sp(s string) *string { return types.StringPtr(s) }
