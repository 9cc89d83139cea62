package nestedset

import (
	"context"
	"fmt"
)

// Registry allocates tree ids within a partition. Its methods must run in the
// same transaction as the structural write that consumes the id; two root
// insertions in concurrent transactions would otherwise claim the same one.
type Registry struct {
	table Table
	tree  *Tree
}

// MaxTreeID returns the largest tree_id in the partition, or 0 when empty.
func (r *Registry) MaxTreeID(ctx context.Context, tx DBTX, partition string) (int64, error) {
	scope, args := r.table.scope(partition)
	q := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s WHERE 1 = 1%s", ColTreeID, r.table.Name, scope)
	var maxID int64
	if err := tx.QueryRowContext(ctx, r.table.Rebind(q), args...).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("reading max tree_id: %w", err)
	}
	return maxID, nil
}

// NextTreeID returns max(tree_id) + 1 for the partition, 1 when it is empty.
func (r *Registry) NextTreeID(ctx context.Context, tx DBTX, partition string) (int64, error) {
	maxID, err := r.MaxTreeID(ctx, tx, partition)
	if err != nil {
		return 0, err
	}
	return maxID + 1, nil
}

// InsertTreeIDAfter shifts every tree_id greater than anchor up by one and
// returns anchor + 1, which is then free.
func (r *Registry) InsertTreeIDAfter(ctx context.Context, tx DBTX, partition string, anchor int64) (int64, error) {
	scope, scopeArgs := r.table.scope(partition)
	q := fmt.Sprintf("UPDATE %s SET %s = %s + 1 WHERE %s > ?%s",
		r.table.Name, ColTreeID, ColTreeID, ColTreeID, scope)
	if _, err := r.tree.exec(ctx, tx, "renumber", q, append([]any{anchor}, scopeArgs...)...); err != nil {
		return 0, err
	}
	r.tree.log.Debug().
		Str("partition", partition).
		Int64("anchor_tree_id", anchor).
		Msg("opened tree id")
	return anchor + 1, nil
}
