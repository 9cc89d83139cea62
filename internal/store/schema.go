package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/grove/internal/nestedset"
)

// schemaDDL returns the CREATE statements for the nodes table and its
// indexes. Both SQLite and PostgreSQL accept them.
func schemaDDL(t nestedset.Table) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
    %[2]s TEXT PRIMARY KEY,
    %[3]s TEXT,
    %[4]s BIGINT NOT NULL,
    %[5]s BIGINT NOT NULL,
    %[6]s BIGINT NOT NULL,
    %[7]s BIGINT NOT NULL,
    %[8]s TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT ''
);`, t.Name, t.PK, nestedset.ColParentID, nestedset.ColLft, nestedset.ColRgt,
			nestedset.ColLevel, nestedset.ColTreeID, t.PartitionColumn),

		// Range scans and shifts are always scoped to one tree.
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_tree_lft ON %[1]s(%[2]s, %[3]s, %[4]s);`,
			t.Name, t.PartitionColumn, nestedset.ColTreeID, nestedset.ColLft),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_tree_rgt ON %[1]s(%[2]s, %[3]s, %[4]s);`,
			t.Name, t.PartitionColumn, nestedset.ColTreeID, nestedset.ColRgt),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_parent ON %[1]s(%[2]s);`,
			t.Name, nestedset.ColParentID),
	}
}

// createSchema executes the DDL.
func createSchema(ctx context.Context, db *sql.DB, t nestedset.Table) error {
	for _, stmt := range schemaDDL(t) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
