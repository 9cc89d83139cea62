package nestedset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr bool
	}{
		{"default", DefaultTable(), false},
		{"partitioned", Table{Name: "pages", PK: "page_id", PartitionColumn: "audit_id"}, false},
		{"empty name", Table{PK: "id"}, true},
		{"injected name", Table{Name: "nodes; DROP TABLE x", PK: "id"}, true},
		{"bad pk", Table{Name: "nodes", PK: "1id"}, true},
		{"bad partition column", Table{Name: "nodes", PK: "id", PartitionColumn: "audit-id"}, true},
		{"negative base level", Table{Name: "nodes", PK: "id", BaseLevel: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTable)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNew_RejectsInvalidTable(t *testing.T) {
	_, err := New(Table{Name: "", PK: "id"})
	require.ErrorIs(t, err, ErrInvalidTable)
}

func TestTableRebind(t *testing.T) {
	q := "UPDATE nodes SET lft = ? WHERE tree_id = ? AND audit_id = ?"

	assert.Equal(t, q, DefaultTable().Rebind(q))

	pg := DefaultTable()
	pg.Placeholder = Dollar
	assert.Equal(t, "UPDATE nodes SET lft = $1 WHERE tree_id = $2 AND audit_id = $3", pg.Rebind(q))
}

func TestTableScope(t *testing.T) {
	pred, args := DefaultTable().scope("p1")
	assert.Empty(t, pred)
	assert.Nil(t, args)

	tbl := DefaultTable()
	tbl.PartitionColumn = "audit_id"
	pred, args = tbl.scope("p1")
	assert.Equal(t, " AND audit_id = ?", pred)
	assert.Equal(t, []any{"p1"}, args)
}

func TestTableColumns(t *testing.T) {
	assert.Equal(t, "id, parent_id, lft, rgt, level, tree_id", DefaultTable().columns())

	tbl := DefaultTable()
	tbl.PartitionColumn = "audit_id"
	assert.Equal(t, "id, parent_id, lft, rgt, level, tree_id, audit_id", tbl.columns())
}

func TestInList(t *testing.T) {
	in, args := inList([]string{"a", "b", "c"})
	assert.Equal(t, "(?, ?, ?)", in)
	assert.Equal(t, []any{"a", "b", "c"}, args)

	in, args = inList([]string{"a"})
	assert.Equal(t, "(?)", in)
	assert.Equal(t, []any{"a"}, args)
}
