package nestedset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Structural column names. Only the primary key and the partition column are
// configurable.
const (
	ColParentID = "parent_id"
	ColLft      = "lft"
	ColRgt      = "rgt"
	ColLevel    = "level"
	ColTreeID   = "tree_id"
)

// Placeholder selects the bind parameter syntax of the target store.
type Placeholder int

const (
	// Question emits ? placeholders (SQLite, MySQL).
	Question Placeholder = iota
	// Dollar emits $1, $2, ... placeholders (PostgreSQL).
	Dollar
)

// DBTX is the subset of *sql.Tx the hooks need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table describes the backing table.
type Table struct {
	// Name is the table name.
	Name string
	// PK is the primary-key column.
	PK string
	// PartitionColumn scopes tree_id uniqueness and every range statement.
	// Empty means the whole table is one partition.
	PartitionColumn string
	// BaseLevel is the level of every root.
	BaseLevel int64
	// Placeholder is the bind syntax of the store.
	Placeholder Placeholder
}

// DefaultTable is an unpartitioned "nodes" table keyed by "id".
func DefaultTable() Table {
	return Table{Name: "nodes", PK: "id"}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidTable is returned by New for an unusable Table description.
var ErrInvalidTable = errors.New("invalid table description")

// Validate rejects identifiers that cannot be spliced into SQL safely.
func (t Table) Validate() error {
	for _, ident := range []string{t.Name, t.PK} {
		if !identRe.MatchString(ident) {
			return fmt.Errorf("%w: identifier %q", ErrInvalidTable, ident)
		}
	}
	if t.PartitionColumn != "" && !identRe.MatchString(t.PartitionColumn) {
		return fmt.Errorf("%w: partition column %q", ErrInvalidTable, t.PartitionColumn)
	}
	if t.BaseLevel < 0 {
		return fmt.Errorf("%w: negative base level", ErrInvalidTable)
	}
	return nil
}

// Partitioned reports whether a partition column is configured.
func (t Table) Partitioned() bool {
	return t.PartitionColumn != ""
}

// scope returns the partition predicate to append to a WHERE clause and its
// argument. Unpartitioned tables get an empty predicate.
func (t Table) scope(partition string) (string, []any) {
	if !t.Partitioned() {
		return "", nil
	}
	return " AND " + t.PartitionColumn + " = ?", []any{partition}
}

// columns lists the structural columns in the order scanNode expects.
func (t Table) columns() string {
	cols := []string{t.PK, ColParentID, ColLft, ColRgt, ColLevel, ColTreeID}
	if t.Partitioned() {
		cols = append(cols, t.PartitionColumn)
	}
	return strings.Join(cols, ", ")
}

// Rebind rewrites ? placeholders for the configured store.
func (t Table) Rebind(query string) string {
	if t.Placeholder != Dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inList returns "(?, ?, ...)" and the ids as arguments.
func inList(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}
