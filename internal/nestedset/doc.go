// Package nestedset maintains a forest of ordered trees in a flat table
// using the nested-set encoding. Every node carries lft, rgt, level and
// tree_id columns; the functions here rewrite those columns so that the
// forest invariants hold after every insert, delete and move.
//
// The package never opens, commits or rolls back a transaction. Each hook
// is called with the caller's DBTX (normally a *sql.Tx) and issues a short
// sequence of read-then-write statements against it. Two structural
// operations on the same partition must not interleave; the caller provides
// that exclusion, either through the store's isolation level or through an
// explicit per-partition lock.
package nestedset
