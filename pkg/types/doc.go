// Package types defines the Forest and Batch interfaces, the nested-set Node
// and Interval types, configuration, and the standard error values for the
// grove storage system.
package types
