package types

import (
	"errors"
	"fmt"
)

// Forest lifecycle errors.
var (
	ErrForestDetached  = errors.New("forest is detached")
	ErrAlreadyAttached = errors.New("forest is already attached")
)

// Structural operation errors. Every one of them aborts the enclosing write
// transaction.
var (
	ErrNotFound             = errors.New("node not found")
	ErrInvalidID            = errors.New("invalid node ID")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrConsistencyViolation = errors.New("nested-set consistency violation")
)

// Specific invalid operations. Each wraps ErrInvalidOperation.
var (
	ErrConflictingHints    = fmt.Errorf("%w: at most one of before, after and inside may be set", ErrInvalidOperation)
	ErrOwnParent           = fmt.Errorf("%w: node cannot be its own parent", ErrInvalidOperation)
	ErrOwnSibling          = fmt.Errorf("%w: node cannot be positioned relative to itself", ErrInvalidOperation)
	ErrInsideWithoutParent = fmt.Errorf("%w: move inside requires a parent", ErrInvalidOperation)
	ErrCycle               = fmt.Errorf("%w: node cannot move under its own descendant", ErrInvalidOperation)
	ErrCrossPartition      = fmt.Errorf("%w: nodes belong to different partitions", ErrInvalidOperation)
)
