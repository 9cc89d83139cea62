// Package grove exposes the forest store behind the types.Forest interface
// while keeping the implementation internal.
package grove

import (
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/grove/internal/store"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/grove/pkg/grove.Version=...".
var Version = "0.1.0"

// NewBackend creates a detached forest store. Call Attach with a Config to
// open it.
//
// Example:
//
//	forest := grove.NewBackend()
//	err := forest.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".grove-db",
//	})
//	defer forest.Detach()
func NewBackend() types.Forest {
	return store.NewBackend()
}

// NewBackendWithLogger is NewBackend with structured logging enabled.
func NewBackendWithLogger(l zerolog.Logger) types.Forest {
	return store.NewBackend(store.WithLogger(l))
}
