package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/internal/store"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// usageError marks bad invocations.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// sysError marks failures of the environment rather than of the request.
type sysError struct{ err error }

func (e sysError) Error() string { return e.err.Error() }
func (e sysError) Unwrap() error { return e.err }

// exitCode maps an error to the process exit code. Missing nodes, invalid
// operations and bad invocations are user errors; a broken forest, I/O and
// driver failures are system errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrConsistencyViolation):
		return exitSysError
	case errors.As(err, new(sysError)):
		return exitSysError
	default:
		return exitUserError
	}
}

// usageArgs wraps a cobra positional-argument validator so its errors count as
// usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := fn(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// attach opens the configured backend. The caller must Detach it.
func (a *app) attach() (*store.Backend, error) {
	cfg, err := forestConfig(a.v, a.flagDataDir)
	if err != nil {
		return nil, usageError{fmt.Errorf("config: %w", err)}
	}
	b := store.NewBackend(
		store.WithLogger(a.log),
		store.WithMetrics(a.metrics),
	)
	if err := b.Attach(cfg); err != nil {
		return nil, sysError{fmt.Errorf("attach: %w", err)}
	}
	return b, nil
}

// withBackend attaches, runs fn and detaches, keeping fn's error.
func (a *app) withBackend(fn func(b *store.Backend) error) error {
	b, err := a.attach()
	if err != nil {
		return err
	}
	err = fn(b)
	if derr := b.Detach(); derr != nil && err == nil {
		err = sysError{fmt.Errorf("detach: %w", derr)}
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
