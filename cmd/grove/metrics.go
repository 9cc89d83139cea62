package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/internal/store"
	"github.com/mesh-intelligence/grove/pkg/grove"
)

func (a *app) newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print forest gauges in the Prometheus text format",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(func(b *store.Backend) error {
				ctx := context.Background()
				parts, err := b.Partitions(ctx)
				if err != nil {
					return sysError{err}
				}
				for _, p := range parts {
					nodes, err := b.Nodes(ctx, p)
					if err != nil {
						return sysError{err}
					}
					roots, err := b.Roots(ctx, p)
					if err != nil {
						return sysError{err}
					}
					a.metrics.RecordForest(p, len(nodes), len(roots))
				}
				return a.metrics.WriteText(cmd.OutOrStdout())
			})
		},
	}
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": grove.Version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "grove %s\n", grove.Version)
			return nil
		},
	}
}
