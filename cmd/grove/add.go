package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/internal/store"
	"github.com/mesh-intelligence/grove/pkg/types"
)

func (a *app) newAddCmd() *cobra.Command {
	var parent, partition, id string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a node as a new root or as the last child of --parent",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := &types.Node{ID: id, Name: args[0], Partition: partition}
			if parent != "" {
				n.ParentID = types.StringPtr(parent)
			}
			return a.withBackend(func(b *store.Backend) error {
				if _, err := b.Create(context.Background(), n); err != nil {
					return err
				}
				a.log.Debug().Str("node", n.ID).Str("parent", n.Parent()).Msg("added")
				if a.flagJSON {
					return printJSON(cmd.OutOrStdout(), n)
				}
				fmt.Fprintln(cmd.OutOrStdout(), n.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent node id")
	cmd.Flags().StringVar(&partition, "partition", types.DefaultPartition, "partition (default: the parent's)")
	cmd.Flags().StringVar(&id, "id", "", "node id (default: generated UUID v7)")
	return cmd
}

func (a *app) newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a node and all of its descendants",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(b *store.Backend) error {
				ctx := context.Background()
				sub, err := b.Subtree(ctx, args[0])
				if err != nil {
					return err
				}
				if err := b.Delete(ctx, args[0]); err != nil {
					return err
				}
				if a.flagJSON {
					return printJSON(cmd.OutOrStdout(), map[string]int{"removed": len(sub)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d node(s)\n", len(sub))
				return nil
			})
		},
	}
}
