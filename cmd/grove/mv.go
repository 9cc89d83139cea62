package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/internal/store"
	"github.com/mesh-intelligence/grove/pkg/types"
)

type mvFlags struct {
	parent, before, after string
	root, inside          bool
}

// request turns the flags into a MoveRequest.
func (f mvFlags) request(id string) (types.MoveRequest, error) {
	req := types.MoveRequest{NodeID: id, Inside: f.inside}
	if f.root && f.parent != "" {
		return req, errors.New("--root and --parent are mutually exclusive")
	}
	if !f.root && f.parent == "" && f.before == "" && f.after == "" {
		return req, errors.New("one of --parent, --root, --before or --after is required")
	}
	if f.root && (f.before != "" || f.after != "" || f.inside) {
		return req, errors.New("--root cannot be combined with a position")
	}
	if f.parent != "" {
		req.ParentID = types.StringPtr(f.parent)
	}
	if f.before != "" {
		req.Before = types.StringPtr(f.before)
	}
	if f.after != "" {
		req.After = types.StringPtr(f.after)
	}
	return req, req.Validate()
}

func (a *app) newMvCmd() *cobra.Command {
	var f mvFlags

	cmd := &cobra.Command{
		Use:   "mv <id>",
		Short: "Move a node and its subtree",
		Long: `Move a node and its subtree.

  --parent P            make the node the last child of P
  --parent P --inside   same, even when P is already the parent
  --before X            make the node the left sibling of X
  --after X             make the node the right sibling of X
  --root                make the node the root of a new tree

When X is a root, --before and --after place the node's tree next to X's.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args[0])
			if err != nil {
				return usageError{err}
			}
			return a.withBackend(func(b *store.Backend) error {
				ctx := context.Background()
				if err := b.Move(ctx, req); err != nil {
					return err
				}
				n, err := b.Get(ctx, req.NodeID)
				if err != nil {
					return err
				}
				if a.flagJSON {
					return printJSON(cmd.OutOrStdout(), n)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: tree %d [%d, %d] level %d\n",
					n.ID, n.TreeID, n.Lft, n.Rgt, n.Level)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.parent, "parent", "", "new parent id")
	cmd.Flags().BoolVar(&f.root, "root", false, "move to root level")
	cmd.Flags().StringVar(&f.before, "before", "", "sibling to place the node before")
	cmd.Flags().StringVar(&f.after, "after", "", "sibling to place the node after")
	cmd.Flags().BoolVar(&f.inside, "inside", false, "append as last child of --parent even if unchanged")
	return cmd
}
