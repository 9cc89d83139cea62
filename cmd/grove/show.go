package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/internal/store"
	"github.com/mesh-intelligence/grove/pkg/types"
)

func (a *app) newShowCmd() *cobra.Command {
	var partition string
	var asTree bool

	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a partition, or the subtree of one node",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(b *store.Backend) error {
				ctx := context.Background()
				var (
					nodes []*types.Node
					err   error
				)
				if len(args) == 1 {
					nodes, err = b.Subtree(ctx, args[0])
				} else {
					nodes, err = b.Nodes(ctx, partition)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case a.flagJSON:
					if nodes == nil {
						nodes = []*types.Node{}
					}
					return printJSON(out, nodes)
				case len(nodes) == 0:
					fmt.Fprintln(out, "(empty)")
					return nil
				case asTree:
					fmt.Fprintln(out, renderTree(nodes))
					return nil
				default:
					fmt.Fprintln(out, renderTable(nodes))
					return nil
				}
			})
		},
	}
	cmd.Flags().StringVar(&partition, "partition", types.DefaultPartition, "partition to show")
	cmd.Flags().BoolVar(&asTree, "tree", false, "draw the forest as a tree")
	return cmd
}

// depths returns each node's depth below the first node of its tree. The
// nodes must be in (tree_id, lft) order.
func depths(nodes []*types.Node) []int {
	out := make([]int, len(nodes))
	var base int64
	tree := int64(-1)
	for i, n := range nodes {
		if n.TreeID != tree || i == 0 {
			tree = n.TreeID
			base = n.Level
		}
		out[i] = int(n.Level - base)
	}
	return out
}

func renderTable(nodes []*types.Node) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"ID", "NAME", "LFT", "RGT", "LEVEL", "TREE"})
	d := depths(nodes)
	for i, n := range nodes {
		tbl.AppendRow(table.Row{n.ID, strings.Repeat("  ", d[i]) + n.Name, n.Lft, n.Rgt, n.Level, n.TreeID})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d node(s)", len(nodes))})
	return tbl.Render()
}

func renderTree(nodes []*types.Node) string {
	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedLight)
	cur := 0
	for i, depth := range depths(nodes) {
		for ; cur < depth; cur++ {
			l.Indent()
		}
		for ; cur > depth; cur-- {
			l.UnIndent()
		}
		n := nodes[i]
		l.AppendItem(fmt.Sprintf("%s (%s)", n.Name, n.ID))
	}
	return l.Render()
}

func (a *app) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one node",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(b *store.Backend) error {
				n, err := b.Get(context.Background(), args[0])
				if err != nil {
					return err
				}
				if a.flagJSON {
					return printJSON(cmd.OutOrStdout(), n)
				}
				printNode(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func printNode(w io.Writer, n *types.Node) {
	parent := n.Parent()
	if parent == "" {
		parent = "-"
	}
	fmt.Fprintf(w, "id:          %s\n", n.ID)
	fmt.Fprintf(w, "name:        %s\n", n.Name)
	fmt.Fprintf(w, "parent:      %s\n", parent)
	fmt.Fprintf(w, "partition:   %q\n", n.Partition)
	fmt.Fprintf(w, "tree:        %d\n", n.TreeID)
	fmt.Fprintf(w, "interval:    [%d, %d]\n", n.Lft, n.Rgt)
	fmt.Fprintf(w, "level:       %d\n", n.Level)
	fmt.Fprintf(w, "descendants: %d\n", n.DescendantCount())
}

func (a *app) newCheckCmd() *cobra.Command {
	var partition string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the nested-set invariants",
		Long:  "Verify the nested-set invariants of --partition, or of every partition when the flag is not given.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(func(b *store.Backend) error {
				ctx := context.Background()
				parts := []string{partition}
				if !cmd.Flags().Changed("partition") {
					all, err := b.Partitions(ctx)
					if err != nil {
						return sysError{err}
					}
					parts = all
				}
				var errs []error
				for _, p := range parts {
					if err := b.Check(ctx, p); err != nil {
						a.metrics.RecordViolation()
						errs = append(errs, fmt.Errorf("partition %q: %w", p, err))
					}
				}
				if err := errors.Join(errs...); err != nil {
					return err
				}
				if a.flagJSON {
					return printJSON(cmd.OutOrStdout(), map[string]any{"ok": true, "partitions": len(parts)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d partition(s) consistent\n", len(parts))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&partition, "partition", types.DefaultPartition, "partition to check")
	return cmd
}
