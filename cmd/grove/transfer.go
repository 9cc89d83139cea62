package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/internal/store"
)

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every node as JSON lines to file or stdout",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(b *store.Backend) error {
				if len(args) == 0 || args[0] == "-" {
					return b.Export(context.Background(), cmd.OutOrStdout())
				}
				f, err := os.Create(args[0])
				if err != nil {
					return sysError{err}
				}
				if err := b.Export(context.Background(), f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return sysError{err}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the whole forest with JSON lines from file or stdin",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return usageError{err}
				}
				defer f.Close()
				r = f
			}
			return a.withBackend(func(b *store.Backend) error {
				ctx := context.Background()
				if err := b.Import(ctx, r); err != nil {
					return err
				}
				parts, err := b.Partitions(ctx)
				if err != nil {
					return sysError{err}
				}
				total := 0
				for _, p := range parts {
					nodes, err := b.Nodes(ctx, p)
					if err != nil {
						return sysError{err}
					}
					total += len(nodes)
				}
				if a.flagJSON {
					return printJSON(cmd.OutOrStdout(), map[string]int{"imported": total})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d node(s)\n", total)
				return nil
			})
		},
	}
}
