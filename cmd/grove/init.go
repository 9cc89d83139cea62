package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/internal/paths"
	"github.com/mesh-intelligence/grove/internal/store"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file and the data store",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(func(b *store.Backend) error {
				cfg, err := forestConfig(a.v, a.flagDataDir)
				if err != nil {
					return usageError{err}
				}
				out := cmd.OutOrStdout()
				if a.flagJSON {
					return printJSON(out, map[string]string{
						"config":  paths.ConfigFile(a.configDir),
						"data":    cfg.DataDir,
						"backend": cfg.Backend,
					})
				}
				fmt.Fprintln(out, "grove initialized")
				fmt.Fprintln(out, "  config: ", paths.ConfigFile(a.configDir))
				fmt.Fprintln(out, "  data:   ", cfg.DataDir)
				fmt.Fprintln(out, "  backend:", cfg.Backend)
				return nil
			})
		},
	}
}
