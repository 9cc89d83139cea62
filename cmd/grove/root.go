package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/grove/internal/logger"
	"github.com/mesh-intelligence/grove/internal/metrics"
	"github.com/mesh-intelligence/grove/internal/paths"
	"github.com/mesh-intelligence/grove/pkg/grove"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app carries global flags and the state PersistentPreRunE prepares for
// every subcommand.
type app struct {
	flagConfigDir string
	flagDataDir   string
	flagJSON      bool
	flagLogLevel  string

	configDir string
	v         *viper.Viper
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "grove",
		Short:         "grove stores ordered trees as nested sets",
		Version:       grove.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flagDataDir, "data-dir", "", "data directory (default: ./.grove-db if present, else platform data dir)")
	pf.BoolVar(&a.flagJSON, "json", false, "output as JSON")
	pf.StringVar(&a.flagLogLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.newInitCmd(),
		a.newAddCmd(),
		a.newRmCmd(),
		a.newMvCmd(),
		a.newShowCmd(),
		a.newGetCmd(),
		a.newCheckCmd(),
		a.newExportCmd(),
		a.newImportCmd(),
		a.newMetricsCmd(),
		a.newVersionCmd(),
	)
	return root
}

// setup resolves the config directory, loads config.yaml and builds the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	dir, err := paths.ResolveConfigDir(a.flagConfigDir)
	if err != nil {
		return sysError{err}
	}
	v, err := loadConfig(dir)
	if err != nil {
		return sysError{err}
	}
	a.configDir = dir
	a.v = v

	level := a.flagLogLevel
	if level == "" {
		level = v.GetString(cfgKeyLogLevel)
	}
	a.log = logger.New(logger.Config{
		Level:  level,
		Pretty: v.GetBool(cfgKeyLogPretty),
		Output: cmd.ErrOrStderr(),
	})
	a.metrics = metrics.New()
	return nil
}
