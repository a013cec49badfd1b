package cmd

import (
	"fmt"
	"os"

	"githubevents/internal"
	"githubevents/pkg/storage/events"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgFile string

var (
	Version   = "dev"
	BuildTime = "undefined"
	GitHash   = "undefined"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:           "githubevents",
	Short:         "GitHub push and pull request event receiver",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

// Execute runs the root command and is called by main.main()
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
}

// loadRuntime reads the configuration and builds the component logger.
func loadRuntime(component string) (internal.Config, *zap.Logger, error) {
	cfg, err := internal.LoadConfig(cfgFile)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := internal.NewLogger(cfg.Log, component)
	if err != nil {
		return cfg, nil, err
	}
	logger = logger.With(zap.String("version", Version), zap.String("git_hash", GitHash))
	return cfg, logger, nil
}

func storageConfig(cfg internal.Config) events.Config {
	return events.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Table:  cfg.Storage.Table,
	}
}
