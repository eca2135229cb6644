package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/signalnine/expandbench/internal/config"
	"github.com/signalnine/expandbench/internal/logging"
)

var (
	cfgFile      string
	flagLogLevel string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "expandbench",
		Short:         "Compare spectector runs with and without loop expansion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnvironment()
			if flagLogLevel != "" {
				if err := logging.SetLogLevel(flagLogLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "expandbench.yaml", "config file path")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newExpandCmd())
	return root
}

// loadConfig reads the config file and applies its log level unless one was
// given on the command line.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if flagLogLevel == "" {
		if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
			logging.GetLogger().WithField("log_level", cfg.LogLevel).WithError(err).Warn("Invalid log level in config, using info")
			_ = logging.SetLogLevel("info")
		}
	}
	return cfg, nil
}

// loadEnvironment loads .env from the working directory, or from the
// binary's directory when there is none, so config files can reference
// ${VAR} secrets.
func loadEnvironment() {
	logger := logging.GetLogger()
	envFile := ".env"
	if _, err := os.Stat(envFile); err != nil {
		execPath, err := os.Executable()
		if err != nil {
			return
		}
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err != nil {
			return
		}
	}
	if err := godotenv.Load(envFile); err != nil {
		logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		return
	}
	logger.WithField("file", envFile).Debug("Loaded environment variables")
}
