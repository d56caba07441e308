// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChrisMcGann/vkmz/pkg/config"
	"github.com/ChrisMcGann/vkmz/pkg/logger"
)

// Version is the vkmz release.
const Version = "2.0.0"

var (
	cfgFile   string
	verbose   bool
	logFormat string

	log = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "vkmz",
	Short: "vkmz - Formula prediction for mass-spectrometry features",
	Long: `vkmz predicts molecular formulas for LC-MS features by matching their
neutral mass against reference databases, and computes the H/C, O/C and N/C
ratios used for Van Krevelen analysis.

Results are written as a tabular file and optionally as JSON, a SQLite
database and a run metadata file.`,
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(logFormat, verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.vkmz/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")

	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(referenceCmd)
	rootCmd.AddCommand(configCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setupConfig(viper.GetViper(), cfgFile, os.UserHomeDir)

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setupConfig registers defaults, the config file location and the VKMZ_*
// environment layer on v. A missing home directory only drops the default
// config file.
func setupConfig(v *viper.Viper, file string, userHomeDir func() (string, error)) {
	config.SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else if home, err := userHomeDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
	} else {
		v.AddConfigPath(filepath.Join(home, ".vkmz"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// VKMZ_TOLERANCE_VALUE overrides tolerance.value
	v.SetEnvPrefix("VKMZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// configDir returns $HOME/.vkmz
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	return filepath.Join(home, ".vkmz"), nil
}
