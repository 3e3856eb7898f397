// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/utils"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zapaudit",
	Short: "zapaudit - request accounting for object storage",
	Long: `zapaudit meters requests to an object storage service and publishes
one CADF audit event per request to a message bus.
It runs as a reverse proxy in front of the storage backend.`,
	PersistentPreRun: initializeLogging,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	rootCmd.PersistentFlags().String("log_level", "", "Log level: debug, info, warn, error (or set LOG_LEVEL)")
}

// initializeLogging applies --log_level on top of LOG_LEVEL.
func initializeLogging(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("log_level")
	applyLogLevel(name)
}

func applyLogLevel(name string) {
	if name == "" {
		return
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		logger.Warn().Err(err).Str("log_level", name).Msg("invalid log level, keeping current level")
		return
	}
	logger.SetLevel(level)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
