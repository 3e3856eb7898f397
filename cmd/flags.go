// Package cmd provides the zapaudit CLI.
// This file contains helpers for configuration loading with CLI flag precedence.
package cmd

import (
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FlagLoader loads configuration values with CLI flag precedence.
// When a CLI flag is explicitly set, it wins over config file and env vars.
// Otherwise viper's standard priority applies: env > config file > default.
type FlagLoader struct {
	cmd *cobra.Command
}

// NewFlagLoader creates a FlagLoader for the given cobra command.
func NewFlagLoader(cmd *cobra.Command) *FlagLoader {
	return &FlagLoader{cmd: cmd}
}

// IsSet reports whether flagName was given on the command line, in the
// environment, or in a config file. Flag defaults do not count.
func (f *FlagLoader) IsSet(flagName string) bool {
	return f.cmd.Flags().Changed(flagName) || viper.IsSet(flagName)
}

// String returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) String(flagName string) string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetString(flagName)
		return val
	}
	return viper.GetString(flagName)
}

// Int returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Int(flagName string) int {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetInt(flagName)
		return val
	}
	return viper.GetInt(flagName)
}

// Bool returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Bool(flagName string) bool {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetBool(flagName)
		return val
	}
	return viper.GetBool(flagName)
}

// Duration returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Duration(flagName string) time.Duration {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetDuration(flagName)
		return val
	}
	return viper.GetDuration(flagName)
}

// List returns a comma separated option as a slice. Config files may also
// give the value as a list. A value that is set but empty yields an empty,
// non-nil slice.
func (f *FlagLoader) List(flagName string) []string {
	var out []string
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetString(flagName)
		out = utils.SplitList(val)
	} else if s, ok := viper.Get(flagName).(string); ok {
		out = utils.SplitList(s)
	} else {
		for _, v := range viper.GetStringSlice(flagName) {
			out = append(out, utils.SplitList(v)...)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// unmarshalSection decodes the config file section key into out, leaving
// fields the section does not mention untouched.
func unmarshalSection(key string, out any) {
	if !viper.IsSet(key) {
		return
	}
	if err := viper.UnmarshalKey(key, out); err != nil {
		logger.Fatal().Err(err).Str("section", key).Msg("invalid configuration section")
	}
}
