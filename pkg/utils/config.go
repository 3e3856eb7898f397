// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges the named config file into viper and enables
// ZAPAUDIT_-prefixed environment overrides. Returns whether a file was loaded.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.zapaudit")
	viper.AddConfigPath("/etc/zapaudit/")
	viper.SetEnvPrefix("zapaudit")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if required {
				log.Fatal().Str("name", configFileName).Msg("config file not found")
			}
			log.Info().Str("name", configFileName).Msg("config file not found, using flags and environment")
			return false
		}
		if required {
			log.Fatal().Err(err).Str("name", configFileName).Msg("failed to load required config file")
		}
		log.Warn().Err(err).Str("name", configFileName).Msg("failed to load config file")
		return false
	}
	log.Info().Str("file", viper.ConfigFileUsed()).Msg("loaded config file")

	return true
}

// ResolvePath expands a leading ~ and returns an absolute path when possible.
func ResolvePath(path string) string {
	if path == "" {
		return "."
	}
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// SplitList splits a comma separated option, trimming whitespace and
// dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
