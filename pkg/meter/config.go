// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import "strings"

// DefaultIgnoreProjects is the ignore list applied when an identity service
// is configured and no explicit list is given.
var DefaultIgnoreProjects = []string{"gnocchi"}

// Config holds request metering settings.
type Config struct {
	// MetadataHeaders lists request headers copied into the event metadata
	// as http_header_<name>. Names are normalized by NormalizeHeaderName.
	MetadataHeaders []string `mapstructure:"metadata_headers"`

	// ResellerPrefix is stripped from the account to form the resource id
	// (default: "AUTH_"). An empty prefix keeps the account unchanged.
	ResellerPrefix string `mapstructure:"reseller_prefix"`

	// IgnoreProjects lists project ids or names whose requests are not metered.
	IgnoreProjects []string `mapstructure:"ignore_projects"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ResellerPrefix: "AUTH_",
	}
}

// Validate normalizes header names and the reseller prefix.
func (c *Config) Validate() {
	if c.ResellerPrefix != "" && !strings.HasSuffix(c.ResellerPrefix, "_") {
		c.ResellerPrefix += "_"
	}

	headers := make([]string, 0, len(c.MetadataHeaders))
	for _, h := range c.MetadataHeaders {
		if h = NormalizeHeaderName(h); h != "" {
			headers = append(headers, h)
		}
	}
	c.MetadataHeaders = headers
}

// NormalizeHeaderName lowercases a header name and replaces dashes with
// underscores, so "X-Object-Meta" and "X_OBJECT_META" compare equal.
func NormalizeHeaderName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}
