// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import "time"

// Config holds identity service settings. Resolution is enabled when
// AuthURL is set.
type Config struct {
	// AuthURL is the Keystone endpoint (e.g., "https://keystone:5000/v3").
	AuthURL string `mapstructure:"auth_url"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// ProjectName scopes the token used for lookups.
	ProjectName string `mapstructure:"project_name"`

	// UserDomainName defaults to "Default".
	UserDomainName string `mapstructure:"user_domain_name"`

	// ProjectDomainName defaults to UserDomainName.
	ProjectDomainName string `mapstructure:"project_domain_name"`

	// Region selects the identity endpoint from the catalog (optional).
	Region string `mapstructure:"region_name"`

	// Interface is the endpoint interface: public, internal, admin (default: public).
	Interface string `mapstructure:"interface"`

	// Timeout bounds each lookup (default: 10s).
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether an identity service is configured.
func (c *Config) Enabled() bool {
	return c.AuthURL != ""
}

// Validate applies defaults for unset values.
func (c *Config) Validate() {
	if c.UserDomainName == "" {
		c.UserDomainName = "Default"
	}
	if c.ProjectDomainName == "" {
		c.ProjectDomainName = c.UserDomainName
	}
	if c.Interface == "" {
		c.Interface = "public"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}
