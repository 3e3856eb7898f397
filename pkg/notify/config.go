// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import "time"

// Config holds delivery pipeline settings.
type Config struct {
	// NonblockingNotify queues events for a background sender instead of
	// publishing them on the request goroutine (default: false).
	NonblockingNotify bool `mapstructure:"nonblocking_notify"`

	// SendQueueSize bounds the background queue (default: 1000).
	SendQueueSize int `mapstructure:"send_queue_size"`

	// SendTimeout bounds a single background publish attempt (default: 10s).
	SendTimeout time.Duration `mapstructure:"send_timeout"`

	// SendAttempts is how many timed-out attempts are made per event
	// before it is dropped (default: 3).
	SendAttempts int `mapstructure:"send_attempts"`

	// PublisherID identifies this process in notifications (default: "zapaudit").
	PublisherID string `mapstructure:"publisher_id"`

	// RestartBackoff is the initial delay before a crashed sender is
	// replaced (default: 100ms). Consecutive crashes double it up to
	// MaxRestartBackoff (default: 30s).
	RestartBackoff    time.Duration `mapstructure:"restart_backoff"`
	MaxRestartBackoff time.Duration `mapstructure:"max_restart_backoff"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		NonblockingNotify: false,
		SendQueueSize:     1000,
		SendTimeout:       10 * time.Second,
		SendAttempts:      3,
		PublisherID:       "zapaudit",
		RestartBackoff:    100 * time.Millisecond,
		MaxRestartBackoff: 30 * time.Second,
	}
}

// Validate applies defaults for invalid values.
func (c *Config) Validate() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 1000
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.SendAttempts <= 0 {
		c.SendAttempts = 3
	}
	if c.PublisherID == "" {
		c.PublisherID = "zapaudit"
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = 100 * time.Millisecond
	}
	if c.MaxRestartBackoff < c.RestartBackoff {
		c.MaxRestartBackoff = 30 * time.Second
		if c.MaxRestartBackoff < c.RestartBackoff {
			c.MaxRestartBackoff = c.RestartBackoff
		}
	}
}
