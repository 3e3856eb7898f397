// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package publisher provides notify.Publisher implementations for the
// supported transports. Drivers register themselves by name; New builds the
// one selected in Config.
package publisher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LeeDigitalWorks/zapaudit/pkg/notify"
)

// Factory creates a publisher from config.
type Factory func(ctx context.Context, cfg Config) (notify.Publisher, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a factory for a driver name.
func Register(driver string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[driver] = f
}

// Drivers returns the registered driver names.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the publisher selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (notify.Publisher, error) {
	cfg.Validate()

	registryMu.RLock()
	f, ok := registry[cfg.Driver]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown publisher driver %q (available: %v)", cfg.Driver, Drivers())
	}
	return f(ctx, cfg)
}

func init() {
	Register("noop", func(context.Context, Config) (notify.Publisher, error) {
		return NoopPublisher{}, nil
	})
}

// NoopPublisher discards every notification.
type NoopPublisher struct{}

func (NoopPublisher) Name() string { return "noop" }

func (NoopPublisher) Publish(context.Context, *notify.Notification) error { return nil }

func (NoopPublisher) Close() error { return nil }
