// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/zapaudit/pkg/identity"
	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
)

// IgnoreSet holds project ids whose requests are not metered.
type IgnoreSet map[string]struct{}

// NewIgnoreSet builds a set from literal project ids.
func NewIgnoreSet(ids ...string) IgnoreSet {
	s := make(IgnoreSet, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether projectID is ignored. The empty id is never
// ignored.
func (s IgnoreSet) Contains(projectID string) bool {
	if projectID == "" {
		return false
	}
	_, ok := s[projectID]
	return ok
}

// IDs returns the ignored project ids in no particular order.
func (s IgnoreSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// BuildIgnoreSet resolves the configured entries into project ids. Without a
// resolver the entries are taken as literal ids. Entries the resolver cannot
// find are logged and skipped; any other resolver error is returned.
func BuildIgnoreSet(ctx context.Context, entries []string, resolver identity.Resolver) (IgnoreSet, error) {
	if resolver == nil {
		return NewIgnoreSet(entries...), nil
	}

	s := make(IgnoreSet, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		ids, err := resolver.ResolveProject(ctx, entry)
		if errors.Is(err, identity.ErrProjectNotFound) {
			logger.Warn().Str("project", entry).Msg("failed to find project in identity service")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve ignored project %q: %w", entry, err)
		}
		for _, id := range ids {
			s[id] = struct{}{}
		}
	}
	return s, nil
}
