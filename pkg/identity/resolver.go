// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves human-readable project names to the stable
// project ids carried on storage requests.
package identity

import (
	"context"
	"errors"
	"sort"
)

// ErrProjectNotFound is returned when neither an id nor a name matches.
var ErrProjectNotFound = errors.New("project not found")

// Resolver maps a project name or id to the matching project ids.
type Resolver interface {
	// ResolveProject tries nameOrID as an id first, then as a name.
	// Returns ErrProjectNotFound when nothing matches.
	ResolveProject(ctx context.Context, nameOrID string) ([]string, error)
}

// StaticResolver resolves projects from an in-memory table.
// Used for tests and for deployments that list projects in the config file.
type StaticResolver struct {
	ids   map[string]struct{}
	names map[string][]string
}

// NewStaticResolver builds a resolver from a name -> ids table.
func NewStaticResolver(projects map[string][]string) *StaticResolver {
	r := &StaticResolver{
		ids:   make(map[string]struct{}),
		names: make(map[string][]string, len(projects)),
	}
	for name, ids := range projects {
		for _, id := range ids {
			r.ids[id] = struct{}{}
		}
		r.names[name] = append([]string(nil), ids...)
	}
	return r
}

// ResolveProject implements Resolver.
func (r *StaticResolver) ResolveProject(_ context.Context, nameOrID string) ([]string, error) {
	if _, ok := r.ids[nameOrID]; ok {
		return []string{nameOrID}, nil
	}
	ids := r.names[nameOrID]
	if len(ids) == 0 {
		return nil, ErrProjectNotFound
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out, nil
}
