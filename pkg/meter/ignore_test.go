// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"errors"
	"testing"

	"github.com/LeeDigitalWorks/zapaudit/pkg/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingResolver struct{ err error }

func (f failingResolver) ResolveProject(context.Context, string) ([]string, error) {
	return nil, f.err
}

func TestIgnoreSet_Contains(t *testing.T) {
	t.Parallel()

	s := NewIgnoreSet("a", " b ", "")
	assert.True(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.False(t, s.Contains("c"))
	assert.False(t, s.Contains(""))
	assert.ElementsMatch(t, []string{"a", "b"}, s.IDs())
}

func TestBuildIgnoreSet_Literal(t *testing.T) {
	t.Parallel()

	s, err := BuildIgnoreSet(context.Background(), []string{"gnocchi", "ceilometer"}, nil)
	require.NoError(t, err)
	assert.True(t, s.Contains("gnocchi"))
	assert.True(t, s.Contains("ceilometer"))
	assert.Len(t, s, 2)
}

func TestBuildIgnoreSet_Resolved(t *testing.T) {
	t.Parallel()

	resolver := identity.NewStaticResolver(map[string][]string{
		"gnocchi":  {"147cc0a9263c4964926f3ee7b6ba3685"},
		"services": {"id-1", "id-2"},
	})

	s, err := BuildIgnoreSet(context.Background(),
		[]string{"gnocchi", "services", "unknown", "147cc0a9263c4964926f3ee7b6ba3685"}, resolver)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"147cc0a9263c4964926f3ee7b6ba3685", "id-1", "id-2"}, s.IDs())
	assert.False(t, s.Contains("unknown"))
	assert.False(t, s.Contains("gnocchi"))
}

func TestBuildIgnoreSet_ResolverError(t *testing.T) {
	t.Parallel()

	boom := errors.New("identity service unavailable")
	_, err := BuildIgnoreSet(context.Background(), []string{"gnocchi"}, failingResolver{err: boom})
	assert.ErrorIs(t, err, boom)

	s, err := BuildIgnoreSet(context.Background(), []string{"gnocchi"}, failingResolver{err: identity.ErrProjectNotFound})
	require.NoError(t, err)
	assert.Empty(t, s)
}
