// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/projects"
)

// projectAPI is the subset of the Keystone v3 project API used for resolution.
type projectAPI interface {
	// GetProject returns ErrProjectNotFound when no project has the id.
	GetProject(ctx context.Context, id string) (string, error)
	ListProjectsByName(ctx context.Context, name string) ([]string, error)
}

// KeystoneResolver resolves projects against OpenStack Keystone v3.
type KeystoneResolver struct {
	api projectAPI
	cfg Config
}

// NewKeystoneResolver authenticates against Keystone and returns a resolver.
func NewKeystoneResolver(ctx context.Context, cfg Config) (*KeystoneResolver, error) {
	cfg.Validate()
	if !cfg.Enabled() {
		return nil, fmt.Errorf("identity auth_url is required")
	}

	opts := gophercloud.AuthOptions{
		IdentityEndpoint: cfg.AuthURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		DomainName:       cfg.UserDomainName,
		AllowReauth:      true,
		Scope: &gophercloud.AuthScope{
			ProjectName: cfg.ProjectName,
			DomainName:  cfg.ProjectDomainName,
		},
	}

	authCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	provider, err := openstack.AuthenticatedClient(authCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("keystone authentication failed: %w", err)
	}

	client, err := openstack.NewIdentityV3(provider, gophercloud.EndpointOpts{
		Region:       cfg.Region,
		Availability: gophercloud.Availability(cfg.Interface),
	})
	if err != nil {
		return nil, fmt.Errorf("keystone identity client: %w", err)
	}

	logger.Info().
		Str("auth_url", cfg.AuthURL).
		Str("username", cfg.Username).
		Str("project", cfg.ProjectName).
		Msg("keystone project resolver connected")

	return &KeystoneResolver{
		api: &gophercloudProjects{client: client},
		cfg: cfg,
	}, nil
}

// ResolveProject implements Resolver.
func (r *KeystoneResolver) ResolveProject(ctx context.Context, nameOrID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	id, err := r.api.GetProject(ctx, nameOrID)
	if err == nil {
		return []string{id}, nil
	}
	if !errors.Is(err, ErrProjectNotFound) {
		return nil, fmt.Errorf("keystone get project %q: %w", nameOrID, err)
	}

	ids, err := r.api.ListProjectsByName(ctx, nameOrID)
	if err != nil {
		return nil, fmt.Errorf("keystone list projects %q: %w", nameOrID, err)
	}
	if len(ids) == 0 {
		return nil, ErrProjectNotFound
	}
	return ids, nil
}

type gophercloudProjects struct {
	client *gophercloud.ServiceClient
}

func (g *gophercloudProjects) GetProject(ctx context.Context, id string) (string, error) {
	p, err := projects.Get(ctx, g.client, id).Extract()
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return "", ErrProjectNotFound
	}
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (g *gophercloudProjects) ListProjectsByName(ctx context.Context, name string) ([]string, error) {
	pages, err := projects.List(g.client, projects.ListOpts{Name: name}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	found, err := projects.ExtractProjects(pages)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(found))
	for _, p := range found {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
