// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"errors"
	"strings"
)

// ErrInvalidPath is returned when a request path does not name at least a
// version and an account.
var ErrInvalidPath = errors.New("invalid resource path")

// Resource identifies the storage entity a request path refers to.
type Resource struct {
	Version string
	Account string

	// ID is the account with the reseller prefix removed.
	ID string

	// Path is the request path without its leading slash.
	Path string

	// Container and Object are nil when the path does not reach that level.
	Container *string
	Object    *string
}

// ParseResourcePath splits /{version}/{account}[/{container}[/{object}]].
//
// Only the first slash of the object part separates it from the container;
// the object keeps any further slashes. A trailing slash after the container
// yields an empty, non-nil object.
func ParseResourcePath(path, resellerPrefix string) (*Resource, error) {
	p := strings.TrimPrefix(path, "/")

	parts := strings.SplitN(p, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrInvalidPath
	}

	res := &Resource{
		Version: parts[0],
		Account: parts[1],
		Path:    p,
	}

	if len(parts) == 3 && parts[2] != "" {
		container, object, hasObject := strings.Cut(parts[2], "/")
		res.Container = &container
		if hasObject {
			res.Object = &object
		}
	}

	res.ID = resourceID(res.Account, p, resellerPrefix)
	return res, nil
}

func resourceID(account, path, resellerPrefix string) string {
	if resellerPrefix == "" {
		return account
	}
	if _, after, found := strings.Cut(account, resellerPrefix); found && after != "" {
		return after
	}
	return path
}
