// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cadf

import "strings"

// CADF action taxonomy values.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var requestActions = map[string]string{
	"get":     ActionRead,
	"head":    ActionRead,
	"options": ActionRead,
	"post":    ActionCreate,
	"put":     ActionUpdate,
	"patch":   ActionUpdate,
	"delete":  ActionDelete,
}

// ConvertRequestAction maps an HTTP method onto the CADF action taxonomy.
// Methods outside the vocabulary map to their lowercase form so that every
// request can still be classified.
func ConvertRequestAction(method string) string {
	m := strings.ToLower(method)
	if action, ok := requestActions[m]; ok {
		return action
	}
	return m
}
