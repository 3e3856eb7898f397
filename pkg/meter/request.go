// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"sync"
)

type requestInfoKey struct{}

// RequestInfo is per-request state that handlers on either side of the
// interceptor can set. It is read once when the event is emitted.
type RequestInfo struct {
	mu          sync.Mutex
	backendPath string
	source      string
}

// NewContext returns ctx carrying info.
func NewContext(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// FromContext returns the RequestInfo stored in ctx, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// SetBackendPath records the storage path a protocol adapter (for example an
// S3 gateway) actually resolved the request to. It is a no-op when ctx does
// not come from a metered request.
func SetBackendPath(ctx context.Context, path string) {
	if info := FromContext(ctx); info != nil {
		info.mu.Lock()
		info.backendPath = path
		info.mu.Unlock()
	}
}

// MarkInternal flags the request as an internal subrequest issued by source.
// Internal requests are not metered.
func MarkInternal(ctx context.Context, source string) {
	if info := FromContext(ctx); info != nil {
		info.mu.Lock()
		info.source = source
		info.mu.Unlock()
	}
}

// BackendPath returns the rewritten path, if any.
func (i *RequestInfo) BackendPath() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.backendPath, i.backendPath != ""
}

// Source returns the internal source marker, if any.
func (i *RequestInfo) Source() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.source, i.source != ""
}
