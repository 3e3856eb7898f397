// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package meter measures requests to the object store and turns each one into
// a CADF audit event.
//
// The Interceptor wraps the storage handler. It counts request and response
// body bytes, parses the storage path, and hands one event per request to a
// Deliverer once the handler has finished, abandoned the response, or
// panicked. Failures while building or delivering the event are logged and
// never reach the client.
package meter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/cadf"
	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
)

// Deliverer accepts finished events.
type Deliverer interface {
	Deliver(ctx context.Context, event *cadf.Event) error
}

// Interceptor is an http.Handler that meters the wrapped handler.
type Interceptor struct {
	next      http.Handler
	cfg       Config
	ignore    IgnoreSet
	deliverer Deliverer
	now       func() time.Time
}

// NewInterceptor wraps next. A nil ignore set ignores nothing.
func NewInterceptor(next http.Handler, cfg Config, ignore IgnoreSet, d Deliverer) *Interceptor {
	cfg.Validate()
	if ignore == nil {
		ignore = IgnoreSet{}
	}
	return &Interceptor{
		next:      next,
		cfg:       cfg,
		ignore:    ignore,
		deliverer: d,
		now:       time.Now,
	}
}

// Middleware returns a constructor suitable for handler chains.
func Middleware(cfg Config, ignore IgnoreSet, d Deliverer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewInterceptor(next, cfg, ignore, d)
	}
}

// requestSnapshot is the request state captured before the handler runs.
type requestSnapshot struct {
	method  string
	path    string
	headers map[string]string

	// ignoreProject is matched against the ignore set.
	ignoreProject string
	// project is reported as the initiator project.
	project string
	userID  string
}

func snapshotRequest(r *http.Request) requestSnapshot {
	headers := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		v := strings.Join(vs, ",")
		if v == "" {
			continue
		}
		headers[NormalizeHeaderName(k)] = v
	}

	return requestSnapshot{
		method:        r.Method,
		path:          r.URL.EscapedPath(),
		headers:       headers,
		ignoreProject: firstNonEmpty(headers["x_service_project_id"], headers["x_project_id"], headers["x_tenant_id"]),
		project:       firstNonEmpty(headers["x_project_id"], headers["x_tenant_id"]),
		userID:        headers["x_user_id"],
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := snapshotRequest(r)

	ctx := r.Context()
	info := FromContext(ctx)
	if info == nil {
		info = &RequestInfo{}
		ctx = NewContext(ctx, info)
	}
	r = r.WithContext(ctx)

	body := r.Body
	if body == nil {
		body = http.NoBody
	}
	reader := NewCountingReader(body)
	r.Body = reader
	cw := newCountingResponseWriter(w)

	completed := false
	defer func() {
		// A handler that panics before starting the response failed the
		// request. Once the response has started the client has seen a
		// status, so the event reports what was sent.
		outcome := cadf.OutcomeSuccess
		sent := cw.bytesWritten
		if !completed && !cw.started() {
			outcome = cadf.OutcomeFailure
			sent = 0
		}
		i.emit(ctx, snap, info, reader.BytesReceived(), sent, outcome)
	}()

	i.next.ServeHTTP(cw, r)
	completed = true
}

// emit builds and delivers the event for one request. Nothing raised here
// propagates to the caller.
func (i *Interceptor) emit(ctx context.Context, snap requestSnapshot, info *RequestInfo, received, sent int64, outcome cadf.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			EmitErrorsTotal.WithLabelValues("build").Inc()
			logger.Error().
				Interface("panic", rec).
				Str("method", snap.method).
				Str("path", snap.path).
				Msg("panic while emitting request event")
		}
	}()

	if i.ignore.Contains(snap.ignoreProject) {
		EventsSuppressedTotal.WithLabelValues("ignored_project").Inc()
		return
	}
	if source, ok := info.Source(); ok {
		EventsSuppressedTotal.WithLabelValues("internal").Inc()
		logger.Debug().Str("source", source).Str("path", snap.path).Msg("skipping internal request")
		return
	}

	path := snap.path
	if backend, ok := info.BackendPath(); ok {
		path = backend
	}
	res, err := ParseResourcePath(path, i.cfg.ResellerPrefix)
	if err != nil {
		EventsSuppressedTotal.WithLabelValues("invalid_path").Inc()
		logger.Debug().Err(err).Str("path", path).Msg("request path is not a storage resource")
		return
	}

	event := BuildEvent(EventInput{
		Resource:       res,
		Method:         snap.method,
		Outcome:        outcome,
		Headers:        snap.headers,
		CaptureHeaders: i.cfg.MetadataHeaders,
		UserID:         snap.userID,
		ProjectID:      snap.project,
		BytesReceived:  received,
		BytesSent:      sent,
		Time:           i.now(),
	})

	if received > 0 {
		BytesTotal.WithLabelValues("incoming").Add(float64(received))
	}
	if sent > 0 {
		BytesTotal.WithLabelValues("outgoing").Add(float64(sent))
	}

	if err := i.deliverer.Deliver(context.WithoutCancel(ctx), event); err != nil {
		EmitErrorsTotal.WithLabelValues("deliver").Inc()
		logger.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("resource_id", res.ID).
			Msg("failed to deliver request event")
		return
	}
	EventsEmittedTotal.WithLabelValues(string(outcome)).Inc()
}
