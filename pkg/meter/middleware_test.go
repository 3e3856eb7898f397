// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/cadf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body28 = "This string is 28 bytes long"

type recordingDeliverer struct {
	mu     sync.Mutex
	events []*cadf.Event
	ctxErr []error
	err    error
}

func (d *recordingDeliverer) Deliver(ctx context.Context, event *cadf.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	d.ctxErr = append(d.ctxErr, ctx.Err())
	return d.err
}

func (d *recordingDeliverer) Events() []*cadf.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*cadf.Event(nil), d.events...)
}

type panickingDeliverer struct{}

func (panickingDeliverer) Deliver(context.Context, *cadf.Event) error {
	panic("bus exploded")
}

func writeBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}
}

func newTestInterceptor(next http.Handler, d Deliverer, ignore IgnoreSet) *Interceptor {
	cfg := DefaultConfig()
	cfg.MetadataHeaders = []string{"x_var1", "x_var2"}
	return NewInterceptor(next, cfg, ignore, d)
}

func TestInterceptor_Get(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(writeBody(body28), d, nil)

	req := httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/container/obj", nil)
	req.Header.Set("X-User-Id", "user")
	req.Header.Set("X-Project-Id", "project")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, body28, rec.Body.String())

	events := d.Events()
	require.Len(t, events, 1)
	e := events[0]

	assert.Equal(t, cadf.OutcomeSuccess, e.Outcome)
	assert.Equal(t, cadf.ActionRead, e.Action)
	assert.Equal(t, "get", e.Target.Action)
	assert.Equal(t, "account", e.Target.ID)
	assert.Equal(t, "container", e.Target.Metadata["container"])
	assert.Equal(t, "obj", e.Target.Metadata["object"])
	assert.Equal(t, "user", e.Initiator.ID)
	assert.Equal(t, "project", e.Initiator.ProjectID)

	require.Len(t, e.Measurements, 1)
	m, ok := e.Measurement(MetricOutgoingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(28), m.Result)
}

func TestInterceptor_Put(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
	}), d, nil)

	req := httptest.NewRequest(http.MethodPut, "/1.0/AUTH_account/container/obj", strings.NewReader("some stuff"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	events := d.Events()
	require.Len(t, events, 1)
	assert.Equal(t, cadf.ActionUpdate, events[0].Action)
	require.Len(t, events[0].Measurements, 1)
	m, ok := events[0].Measurement(MetricIncomingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(len("some stuff")), m.Result)
}

func TestInterceptor_HeadHasNoMeasurements(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "28")
		w.WriteHeader(http.StatusOK)
	}), d, nil)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/1.0/AUTH_account/container/obj", nil))

	events := d.Events()
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Measurements)
	assert.Equal(t, "head", events[0].Target.Action)
}

func TestInterceptor_PanicBeforeResponse(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		panic("backend down")
	}), d, nil)

	req := httptest.NewRequest(http.MethodPut, "/1.0/AUTH_account/container/obj", strings.NewReader("abc"))
	assert.PanicsWithValue(t, "backend down", func() {
		h.ServeHTTP(httptest.NewRecorder(), req)
	})

	events := d.Events()
	require.Len(t, events, 1)
	assert.Equal(t, cadf.OutcomeFailure, events[0].Outcome)
	_, ok := events[0].Measurement(MetricOutgoingBytes)
	assert.False(t, ok)
	m, ok := events[0].Measurement(MetricIncomingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Result)
}

func TestInterceptor_PanicAfterResponseStarted(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "partial")
		panic(http.ErrAbortHandler)
	}), d, nil)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil))
	})

	events := d.Events()
	require.Len(t, events, 1)
	assert.Equal(t, cadf.OutcomeSuccess, events[0].Outcome)
	m, ok := events[0].Measurement(MetricOutgoingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(len("partial")), m.Result)
}

type failingWriter struct {
	http.ResponseWriter
	written int
	limit   int
}

func (w *failingWriter) Write(b []byte) (int, error) {
	if w.written+len(b) > w.limit {
		n := w.limit - w.written
		w.written = w.limit
		return n, errors.New("client went away")
	}
	w.written += len(b)
	return len(b), nil
}

func TestInterceptor_PartialWrite(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 10; i++ {
			if _, err := io.WriteString(w, "0123456789"); err != nil {
				return
			}
		}
	}), d, nil)

	w := &failingWriter{ResponseWriter: httptest.NewRecorder(), limit: 25}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil))

	events := d.Events()
	require.Len(t, events, 1)
	m, ok := events[0].Measurement(MetricOutgoingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(25), m.Result)
}

func TestInterceptor_IgnoredProject(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(writeBody(body28), d, NewIgnoreSet("skip_proj"))

	tests := []struct {
		header string
		value  string
		events int
	}{
		{header: "X-Project-Id", value: "skip_proj", events: 0},
		{header: "X-Tenant-Id", value: "skip_proj", events: 0},
		{header: "X-Service-Project-Id", value: "skip_proj", events: 0},
		{header: "X-Project-Id", value: "good_proj", events: 1},
	}

	for _, tt := range tests {
		before := len(d.Events())
		req := httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/container/obj", nil)
		req.Header.Set(tt.header, tt.value)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, body28, rec.Body.String())
		assert.Equal(t, tt.events, len(d.Events())-before, "%s=%s", tt.header, tt.value)
	}
}

func TestInterceptor_InternalRequest(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MarkInternal(r.Context(), "versioned_writes")
		_, _ = io.WriteString(w, body28)
	}), d, nil)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil))
	assert.Empty(t, d.Events())
}

func TestInterceptor_InternalMarkedUpstream(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	inner := newTestInterceptor(writeBody(body28), d, nil)
	outer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &RequestInfo{}
		ctx := NewContext(r.Context(), info)
		MarkInternal(ctx, "staticweb")
		inner.ServeHTTP(w, r.WithContext(ctx))
	})

	outer.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil))
	assert.Empty(t, d.Events())
}

func TestInterceptor_BackendPath(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	// S3 style request: /bucket/key resolved to the account path by the
	// gateway below the interceptor.
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetBackendPath(r.Context(), "/v1/AUTH_account/bucket/key")
		_, _ = io.WriteString(w, body28)
	}), d, nil)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bucket/key", nil))

	events := d.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "account", events[0].Target.ID)
	assert.Equal(t, "bucket", events[0].Target.Metadata["container"])
	assert.Equal(t, "key", events[0].Target.Metadata["object"])
	assert.Equal(t, "v1/AUTH_account/bucket/key", events[0].Target.Metadata["path"])
}

func TestInterceptor_PathIsPercentEncoded(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(writeBody(body28), d, nil)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/my%20container/caf%C3%A9", nil))

	events := d.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "1.0/AUTH_account/my%20container/caf%C3%A9", events[0].Target.Metadata["path"])
	assert.Equal(t, "my%20container", events[0].Target.Metadata["container"])
	assert.Equal(t, "caf%C3%A9", events[0].Target.Metadata["object"])
}

func TestInterceptor_HeaderCapture(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(writeBody(body28), d, nil)

	req := httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/container/obj", nil)
	req.Header.Set("X-Var1", "a")
	req.Header.Set("X-Var2", "b")
	req.Header.Set("X-Var3", "c")
	h.ServeHTTP(httptest.NewRecorder(), req)

	events := d.Events()
	require.Len(t, events, 1)
	md := events[0].Target.Metadata
	assert.Equal(t, "a", md["http_header_x_var1"])
	assert.Equal(t, "b", md["http_header_x_var2"])
	assert.NotContains(t, md, "http_header_x_var3")
}

func TestInterceptor_HeadersSnapshotBeforeHandler(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Set("X-Var1", "changed")
		r.Header.Set("X-Project-Id", "skip_proj")
	}), d, NewIgnoreSet("skip_proj"))

	req := httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil)
	req.Header.Set("X-Var1", "original")
	h.ServeHTTP(httptest.NewRecorder(), req)

	events := d.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "original", events[0].Target.Metadata["http_header_x_var1"])
}

func TestInterceptor_InvalidPath(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(writeBody("ok"), d, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, "ok", rec.Body.String())
	assert.Empty(t, d.Events())
}

func TestInterceptor_DeliveryFailureIsInvisible(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{err: errors.New("broker unavailable")}
	h := newTestInterceptor(writeBody(body28), d, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body28, rec.Body.String())
	assert.Len(t, d.Events(), 1)
}

func TestInterceptor_DelivererPanicIsContained(t *testing.T) {
	t.Parallel()

	h := newTestInterceptor(writeBody(body28), panickingDeliverer{}, nil)

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil))
	})
	assert.Equal(t, body28, rec.Body.String())
}

func TestInterceptor_DeliverySurvivesClientCancel(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	ctx, cancel := context.WithCancel(context.Background())
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		_, _ = io.WriteString(w, "x")
	}), d, nil)

	req := httptest.NewRequest(http.MethodGet, "/1.0/AUTH_account/c/o", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, d.Events(), 1)
	assert.NoError(t, d.ctxErr[0])
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := Middleware(DefaultConfig(), nil, d)(writeBody(body28))

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/AUTH_test/bucket/obj")
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, body28, string(b))

	require.Eventually(t, func() bool { return len(d.Events()) == 1 }, time.Second, 10*time.Millisecond)
	m, ok := d.Events()[0].Measurement(MetricOutgoingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(28), m.Result)
}

type statusRecorder struct {
	http.ResponseWriter
	codes []int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.codes = append(w.codes, code)
	w.ResponseWriter.WriteHeader(code)
}

func TestCountingResponseWriter_InformationalStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		codes   []int
		want    []int
		status  int
		started bool
	}{
		{name: "early hints then final", codes: []int{http.StatusEarlyHints, http.StatusNotFound}, want: []int{http.StatusEarlyHints, http.StatusNotFound}, status: http.StatusNotFound, started: true},
		{name: "continue then created", codes: []int{http.StatusContinue, http.StatusCreated}, want: []int{http.StatusContinue, http.StatusCreated}, status: http.StatusCreated, started: true},
		{name: "informational only", codes: []int{http.StatusContinue}, want: []int{http.StatusContinue}, status: http.StatusOK, started: false},
		{name: "switching protocols is final", codes: []int{http.StatusSwitchingProtocols, http.StatusOK}, want: []int{http.StatusSwitchingProtocols}, status: http.StatusSwitchingProtocols, started: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
			cw := newCountingResponseWriter(rec)
			for _, code := range tt.codes {
				cw.WriteHeader(code)
			}

			assert.Equal(t, tt.want, rec.codes)
			assert.Equal(t, tt.status, cw.statusCode)
			assert.Equal(t, tt.started, cw.started())
		})
	}
}

func TestInterceptor_InformationalResponseKeepsFinalStatus(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", "</style.css>; rel=preload")
		w.WriteHeader(http.StatusEarlyHints)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "nope")
	}), d, nil)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/1.0/AUTH_account/container/obj")
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "nope", string(b))

	require.Eventually(t, func() bool { return len(d.Events()) == 1 }, time.Second, 10*time.Millisecond)
	e := d.Events()[0]
	assert.Equal(t, cadf.OutcomeSuccess, e.Outcome)
	m, ok := e.Measurement(MetricOutgoingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(4), m.Result)
}

func TestInterceptor_PanicAfterInformationalResponse(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := newTestInterceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusContinue)
		panic("backend down")
	}), d, nil)

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.PanicsWithValue(t, "backend down", func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/1.0/AUTH_account/c/o", strings.NewReader("abc")))
	})

	assert.Equal(t, []int{http.StatusContinue}, rec.codes)
	events := d.Events()
	require.Len(t, events, 1)
	assert.Equal(t, cadf.OutcomeFailure, events[0].Outcome)
	_, ok := events[0].Measurement(MetricOutgoingBytes)
	assert.False(t, ok)
}

func TestMiddleware_ExpectContinue(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	h := Middleware(DefaultConfig(), nil, d)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
	}))

	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/AUTH_test/bucket/obj", strings.NewReader("0123456789"))
	require.NoError(t, err)
	req.Header.Set("Expect", "100-continue")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Eventually(t, func() bool { return len(d.Events()) == 1 }, time.Second, 10*time.Millisecond)
	e := d.Events()[0]
	assert.Equal(t, cadf.OutcomeSuccess, e.Outcome)
	m, ok := e.Measurement(MetricIncomingBytes)
	require.True(t, ok)
	assert.Equal(t, int64(10), m.Result)
}
