// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/cadf"
)

// Measurement names carried by request events.
const (
	MetricIncomingBytes = "storage.objects.incoming.bytes"
	MetricOutgoingBytes = "storage.objects.outgoing.bytes"
)

const headerMetadataPrefix = "http_header_"

// EventInput is everything BuildEvent needs to describe one request.
type EventInput struct {
	Resource *Resource
	Method   string
	Outcome  cadf.Outcome

	// Headers are keyed by normalized header name (see NormalizeHeaderName).
	Headers map[string]string

	// CaptureHeaders are normalized names copied into target metadata.
	CaptureHeaders []string

	UserID    string
	ProjectID string

	BytesReceived int64
	BytesSent     int64

	// Time defaults to now.
	Time time.Time
}

// BuildEvent assembles the audit event for a request. Byte measurements are
// only attached when the corresponding count is positive.
func BuildEvent(in EventInput) *cadf.Event {
	t := in.Time
	if t.IsZero() {
		t = time.Now()
	}

	res := in.Resource
	metadata := map[string]any{
		"path":      res.Path,
		"version":   res.Version,
		"container": optional(res.Container),
		"object":    optional(res.Object),
	}
	for _, name := range in.CaptureHeaders {
		if v, ok := in.Headers[name]; ok {
			metadata[headerMetadataPrefix+name] = v
		}
	}

	event := cadf.NewEvent(t, cadf.ConvertRequestAction(in.Method), in.Outcome)
	event.Initiator = cadf.Initiator{
		TypeURI:   cadf.TypeURIUser,
		ID:        in.UserID,
		ProjectID: in.ProjectID,
	}
	event.Target = cadf.Target{
		TypeURI:  cadf.TypeURIStorageObject,
		ID:       res.ID,
		Action:   strings.ToLower(in.Method),
		Metadata: metadata,
	}
	event.Observer = cadf.Resource{
		TypeURI: cadf.TypeURIUnknown,
		ID:      "target",
	}

	if in.BytesReceived > 0 {
		event.AddMeasurement(MetricIncomingBytes, cadf.UnitBytes, in.BytesReceived)
	}
	if in.BytesSent > 0 {
		event.AddMeasurement(MetricOutgoingBytes, cadf.UnitBytes, in.BytesSent)
	}
	return event
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
