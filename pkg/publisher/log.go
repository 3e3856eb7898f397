// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/notify"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

func init() {
	Register("log", func(context.Context, Config) (notify.Publisher, error) {
		return NewLogPublisher(*logger.Ctx(context.Background())), nil
	})
}

// LogPublisher writes each notification as a structured log line.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher writes to l.
func NewLogPublisher(l zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: l}
}

// Name returns the publisher identifier.
func (p *LogPublisher) Name() string {
	return "log"
}

// Publish logs n with its payload attached as raw JSON.
func (p *LogPublisher) Publish(_ context.Context, n *notify.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ev := p.log.Info().
		Str("message_id", n.MessageID).
		Str("publisher_id", n.PublisherID).
		Str("event_type", n.EventType)
	if e := n.Payload; e != nil {
		ev = ev.
			Str("resource_id", e.Target.ID).
			Str("action", e.Action).
			Str("outcome", string(e.Outcome))
		for _, m := range e.Measurements {
			// storage.objects.incoming.bytes -> incoming
			name := strings.TrimSuffix(strings.TrimPrefix(m.Metric.Name, "storage.objects."), ".bytes")
			ev = ev.Str(name, humanize.IBytes(uint64(m.Result)))
		}
	}
	ev.RawJSON("payload", payload).Msg("audit notification")
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}
