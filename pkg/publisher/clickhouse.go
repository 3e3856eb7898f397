// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/LeeDigitalWorks/zapaudit/pkg/cadf"
	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/meter"
	"github.com/LeeDigitalWorks/zapaudit/pkg/notify"

	"github.com/ClickHouse/clickhouse-go/v2"
)

//go:embed schema.sql
var schemaSQL string

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func init() {
	Register("clickhouse", func(ctx context.Context, cfg Config) (notify.Publisher, error) {
		return NewClickHousePublisher(ctx, cfg.URL, cfg.ClickHouse)
	})
}

// execer is the subset of the ClickHouse connection used for inserts.
type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// ClickHousePublisher stores one row per notification.
type ClickHousePublisher struct {
	conn   execer
	table  string
	insert string
}

// NewClickHousePublisher connects to dsn and creates the table if needed.
func NewClickHousePublisher(ctx context.Context, dsn string, cfg ClickHouseConfig) (*ClickHousePublisher, error) {
	if dsn == "" {
		return nil, fmt.Errorf("clickhouse DSN is required")
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", cfg.Table)
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse DSN: %w", err)
	}
	opts.MaxOpenConns = cfg.MaxOpenConns
	opts.DialTimeout = cfg.DialTimeout

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	p := newClickHousePublisher(conn, cfg.Table)
	if err := conn.Exec(pingCtx, p.Schema()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info().
		Str("dsn", redactURL(dsn)).
		Str("table", cfg.Table).
		Msg("clickhouse publisher connected")
	return p, nil
}

func newClickHousePublisher(conn execer, table string) *ClickHousePublisher {
	return &ClickHousePublisher{
		conn:  conn,
		table: table,
		insert: fmt.Sprintf(`INSERT INTO %s (
			event_time, message_id, event_id, publisher_id, event_type,
			action, outcome, method, user_id, project_id,
			resource_id, container, object, path,
			bytes_received, bytes_sent, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table),
	}
}

// Schema returns the CREATE TABLE statement for the configured table.
func (p *ClickHousePublisher) Schema() string {
	stmt := strings.TrimSpace(strings.ReplaceAll(schemaSQL, "{table}", p.table))
	return strings.TrimSuffix(stmt, ";")
}

// Name returns the publisher identifier.
func (p *ClickHousePublisher) Name() string {
	return "clickhouse"
}

// Publish inserts n as one row.
func (p *ClickHousePublisher) Publish(ctx context.Context, n *notify.Notification) error {
	e := n.Payload
	if e == nil {
		return fmt.Errorf("notification %s has no payload", n.MessageID)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if err := p.conn.Exec(ctx, p.insert,
		e.EventTime,
		n.MessageID,
		e.ID,
		n.PublisherID,
		n.EventType,
		e.Action,
		string(e.Outcome),
		e.Target.Action,
		e.Initiator.ID,
		e.Initiator.ProjectID,
		e.Target.ID,
		metadataString(e.Target.Metadata, "container"),
		metadataString(e.Target.Metadata, "object"),
		metadataValue(e.Target.Metadata, "path"),
		measurement(e, meter.MetricIncomingBytes),
		measurement(e, meter.MetricOutgoingBytes),
		string(payload),
	); err != nil {
		return fmt.Errorf("clickhouse insert: %w", err)
	}
	return nil
}

// Close closes the connection.
func (p *ClickHousePublisher) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// metadataString returns a nullable column value.
func metadataString(md map[string]any, key string) *string {
	if s, ok := md[key].(string); ok {
		return &s
	}
	return nil
}

func metadataValue(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}

func measurement(e *cadf.Event, name string) uint64 {
	if m, ok := e.Measurement(name); ok && m.Result > 0 {
		return uint64(m.Result)
	}
	return 0
}
