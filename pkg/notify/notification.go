// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/cadf"

	"github.com/google/uuid"
)

// EventTypeObjectRequest is the notification event type for metered
// storage requests.
const EventTypeObjectRequest = "objectstore.http.request"

// PriorityInfo is the priority of every request notification.
const PriorityInfo = "INFO"

// Notification is the envelope published to the message bus.
type Notification struct {
	MessageID   string      `json:"message_id"`
	PublisherID string      `json:"publisher_id"`
	EventType   string      `json:"event_type"`
	Priority    string      `json:"priority"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     *cadf.Event `json:"payload"`
}

// NewNotification wraps event for publishing.
func NewNotification(publisherID string, event *cadf.Event) *Notification {
	return &Notification{
		MessageID:   uuid.New().String(),
		PublisherID: publisherID,
		EventType:   EventTypeObjectRequest,
		Priority:    PriorityInfo,
		Timestamp:   time.Now().UTC(),
		Payload:     event,
	}
}

// ResourceID returns the target resource of the payload, used as a
// partitioning key by publishers.
func (n *Notification) ResourceID() string {
	if n.Payload == nil {
		return ""
	}
	return n.Payload.Target.ID
}

// Publisher delivers notifications to a message bus.
type Publisher interface {
	// Name returns the publisher name for metrics and logging.
	Name() string

	// Publish sends one notification. It should honor ctx cancellation.
	Publish(ctx context.Context, n *Notification) error

	// Close releases publisher resources.
	Close() error
}
