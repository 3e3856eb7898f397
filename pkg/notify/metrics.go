// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"github.com/LeeDigitalWorks/zapaudit/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NotificationsDeliveredTotal tracks notifications accepted by the publisher
	NotificationsDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Total number of notifications delivered to the publisher",
	}, []string{"publisher"})

	// NotificationsDroppedTotal tracks notifications that were never published
	NotificationsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Total number of notifications dropped before delivery",
	}, []string{"reason"}) // reason: "queue_full", "stopped", "shutdown", "timeout"

	// PublishErrorsTotal tracks failed publish attempts
	PublishErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "notify",
		Name:      "publish_errors_total",
		Help:      "Total number of failed publish attempts",
	}, []string{"publisher"})

	// PublishDuration tracks publish latency
	PublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapaudit",
		Subsystem: "notify",
		Name:      "publish_duration_seconds",
		Help:      "Time spent publishing notifications",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"publisher"})

	// SendTimeoutsTotal tracks background publish attempts that hit send_timeout
	SendTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "notify",
		Name:      "send_timeouts_total",
		Help:      "Total number of background publish attempts that timed out",
	})

	// SenderRestartsTotal tracks background sender crashes
	SenderRestartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "notify",
		Name:      "sender_restarts_total",
		Help:      "Total number of times the background sender was restarted after a crash",
	})

	// QueueDepth tracks notifications waiting for the background sender
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapaudit",
		Subsystem: "notify",
		Name:      "queue_depth",
		Help:      "Current number of notifications pending delivery",
	})
)

func init() {
	debug.Registry().MustRegister(
		NotificationsDeliveredTotal,
		NotificationsDroppedTotal,
		PublishErrorsTotal,
		PublishDuration,
		SendTimeoutsTotal,
		SenderRestartsTotal,
		QueueDepth,
	)
}
