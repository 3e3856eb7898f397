// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"github.com/LeeDigitalWorks/zapaudit/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsEmittedTotal tracks events handed to the deliverer
	EventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "meter",
		Name:      "events_emitted_total",
		Help:      "Total number of request events handed to delivery",
	}, []string{"outcome"}) // outcome: "success", "failure"

	// EventsSuppressedTotal tracks requests that produced no event
	EventsSuppressedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "meter",
		Name:      "events_suppressed_total",
		Help:      "Total number of metered requests that produced no event",
	}, []string{"reason"}) // reason: "ignored_project", "internal", "invalid_path"

	// EmitErrorsTotal tracks failures inside event emission
	EmitErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "meter",
		Name:      "emit_errors_total",
		Help:      "Total number of request event emission errors",
	}, []string{"stage"}) // stage: "build", "deliver"

	// BytesTotal tracks body bytes observed on metered requests
	BytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapaudit",
		Subsystem: "meter",
		Name:      "bytes_total",
		Help:      "Total number of body bytes observed on metered requests",
	}, []string{"direction"}) // direction: "incoming", "outgoing"
)

func init() {
	debug.Registry().MustRegister(
		EventsEmittedTotal,
		EventsSuppressedTotal,
		EmitErrorsTotal,
		BytesTotal,
	)
}
