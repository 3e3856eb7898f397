// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cadf defines the audit record shapes published for every
// instrumented storage request.
//
// The layout follows the DMTF Cloud Auditing Data Federation (CADF) event
// model: an initiator acts on a target, an observer records the outcome, and
// optional measurements carry quantities such as bytes transferred.
package cadf

import (
	"time"

	"github.com/google/uuid"
)

const (
	// EventTypeURI identifies CADF event records.
	EventTypeURI = "http://schemas.dmtf.org/cloud/audit/1.0/event"

	// EventTypeActivity is the only CADF event type produced here.
	EventTypeActivity = "activity"

	// Resource type URIs.
	TypeURIStorageObject = "service/storage/object"
	TypeURIUser          = "service/security/account/user"
	TypeURIUnknown       = "unknown"

	// UnitBytes is the unit for byte measurements.
	UnitBytes = "B"
)

// Outcome is the result of the observed request.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is a single CADF activity record.
// Events are built once per request and must not be modified after they are
// handed to the delivery pipeline.
type Event struct {
	TypeURI      string        `json:"typeURI"`
	ID           string        `json:"id"`
	EventType    string        `json:"eventType"`
	EventTime    time.Time     `json:"eventTime"`
	Action       string        `json:"action"`
	Outcome      Outcome       `json:"outcome"`
	Initiator    Initiator     `json:"initiator"`
	Target       Target        `json:"target"`
	Observer     Resource      `json:"observer"`
	Measurements []Measurement `json:"measurements,omitempty"`
}

// Resource is the minimal CADF resource reference.
type Resource struct {
	TypeURI string `json:"typeURI"`
	ID      string `json:"id"`
}

// Initiator is the user that issued the request.
type Initiator struct {
	TypeURI   string `json:"typeURI"`
	ID        string `json:"id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// Target is the storage resource the request acted on.
// Metadata values are strings or nil; nil marks a path level that was not
// present in the request path.
type Target struct {
	TypeURI  string         `json:"typeURI"`
	ID       string         `json:"id"`
	Action   string         `json:"action"`
	Metadata map[string]any `json:"metadata"`
}

// Measurement is a quantity observed for the request.
type Measurement struct {
	Result int64  `json:"result"`
	Metric Metric `json:"metric"`
}

// Metric names and qualifies a Measurement.
type Metric struct {
	MetricID string `json:"metricId"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
}

// NewEvent returns an activity event with a fresh id.
func NewEvent(eventTime time.Time, action string, outcome Outcome) *Event {
	return &Event{
		TypeURI:   EventTypeURI,
		ID:        uuid.New().String(),
		EventType: EventTypeActivity,
		EventTime: eventTime.UTC(),
		Action:    action,
		Outcome:   outcome,
	}
}

// AddMeasurement appends a measurement with a generated metric id.
func (e *Event) AddMeasurement(name, unit string, result int64) {
	e.Measurements = append(e.Measurements, Measurement{
		Result: result,
		Metric: Metric{
			MetricID: "metric-" + uuid.New().String(),
			Name:     name,
			Unit:     unit,
		},
	})
}

// Measurement returns the measurement with the given metric name.
func (e *Event) Measurement(name string) (Measurement, bool) {
	for _, m := range e.Measurements {
		if m.Metric.Name == name {
			return m, true
		}
	}
	return Measurement{}, false
}
