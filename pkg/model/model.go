package model

import (
	"time"
)

// Contact is an emergency contact registered through the companion app.
type Contact struct {
	Name  string `json:"contact_name"`
	Phone string `json:"phone_no"`
}

// Incident records one emergency activation from start to stand-down.
type Incident struct {
	ID           string    `json:"id"` // uuid
	Reason       string    `json:"reason"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"` // zero while open
	EndReason    string    `json:"end_reason"`
	MaxThreshold int       `json:"max_threshold"` // meters
	Escalated    bool      `json:"escalated"`
	Helper       string    `json:"helper"`
}

// Open reports whether the incident has not been closed yet.
func (i *Incident) Open() bool { return i.EndedAt.IsZero() }

// Trip records one navigation session.
type Trip struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	OriginLat   float64   `json:"origin_lat"`
	OriginLon   float64   `json:"origin_lon"`
	Steps       int       `json:"steps"`
	Completed   int       `json:"completed"`
	Outcome     string    `json:"outcome"` // route.Outcome value
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// EventType classifies entries in the device event log.
type EventType string

const (
	EventEmergencyOn  EventType = "emergency_on"
	EventEmergencyOff EventType = "emergency_off"
	EventEscalated    EventType = "escalated"
	EventHelper       EventType = "helper"
	EventNavigation   EventType = "navigation"
	EventRestart      EventType = "restart"
	EventSystem       EventType = "system"
	EventAnalysis     EventType = "analysis"
)

// DeviceEvent is one line in the device event log.
type DeviceEvent struct {
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
