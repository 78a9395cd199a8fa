// Package events provides the typed publish/subscribe fabric for the
// Semptify core runtime. Every cross-component signal (document intake,
// vault access, context loop output) flows through the Bus, which keeps
// bounded per-type and per-user history and fans events out to in-process
// subscribers and live websocket clients.
package events

import (
	"encoding/json"
	"time"

	"github.com/semptify/backend/internal/core"
)

// Type classifies events. The set is closed; publishing an unknown type
// is an input error.
type Type string

const (
	// Document pipeline events
	DocumentAdded      Type = "document_added"
	DocumentProcessed  Type = "document_processed"
	DocumentClassified Type = "document_classified"
	EventsExtracted    Type = "events_extracted"

	// Case/state events
	CaseInfoUpdated Type = "case_info_updated"
	ViolationFound  Type = "violation_found"
	TimelineUpdated Type = "timeline_updated"

	// Context loop events
	DocumentUploaded    Type = "document_uploaded"
	DocumentAnalyzed    Type = "document_analyzed"
	IssueDetected       Type = "issue_detected"
	IssueResolved       Type = "issue_resolved"
	DeadlineApproaching Type = "deadline_approaching"
	DeadlinePassed      Type = "deadline_passed"
	ActionTaken         Type = "action_taken"
	PhaseChanged        Type = "phase_changed"
	LawMatched          Type = "law_matched"
	UserDismissed       Type = "user_dismissed"
	PredictionMade      Type = "prediction_made"
	IntensitySpike      Type = "intensity_spike"
	UIRefreshNeeded     Type = "ui_refresh_needed"

	// Vault access audit events (no content payload)
	AccessAudit Type = "access_audit"
)

var knownTypes = map[Type]bool{
	DocumentAdded: true, DocumentProcessed: true, DocumentClassified: true,
	EventsExtracted: true, CaseInfoUpdated: true, ViolationFound: true,
	TimelineUpdated: true, DocumentUploaded: true, DocumentAnalyzed: true,
	IssueDetected: true, IssueResolved: true, DeadlineApproaching: true,
	DeadlinePassed: true, ActionTaken: true, PhaseChanged: true,
	LawMatched: true, UserDismissed: true, PredictionMade: true,
	IntensitySpike: true, UIRefreshNeeded: true, AccessAudit: true,
}

// Known reports whether t is part of the closed event taxonomy.
func Known(t Type) bool { return knownTypes[t] }

// AllTypes returns the closed taxonomy, for introspection endpoints.
func AllTypes() []Type {
	out := make([]Type, 0, len(knownTypes))
	for t := range knownTypes {
		out = append(out, t)
	}
	return out
}

// Payload is the tagged-union interface for event data. Each event type has
// a distinct payload struct; Kind ties the variant back to its type tag.
type Payload interface {
	Kind() Type
}

// Event is one atomic thing that happened. Events are value-typed and may
// be copied freely; history buffers hold pointers that are never mutated
// after publication.
type Event struct {
	ID        string        `json:"id"`
	Type      Type          `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    string        `json:"user_id,omitempty"` // empty = broadcast
	Source    string        `json:"source,omitempty"`
	Payload   Payload       `json:"-"`
	Intensity float64       `json:"intensity"`
	Severity  core.Severity `json:"severity"`
}

// wireEvent is the serialized shape sent to websocket clients; the payload
// variant flattens under "data".
type wireEvent struct {
	ID        string        `json:"id"`
	Type      Type          `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    string        `json:"user_id,omitempty"`
	Source    string        `json:"source,omitempty"`
	Intensity float64       `json:"intensity"`
	Severity  core.Severity `json:"severity"`
	Data      Payload       `json:"data,omitempty"`
}

// MarshalJSON serializes the event with its payload under "data".
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Source:    e.Source,
		Intensity: e.Intensity,
		Severity:  e.Severity,
		Data:      e.Payload,
	})
}
