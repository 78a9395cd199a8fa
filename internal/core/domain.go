package core

import "time"

// Phase is the coarse bucket describing where a tenancy currently sits.
// It drives UI emphasis and the intensity phase multiplier.
type Phase string

const (
	PhasePreMoveIn     Phase = "pre_move_in"
	PhaseActive        Phase = "active"
	PhaseIssueEmerging Phase = "issue_emerging"
	PhaseDispute       Phase = "dispute"
	PhaseEviction      Phase = "eviction"
	PhaseMoveOut       Phase = "move_out"
	PhasePostTenancy   Phase = "post_tenancy"
)

// Severity is the categorical projection of an intensity score.
type Severity string

const (
	SeverityCritical Severity = "critical" // Legal deadline, court date, eviction
	SeverityHigh     Severity = "high"     // Needs attention soon
	SeverityMedium   Severity = "medium"   // Should address
	SeverityLow      Severity = "low"      // Nice to know
	SeverityInfo     Severity = "info"     // Just information
)

// Issue is one active problem in a tenancy. Type comes from the closed
// issue taxonomy (eviction_threat, habitability_issue, harassment, ...).
// A type appears at most once in a context's active issues.
type Issue struct {
	Type         string    `json:"type"`
	Description  string    `json:"description,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
	EvidenceRefs []string  `json:"evidence_refs,omitempty"`
}

// Deadline is a dated obligation. Deadlines inside a UserContext are kept
// sorted ascending by Date.
type Deadline struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Date             time.Time `json:"date"`
	Description      string    `json:"description,omitempty"`
	LinkedDocumentID string    `json:"linked_document_id,omitempty"`
}

// DocumentDescriptor is the context loop's lightweight view of an uploaded
// document. The full registry record lives in the vault.
type DocumentDescriptor struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Filename   string    `json:"filename,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	Intensity  float64   `json:"intensity,omitempty"`
}

// ActionRecord captures an action the user has taken.
type ActionRecord struct {
	Action    string                 `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// PredictedNeed is a deterministic suggestion surfaced by the context loop
// from document/phase/deadline state.
type PredictedNeed struct {
	Type     string `json:"type"` // document_needed, action_needed, resource_needed, deadline_warning
	Item     string `json:"item"`
	Reason   string `json:"reason"`
	Priority string `json:"priority"` // critical, high, medium, low
}

// RecommendedAction is one entry in the prioritized next-actions stream.
type RecommendedAction struct {
	Action   string `json:"action"`
	Label    string `json:"label"`
	Reason   string `json:"reason"`
	Priority string `json:"priority"`
}

// DatedItem is an event extracted from document text: a date plus the
// classified meaning of its surrounding context.
type DatedItem struct {
	Date        time.Time `json:"date"`
	EventType   string    `json:"event_type"` // notice, court, payment, maintenance, communication, other
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	SourceText  string    `json:"source_text"`
	IsDeadline  bool      `json:"is_deadline"`
}
