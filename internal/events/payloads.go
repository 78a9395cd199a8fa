package events

import (
	"time"

	"github.com/semptify/backend/internal/core"
)

// One payload struct per event type. Publishers hand the Bus the variant
// directly; reducers type-switch on it instead of digging through maps.

// DocumentUploadedPayload accompanies document_uploaded.
type DocumentUploadedPayload struct {
	DocumentID string     `json:"document_id"`
	DocType    string     `json:"type"`
	Filename   string     `json:"filename,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

func (DocumentUploadedPayload) Kind() Type { return DocumentUploaded }

// DocumentAddedPayload accompanies document_added (vault create).
type DocumentAddedPayload struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	Filename     string `json:"filename,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

func (DocumentAddedPayload) Kind() Type { return DocumentAdded }

// DocumentProcessedPayload accompanies document_processed (vault overwrite
// or pipeline completion).
type DocumentProcessedPayload struct {
	DocumentID string `json:"document_id"`
	Overwrite  bool   `json:"overwrite,omitempty"`
}

func (DocumentProcessedPayload) Kind() Type { return DocumentProcessed }

// DocumentClassifiedPayload accompanies document_classified.
type DocumentClassifiedPayload struct {
	DocumentID         string  `json:"document_id"`
	DocType            string  `json:"doc_type"`
	Confidence         float64 `json:"confidence"`
	Summary            string  `json:"summary,omitempty"`
	ReadyForExtraction bool    `json:"ready_for_extraction"`
}

func (DocumentClassifiedPayload) Kind() Type { return DocumentClassified }

// EventsExtractedPayload accompanies events_extracted.
type EventsExtractedPayload struct {
	DocumentID   string           `json:"document_id"`
	DocType      string           `json:"doc_type,omitempty"`
	Count        int              `json:"count"`
	Events       []core.DatedItem `json:"events"`
	HasDeadlines bool             `json:"has_deadlines"`
}

func (EventsExtractedPayload) Kind() Type { return EventsExtracted }

// CaseInfoUpdatedPayload accompanies case_info_updated.
type CaseInfoUpdatedPayload struct {
	Updates        []string   `json:"updates"`
	HearingDate    *time.Time `json:"hearing_date,omitempty"`
	AnswerDeadline *time.Time `json:"answer_deadline,omitempty"`
}

func (CaseInfoUpdatedPayload) Kind() Type { return CaseInfoUpdated }

// ViolationFoundPayload accompanies violation_found.
type ViolationFoundPayload struct {
	IssueType   string `json:"issue_type"`
	Description string `json:"description,omitempty"`
	LawID       string `json:"law_id,omitempty"`
}

func (ViolationFoundPayload) Kind() Type { return ViolationFound }

// TimelineUpdatedPayload accompanies timeline_updated.
type TimelineUpdatedPayload struct {
	EventsAdded int `json:"events_added"`
}

func (TimelineUpdatedPayload) Kind() Type { return TimelineUpdated }

// DocumentAnalyzedPayload carries the composed analysis for a document:
// detected issues, extracted deadlines and matched laws.
type DocumentAnalyzedPayload struct {
	DocumentID     string          `json:"document_id"`
	DocType        string          `json:"doc_type"`
	Issues         []core.Issue    `json:"issues,omitempty"`
	Deadlines      []core.Deadline `json:"deadlines,omitempty"`
	ApplicableLaws []string        `json:"applicable_laws,omitempty"`
}

func (DocumentAnalyzedPayload) Kind() Type { return DocumentAnalyzed }

// IssueDetectedPayload accompanies issue_detected.
type IssueDetectedPayload struct {
	Issue core.Issue `json:"issue"`
}

func (IssueDetectedPayload) Kind() Type { return IssueDetected }

// IssueResolvedPayload accompanies issue_resolved; resolving the last
// severe issue lets the phase machine leave eviction.
type IssueResolvedPayload struct {
	IssueType string `json:"issue_type"`
}

func (IssueResolvedPayload) Kind() Type { return IssueResolved }

// DeadlineApproachingPayload accompanies deadline_approaching.
type DeadlineApproachingPayload struct {
	Deadline      core.Deadline `json:"deadline"`
	DaysRemaining int           `json:"days_remaining"`
}

func (DeadlineApproachingPayload) Kind() Type { return DeadlineApproaching }

// DeadlinePassedPayload accompanies deadline_passed.
type DeadlinePassedPayload struct {
	Deadline core.Deadline `json:"deadline"`
}

func (DeadlinePassedPayload) Kind() Type { return DeadlinePassed }

// ActionTakenPayload accompanies action_taken.
type ActionTakenPayload struct {
	Action  string                 `json:"action"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (ActionTakenPayload) Kind() Type { return ActionTaken }

// PhaseChangedPayload accompanies phase_changed.
type PhaseChangedPayload struct {
	From core.Phase `json:"from"`
	To   core.Phase `json:"to"`
}

func (PhaseChangedPayload) Kind() Type { return PhaseChanged }

// LawMatchedPayload accompanies law_matched.
type LawMatchedPayload struct {
	LawID           string   `json:"law_id"`
	DocumentID      string   `json:"document_id,omitempty"`
	Relevance       float64  `json:"relevance,omitempty"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

func (LawMatchedPayload) Kind() Type { return LawMatched }

// UserDismissedPayload accompanies user_dismissed.
type UserDismissedPayload struct {
	Item string `json:"item"`
}

func (UserDismissedPayload) Kind() Type { return UserDismissed }

// PredictionMadePayload accompanies prediction_made.
type PredictionMadePayload struct {
	Predictions []core.PredictedNeed `json:"predictions"`
}

func (PredictionMadePayload) Kind() Type { return PredictionMade }

// IntensitySpikePayload accompanies intensity_spike.
type IntensitySpikePayload struct {
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

func (IntensitySpikePayload) Kind() Type { return IntensitySpike }

// UIRefreshNeededPayload accompanies ui_refresh_needed.
type UIRefreshNeededPayload struct {
	Section string `json:"section"`
}

func (UIRefreshNeededPayload) Kind() Type { return UIRefreshNeeded }

// AccessAuditPayload accompanies access_audit; deliberately carries no
// document content.
type AccessAuditPayload struct {
	ActorID       string `json:"actor_id"`
	Action        string `json:"action"`
	ResourceID    string `json:"resource_id"`
	ResourceClass string `json:"resource_class"`
	Decision      string `json:"decision"`
	Reason        string `json:"reason,omitempty"`
}

func (AccessAuditPayload) Kind() Type { return AccessAudit }
