package contextloop

import (
	"fmt"
	"time"

	"github.com/semptify/backend/internal/core"
	"github.com/semptify/backend/internal/events"
)

// rightsMapping ties issue types to the tenant rights they threaten.
var rightsMapping = map[string]string{
	"eviction_threat":   "Right to due process",
	"habitability_issue": "Right to habitable housing",
	"harassment":        "Right to quiet enjoyment",
	"retaliation":       "Right to assert rights without retaliation",
	"illegal_lockout":   "Right to access your home",
	"deposit_dispute":   "Right to security deposit return",
}

// docTypeIssues maps document types that are themselves evidence of an
// active problem onto the issue they imply. An eviction notice in the
// vault IS an eviction threat, whether or not a classifier ran.
var docTypeIssues = map[string]string{
	"eviction_notice": "eviction_threat",
	"notice_to_quit":  "eviction_threat",
	"pay_or_quit":     "eviction_threat",
	"illegal_lockout": "illegal_lockout",
}

// reduce applies one event to the context. It is a pure state transition:
// all bus publication happens afterwards in the worker's post-event pass.
// An error leaves the context untouched and marks the event unprocessed.
func reduce(uc *UserContext, e *events.Event) error {
	switch p := e.Payload.(type) {
	case events.DocumentUploadedPayload:
		docType := p.DocType
		if docType == "" {
			docType = "unknown"
		}
		uc.Documents = append(uc.Documents, core.DocumentDescriptor{
			ID:         orDefault(p.DocumentID, e.ID),
			Type:       docType,
			Filename:   p.Filename,
			UploadedAt: e.Timestamp,
			Intensity:  e.Intensity,
		})
		uc.DocumentTypes[docType] = true
		if issueType, ok := docTypeIssues[docType]; ok {
			mergeIssue(uc, core.Issue{
				Type:        issueType,
				Description: "Implied by uploaded " + docType,
				DetectedAt:  e.Timestamp,
			})
		}

	case events.DocumentAddedPayload:
		docType := p.ResourceType
		if docType == "" {
			docType = "unknown"
		}
		uc.Documents = append(uc.Documents, core.DocumentDescriptor{
			ID:         p.ResourceID,
			Type:       docType,
			Filename:   p.Filename,
			UploadedAt: e.Timestamp,
		})
		uc.DocumentTypes[docType] = true
		if issueType, ok := docTypeIssues[docType]; ok {
			mergeIssue(uc, core.Issue{
				Type:        issueType,
				Description: "Implied by uploaded " + docType,
				DetectedAt:  e.Timestamp,
			})
		}

	case events.DocumentAnalyzedPayload:
		for _, issue := range p.Issues {
			mergeIssue(uc, issue)
		}
		for _, dl := range p.Deadlines {
			uc.addDeadline(dl)
		}
		for _, law := range p.ApplicableLaws {
			mergeLaw(uc, law)
		}

	case events.IssueDetectedPayload:
		issue := p.Issue
		if issue.DetectedAt.IsZero() {
			issue.DetectedAt = e.Timestamp
		}
		mergeIssue(uc, issue)

	case events.IssueResolvedPayload:
		for i, issue := range uc.ActiveIssues {
			if issue.Type == p.IssueType {
				uc.ActiveIssues = append(uc.ActiveIssues[:i], uc.ActiveIssues[i+1:]...)
				break
			}
		}

	case events.ViolationFoundPayload:
		mergeIssue(uc, core.Issue{
			Type:        p.IssueType,
			Description: p.Description,
			DetectedAt:  e.Timestamp,
		})

	case events.DeadlineApproachingPayload:
		uc.addDeadline(p.Deadline)

	case events.ActionTakenPayload:
		uc.ActionsTaken = append(uc.ActionsTaken, core.ActionRecord{
			Action:    p.Action,
			Timestamp: e.Timestamp,
			Details:   p.Details,
		})

	case events.LawMatchedPayload:
		mergeLaw(uc, p.LawID)

	case events.EventsExtractedPayload:
		for _, item := range p.Events {
			if !item.IsDeadline {
				continue
			}
			uc.addDeadline(core.Deadline{
				Type:        item.EventType,
				Date:        item.Date,
				Description: item.Title,
			})
		}

	case events.CaseInfoUpdatedPayload:
		if p.HearingDate != nil {
			uc.addDeadline(core.Deadline{
				ID:   "hearing_date",
				Type: "court_summons", Date: p.HearingDate.UTC(),
				Description: "Court hearing",
			})
		}
		if p.AnswerDeadline != nil {
			uc.addDeadline(core.Deadline{
				ID:   "answer_deadline",
				Type: "court_summons", Date: p.AnswerDeadline.UTC(),
				Description: "Answer due",
			})
		}

	case events.DocumentProcessedPayload, events.DocumentClassifiedPayload,
		events.TimelineUpdatedPayload, events.DeadlinePassedPayload,
		events.UserDismissedPayload, events.PredictionMadePayload,
		events.IntensitySpikePayload, events.PhaseChangedPayload,
		events.UIRefreshNeededPayload, events.AccessAuditPayload, nil:
		// Recorded in the event ring; no direct state transition.

	default:
		return fmt.Errorf("no reducer for payload %T", e.Payload)
	}
	return nil
}

func mergeIssue(uc *UserContext, issue core.Issue) {
	if issue.Type == "" || uc.hasIssue(issue.Type) {
		return
	}
	if issue.DetectedAt.IsZero() {
		issue.DetectedAt = time.Now().UTC()
	}
	uc.ActiveIssues = append(uc.ActiveIssues, issue)
	if right, ok := rightsMapping[issue.Type]; ok {
		uc.RightsAtRisk[right] = true
	}
}

func mergeLaw(uc *UserContext, lawID string) {
	if lawID == "" {
		return
	}
	for _, l := range uc.ApplicableLaws {
		if l == lawID {
			return
		}
	}
	uc.ApplicableLaws = append(uc.ApplicableLaws, lawID)
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
