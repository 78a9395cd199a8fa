package contextloop

import (
	"fmt"
	"strings"
	"time"

	"github.com/semptify/backend/internal/core"
)

// essentialDocuments are suggested, in order, until the user has them.
var essentialDocuments = []string{"lease", "rent_receipt", "photo_evidence"}

// generatePredictions rebuilds predicted needs from document, phase and
// deadline state. Deterministic: same context, same predictions.
func generatePredictions(uc *UserContext, now time.Time) []core.PredictedNeed {
	var predictions []core.PredictedNeed

	if uc.DocumentTypes["lease"] && !uc.DocumentTypes["photo_evidence"] {
		predictions = append(predictions, core.PredictedNeed{
			Type:     "document_needed",
			Item:     "move_in_photos",
			Reason:   "Protect your security deposit",
			Priority: "medium",
		})
	}

	if uc.DocumentTypes["repair_request"] {
		predictions = append(predictions, core.PredictedNeed{
			Type:     "action_needed",
			Item:     "repair_followup",
			Reason:   "Follow up in writing creates legal protection",
			Priority: "high",
		})
	}

	if uc.Phase == core.PhaseEviction {
		predictions = append(predictions, core.PredictedNeed{
			Type:     "resource_needed",
			Item:     "legal_aid",
			Reason:   "Free legal help is available for eviction cases",
			Priority: "critical",
		})
	}

	if uc.Phase == core.PhasePostTenancy {
		predictions = append(predictions, core.PredictedNeed{
			Type:     "action_needed",
			Item:     "deposit_demand_letter",
			Reason:   "Formal demand starts the legal clock",
			Priority: "high",
		})
	}

	for _, dl := range uc.Deadlines {
		if dl.Date.IsZero() {
			continue
		}
		daysLeft := int(dl.Date.Sub(now).Hours() / 24)
		if daysLeft > 0 && daysLeft <= 7 {
			priority := "high"
			if daysLeft <= 3 {
				priority = "critical"
			}
			item := dl.Type
			if item == "" {
				item = "deadline"
			}
			predictions = append(predictions, core.PredictedNeed{
				Type:     "deadline_warning",
				Item:     item,
				Reason:   fmt.Sprintf("Due in %d days", daysLeft),
				Priority: priority,
			})
		}
	}

	return predictions
}

// recommendedActions produces at most five actions, deduplicated by action
// key, in the fixed policy order: legal help on critical intensity, then
// missing essential documents, then issue documentation, then the first
// three predicted needs.
func recommendedActions(uc *UserContext) []core.RecommendedAction {
	var actions []core.RecommendedAction
	seen := make(map[string]bool)
	add := func(a core.RecommendedAction) {
		if seen[a.Action] || len(actions) >= 5 {
			return
		}
		seen[a.Action] = true
		actions = append(actions, a)
	}

	if uc.IntensityScore >= 80 {
		add(core.RecommendedAction{
			Action:   "seek_legal_help",
			Label:    "Get Legal Help Now",
			Reason:   "Your situation is urgent",
			Priority: "critical",
		})
	}

	for _, docType := range essentialDocuments {
		if !uc.DocumentTypes[docType] {
			add(core.RecommendedAction{
				Action:   "upload_" + docType,
				Label:    "Upload: " + titleize(docType),
				Reason:   "Essential for your protection",
				Priority: "high",
			})
		}
	}

	if len(uc.ActiveIssues) > 0 && !uc.DocumentTypes["photo_evidence"] {
		add(core.RecommendedAction{
			Action:   "document_issue",
			Label:    "Document Current Issues",
			Reason:   "Photos and records strengthen your case",
			Priority: "high",
		})
	}

	for i, pred := range uc.PredictedNeeds {
		if i >= 3 {
			break
		}
		add(core.RecommendedAction{
			Action:   pred.Item,
			Label:    titleize(pred.Item),
			Reason:   pred.Reason,
			Priority: pred.Priority,
		})
	}

	return actions
}

func titleize(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
