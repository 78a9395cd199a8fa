package contextloop

import (
	"github.com/semptify/backend/internal/core"
	"github.com/semptify/backend/internal/intensity"
)

// StateView is the complete processed state for a user: context snapshot,
// intensity, summary counters, predictions and the next-actions stream.
type StateView struct {
	UserID      string                   `json:"user_id"`
	Context     Snapshot                 `json:"context"`
	Intensity   IntensityView            `json:"intensity"`
	Summary     StateSummary             `json:"summary"`
	Predictions []core.PredictedNeed     `json:"predictions"`
	NextActions []core.RecommendedAction `json:"next_actions"`
}

// IntensityView pairs the current aggregate with its trend.
type IntensityView struct {
	Current float64               `json:"current"`
	Trend   intensity.TrendReport `json:"trend"`
}

// StateSummary carries the headline counters for dashboards.
type StateSummary struct {
	Phase          core.Phase `json:"phase"`
	Documents      int        `json:"documents"`
	ActiveIssues   int        `json:"active_issues"`
	Deadlines      int        `json:"deadlines"`
	LawsApplicable int        `json:"laws_applicable"`
	RightsAtRisk   int        `json:"rights_at_risk"`
}

// GetState returns a consistent read-only view of a user's situation.
func (l *Loop) GetState(userID string) StateView {
	snap := l.snapshotWithEvents(userID)
	actions := recommendedActionsFromSnapshot(snap)
	return StateView{
		UserID:  userID,
		Context: snap,
		Intensity: IntensityView{
			Current: snap.IntensityScore,
			Trend:   l.tracker.Trend(userID),
		},
		Summary: StateSummary{
			Phase:          snap.Phase,
			Documents:      len(snap.Documents),
			ActiveIssues:   len(snap.ActiveIssues),
			Deadlines:      len(snap.Deadlines),
			LawsApplicable: len(snap.ApplicableLaws),
			RightsAtRisk:   len(snap.RightsAtRisk),
		},
		Predictions: snap.PredictedNeeds,
		NextActions: actions,
	}
}

// recommendedActionsFromSnapshot rebuilds a transient UserContext so the
// policy in actions.go runs against consistent copied state.
func recommendedActionsFromSnapshot(snap Snapshot) []core.RecommendedAction {
	uc := &UserContext{
		UserID:         snap.UserID,
		Phase:          snap.Phase,
		IntensityScore: snap.IntensityScore,
		DocumentTypes:  make(map[string]bool, len(snap.DocumentTypes)),
		ActiveIssues:   snap.ActiveIssues,
		Deadlines:      snap.Deadlines,
		PredictedNeeds: snap.PredictedNeeds,
	}
	for _, t := range snap.DocumentTypes {
		uc.DocumentTypes[t] = true
	}
	return recommendedActions(uc)
}

// IntensityReport is the detailed urgency report for a user.
type IntensityReport struct {
	UserID           string                `json:"user_id"`
	OverallIntensity float64               `json:"overall_intensity"`
	Severity         core.Severity         `json:"severity"`
	Trend            intensity.TrendReport `json:"trend"`
	Breakdown        []IntensityItem       `json:"breakdown"`
	Phase            core.Phase            `json:"phase"`
	RiskLevel        RiskLevel             `json:"risk_level"`
}

// IntensityItem is one scored contributor to the aggregate.
type IntensityItem struct {
	Item      string        `json:"item"`
	Intensity float64       `json:"intensity"`
	Severity  core.Severity `json:"severity"`
	Factors   []string      `json:"factors"`
}

// RiskLevel is the banded description of the aggregate score.
type RiskLevel struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// GetIntensityReport returns the per-issue breakdown behind a user's
// aggregate intensity.
func (l *Loop) GetIntensityReport(userID string) IntensityReport {
	snap := l.GetContext(userID)
	now := l.now()

	breakdown := make([]IntensityItem, 0, len(snap.ActiveIssues))
	for _, issue := range snap.ActiveIssues {
		r := intensity.Score(intensity.Input{
			EventKey:     issue.Type,
			Phase:        snap.Phase,
			ActiveIssues: len(snap.ActiveIssues),
			RightsAtRisk: len(snap.RightsAtRisk),
			Now:          now,
		})
		breakdown = append(breakdown, IntensityItem{
			Item:      issue.Type,
			Intensity: r.Score,
			Severity:  r.Severity,
			Factors:   r.Factors,
		})
	}

	return IntensityReport{
		UserID:           userID,
		OverallIntensity: snap.IntensityScore,
		Severity:         intensity.SeverityFor(snap.IntensityScore),
		Trend:            l.tracker.Trend(userID),
		Breakdown:        breakdown,
		Phase:            snap.Phase,
		RiskLevel:        riskLevelFor(snap.IntensityScore),
	}
}

func riskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevel{Level: "critical", Message: "Immediate action required"}
	case score >= 60:
		return RiskLevel{Level: "high", Message: "Urgent attention needed"}
	case score >= 40:
		return RiskLevel{Level: "elevated", Message: "Active issues to address"}
	case score >= 20:
		return RiskLevel{Level: "moderate", Message: "Monitor and prepare"}
	default:
		return RiskLevel{Level: "low", Message: "Situation stable"}
	}
}
