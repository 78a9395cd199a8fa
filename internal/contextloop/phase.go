package contextloop

import (
	"github.com/semptify/backend/internal/core"
	"github.com/semptify/backend/internal/events"
)

// severeIssueTypes force the eviction phase regardless of intensity.
var severeIssueTypes = map[string]bool{
	"eviction_threat": true,
	"notice_to_quit":  true,
	"eviction_notice": true,
}

// computePhase applies the phase rule table, first matching row wins.
func computePhase(uc *UserContext) core.Phase {
	severe := false
	for _, issue := range uc.ActiveIssues {
		if severeIssueTypes[issue.Type] {
			severe = true
			break
		}
	}

	switch {
	case severe || uc.IntensityScore >= 80:
		return core.PhaseEviction
	case uc.IntensityScore >= 50 || len(uc.ActiveIssues) >= 2:
		return core.PhaseDispute
	case len(uc.ActiveIssues) >= 1:
		return core.PhaseIssueEmerging
	case uc.DocumentTypes["moved_out"] || uc.DocumentTypes["deposit_demand"]:
		return core.PhasePostTenancy
	default:
		return core.PhaseActive
	}
}

// updatePhase recomputes the phase with eviction stickiness: once a user
// is in eviction they stay there until an issue_resolved event is
// processed, even if the rule table would now place them lower.
func updatePhase(uc *UserContext, trigger events.Type) (from, to core.Phase, changed bool) {
	from = uc.Phase
	to = computePhase(uc)

	if from == core.PhaseEviction && to != core.PhaseEviction && trigger != events.IssueResolved {
		return from, from, false
	}

	if to != from {
		uc.Phase = to
		return from, to, true
	}
	return from, to, false
}
