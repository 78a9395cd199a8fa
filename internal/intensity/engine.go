// Package intensity implements the deterministic urgency scoring engine.
// Scoring is pure: no I/O, no event emission, same inputs same outputs.
// The stateful rolling-trend tracker lives in tracker.go.
package intensity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/semptify/backend/internal/core"
)

// baseIntensity maps event/document/issue keys to their base score.
var baseIntensity = map[string]float64{
	// Documents
	"eviction_notice": 85,
	"notice_to_quit":  80,
	"court_summons":   90,
	"pay_or_quit":     75,
	"lease_violation": 60,
	"rent_increase":   45,
	"lease":           20,
	"rent_receipt":    15,
	"repair_request":  40,
	"photo_evidence":  20,
	"communication":   25,

	// Issues
	"eviction_threat":   85,
	"habitability_issue": 55,
	"illegal_lockout":   95,
	"harassment":        65,
	"retaliation":       70,
	"deposit_dispute":   50,
	"rent_dispute":      55,
	"repair_ignored":    45,

	// General
	"unknown": 30,
}

var phaseMultipliers = map[core.Phase]float64{
	core.PhaseEviction:      1.3,
	core.PhaseDispute:       1.2,
	core.PhaseIssueEmerging: 1.1,
	core.PhasePostTenancy:   1.1, // deposit deadlines matter
	core.PhaseActive:        1.0,
	core.PhasePreMoveIn:     0.9,
}

// Input is everything a single score depends on.
type Input struct {
	EventKey     string
	Phase        core.Phase
	ActiveIssues int
	RightsAtRisk int
	Deadline     *time.Time
	Now          time.Time
	Additional   map[string]float64 // extra multiplicative factors
}

// Result is one scored item with its contributing factors.
type Result struct {
	Score    float64
	Severity core.Severity
	Factors  []string
}

// Score computes the intensity for one event. The result is clamped to
// [0, 100].
func Score(in Input) Result {
	base, ok := baseIntensity[in.EventKey]
	if !ok {
		base = baseIntensity["unknown"]
	}
	score := base
	factors := []string{fmt.Sprintf("Base: %g (%s)", base, in.EventKey)}

	if in.Deadline != nil {
		mult, desc := deadlineMultiplier(*in.Deadline, in.Now)
		score *= mult
		factors = append(factors, fmt.Sprintf("Deadline (%s): x%g", desc, mult))
	}

	// Multiple issues compound
	if in.ActiveIssues > 1 {
		mult := 1 + float64(in.ActiveIssues)*0.10
		score *= mult
		factors = append(factors, fmt.Sprintf("Multiple issues (%d): x%.2f", in.ActiveIssues, mult))
	}

	if in.RightsAtRisk > 0 {
		mult := 1 + float64(in.RightsAtRisk)*0.15
		score *= mult
		factors = append(factors, fmt.Sprintf("Rights at risk (%d): x%.2f", in.RightsAtRisk, mult))
	}

	if mult, ok := phaseMultipliers[in.Phase]; ok && mult != 1.0 {
		score *= mult
		factors = append(factors, fmt.Sprintf("Phase (%s): x%g", in.Phase, mult))
	}

	for name, mult := range in.Additional {
		score *= mult
		factors = append(factors, fmt.Sprintf("%s: x%g", name, mult))
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	score = round1(score)

	return Result{Score: score, Severity: SeverityFor(score), Factors: factors}
}

// deadlineMultiplier scales urgency by how close the deadline is. Days are
// whole elapsed 24h periods, floored, so "exactly 30 days out" lands in
// the 30-day bucket (x1.00), not the 60-day one.
func deadlineMultiplier(deadline, now time.Time) (float64, string) {
	days := int(math.Floor(deadline.Sub(now).Hours() / 24))
	switch {
	case days < 0:
		return 1.5, "PAST DUE"
	case days == 0:
		return 1.4, "TODAY"
	case days == 1:
		return 1.35, "1 day"
	case days <= 3:
		return 1.25, fmt.Sprintf("%d days", days)
	case days <= 7:
		return 1.15, fmt.Sprintf("%d days", days)
	case days <= 14:
		return 1.05, fmt.Sprintf("%d days", days)
	case days <= 30:
		return 1.0, fmt.Sprintf("%d days", days)
	case days <= 60:
		return 0.8, fmt.Sprintf("%d days", days)
	default:
		return 0.6, fmt.Sprintf("%d days", days)
	}
}

// SeverityFor maps a score onto the severity ladder.
func SeverityFor(score float64) core.Severity {
	switch {
	case score >= 80:
		return core.SeverityCritical
	case score >= 60:
		return core.SeverityHigh
	case score >= 40:
		return core.SeverityMedium
	case score >= 20:
		return core.SeverityLow
	default:
		return core.SeverityInfo
	}
}

// Snapshot is the slice of user state the aggregate score depends on.
type Snapshot struct {
	Phase        core.Phase
	Issues       []core.Issue
	Deadlines    []core.Deadline
	RightsAtRisk int
	Now          time.Time
}

// Aggregate scores every active issue and every dated deadline, then takes
// the weighted average of the top five (weights 1.0, 0.9, 0.8, 0.7, 0.6).
// An empty snapshot aggregates to 0.
func Aggregate(s Snapshot) float64 {
	if len(s.Issues) == 0 && len(s.Deadlines) == 0 {
		return 0
	}

	var scores []float64
	for _, issue := range s.Issues {
		r := Score(Input{
			EventKey:     issue.Type,
			Phase:        s.Phase,
			ActiveIssues: len(s.Issues),
			RightsAtRisk: s.RightsAtRisk,
			Now:          s.Now,
		})
		scores = append(scores, r.Score)
	}
	for _, dl := range s.Deadlines {
		if dl.Date.IsZero() {
			continue
		}
		key := dl.Type
		if key == "" {
			key = "deadline"
		}
		date := dl.Date
		r := Score(Input{
			EventKey:     key,
			Phase:        s.Phase,
			ActiveIssues: len(s.Issues),
			RightsAtRisk: s.RightsAtRisk,
			Deadline:     &date,
			Now:          s.Now,
		})
		scores = append(scores, r.Score)
	}

	if len(scores) == 0 {
		return 0
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	top := scores
	if len(top) > 5 {
		top = top[:5]
	}
	var weightedSum, weightTotal float64
	for i, sc := range top {
		w := 1.0 - float64(i)*0.1
		weightedSum += sc * w
		weightTotal += w
	}
	return round1(weightedSum / weightTotal)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
