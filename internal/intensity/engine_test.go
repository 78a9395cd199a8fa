package intensity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/semptify/backend/internal/core"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBaseScores(t *testing.T) {
	cases := map[string]float64{
		"eviction_notice":    85,
		"notice_to_quit":     80,
		"court_summons":      90,
		"pay_or_quit":        75,
		"lease_violation":    60,
		"rent_increase":      45,
		"lease":              20,
		"rent_receipt":       15,
		"repair_request":     40,
		"photo_evidence":     20,
		"communication":      25,
		"eviction_threat":    85,
		"habitability_issue": 55,
		"illegal_lockout":    95,
		"harassment":         65,
		"retaliation":        70,
		"deposit_dispute":    50,
		"rent_dispute":       55,
		"repair_ignored":     45,
		"unknown":            30,
		"never_heard_of_it":  30, // falls back to unknown
	}
	for key, want := range cases {
		r := Score(Input{EventKey: key, Phase: core.PhaseActive, Now: testNow})
		assert.Equal(t, want, r.Score, "base score for %s", key)
	}
}

func TestDeadlineMultiplierBuckets(t *testing.T) {
	cases := []struct {
		days float64
		want float64
	}{
		{-10, 1.5}, // past due, however far past
		{-0.5, 1.5},
		{0.5, 1.4}, // today
		{1, 1.35},
		{3, 1.25},
		{7, 1.15},
		{14, 1.05},
		{30, 1.0}, // exactly 30 days uses 1.00, not 0.80
		{31, 0.8},
		{60, 0.8},
		{61, 0.6},
		{365, 0.6},
	}
	for _, tc := range cases {
		deadline := testNow.Add(time.Duration(tc.days * 24 * float64(time.Hour)))
		mult, _ := deadlineMultiplier(deadline, testNow)
		assert.Equal(t, tc.want, mult, "deadline %v days out", tc.days)
	}
}

func TestScoreClampsTo100(t *testing.T) {
	// court_summons (90) with a deadline 2 days out (x1.25) = 112.5,
	// clamped to 100 and critical.
	deadline := testNow.Add(2 * 24 * time.Hour)
	r := Score(Input{
		EventKey:     "court_summons",
		Phase:        core.PhaseActive,
		ActiveIssues: 1,
		Deadline:     &deadline,
		Now:          testNow,
	})
	assert.Equal(t, 100.0, r.Score)
	assert.Equal(t, core.SeverityCritical, r.Severity)
}

func TestScoreMultipliersCompound(t *testing.T) {
	// 55 * (1 + 3*0.10) * (1 + 2*0.15) * 1.2 = 55 * 1.3 * 1.3 * 1.2 = 111.54 -> 100
	r := Score(Input{
		EventKey:     "habitability_issue",
		Phase:        core.PhaseDispute,
		ActiveIssues: 3,
		RightsAtRisk: 2,
		Now:          testNow,
	})
	assert.Equal(t, 100.0, r.Score)

	// Single issue does not trigger the multiple-issues multiplier.
	r = Score(Input{
		EventKey:     "habitability_issue",
		Phase:        core.PhaseActive,
		ActiveIssues: 1,
		Now:          testNow,
	})
	assert.Equal(t, 55.0, r.Score)
}

func TestSeverityMapping(t *testing.T) {
	cases := []struct {
		score float64
		want  core.Severity
	}{
		{100, core.SeverityCritical},
		{80, core.SeverityCritical},
		{79.9, core.SeverityHigh},
		{60, core.SeverityHigh},
		{59, core.SeverityMedium},
		{40, core.SeverityMedium},
		{39, core.SeverityLow},
		{20, core.SeverityLow},
		{19, core.SeverityInfo},
		{0, core.SeverityInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SeverityFor(tc.score), "severity for %.1f", tc.score)
	}
}

func TestAggregateEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Aggregate(Snapshot{Phase: core.PhaseActive, Now: testNow}))
}

func TestAggregateWeightsTopFive(t *testing.T) {
	s := Snapshot{
		Phase: core.PhaseActive,
		Issues: []core.Issue{
			{Type: "harassment"}, // 65 base, but multipliers apply
		},
		Now: testNow,
	}
	// Single issue: 65 * 1.15 (one right? no rights) -> just 65.
	got := Aggregate(s)
	assert.Equal(t, 65.0, got)

	// Two issues compound via the multiple-issues multiplier.
	s.Issues = append(s.Issues, core.Issue{Type: "retaliation"})
	got = Aggregate(s)
	// each: base * (1 + 2*0.1) = harassment 78, retaliation 84
	// weighted: (84*1.0 + 78*0.9) / 1.9 = 81.2 (rounded)
	assert.InDelta(t, 81.2, got, 0.1)
}

func TestAggregateScoresDeadlines(t *testing.T) {
	date := testNow.Add(2 * 24 * time.Hour)
	s := Snapshot{
		Phase:     core.PhaseActive,
		Deadlines: []core.Deadline{{Type: "court_summons", Date: date}},
		Now:       testNow,
	}
	// 90 * 1.25 = 112.5 -> clamped 100
	assert.Equal(t, 100.0, Aggregate(s))
}

func TestScoreBoundsInvariant(t *testing.T) {
	for _, key := range []string{"illegal_lockout", "rent_receipt", "unknown"} {
		for days := -30.0; days <= 90; days += 7 {
			deadline := testNow.Add(time.Duration(days * 24 * float64(time.Hour)))
			r := Score(Input{
				EventKey:     key,
				Phase:        core.PhaseEviction,
				ActiveIssues: 5,
				RightsAtRisk: 4,
				Deadline:     &deadline,
				Now:          testNow,
			})
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 100.0)
		}
	}
}
