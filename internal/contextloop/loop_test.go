package contextloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semptify/backend/internal/core"
	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/intensity"
)

func newTestLoop(t *testing.T) (*events.Bus, *Loop) {
	t.Helper()
	bus := events.NewBus(events.Options{})
	loop := NewLoop(bus, intensity.NewTracker(100), Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = loop.Close(ctx)
		_ = bus.Close(ctx)
	})
	return bus, loop
}

func TestEvictionNoticeRaisesPhase(t *testing.T) {
	_, loop := newTestLoop(t)

	_, err := loop.EmitEvent(events.DocumentUploaded, "u1", "test",
		events.DocumentUploadedPayload{DocumentID: "d1", DocType: "eviction_notice", Filename: "notice.pdf"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return loop.GetContext("u1").Phase == core.PhaseEviction
	}, 3*time.Second, 10*time.Millisecond, "phase should reach eviction")

	snap := loop.GetContext("u1")
	assert.Contains(t, snap.DocumentTypes, "eviction_notice")
	assert.GreaterOrEqual(t, snap.IntensityScore, 80.0)

	state := loop.GetState("u1")
	var actionKeys []string
	for _, a := range state.NextActions {
		actionKeys = append(actionKeys, a.Action)
	}
	assert.Contains(t, actionKeys, "seek_legal_help")
}

func TestReducerObservesPublishOrder(t *testing.T) {
	_, loop := newTestLoop(t)

	for i := 0; i < 20; i++ {
		_, err := loop.EmitEvent(events.ActionTaken, "u1", "test",
			events.ActionTakenPayload{Action: "step", Details: map[string]interface{}{"i": i}})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(loop.GetContext("u1").ActionsTaken) == 20
	}, 3*time.Second, 10*time.Millisecond)

	actions := loop.GetContext("u1").ActionsTaken
	for i, a := range actions {
		assert.Equal(t, i, a.Details["i"], "reducer order must match publish order")
	}
}

func TestDeadlinesStaySorted(t *testing.T) {
	_, loop := newTestLoop(t)
	base := time.Now().UTC().Add(90 * 24 * time.Hour)

	dates := []time.Time{
		base.Add(72 * time.Hour),
		base,
		base.Add(24 * time.Hour),
	}
	for i, d := range dates {
		_, err := loop.EmitEvent(events.DeadlineApproaching, "u1", "test",
			events.DeadlineApproachingPayload{Deadline: core.Deadline{
				ID: string(rune('a' + i)), Type: "rent_dispute", Date: d,
			}})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(loop.GetContext("u1").Deadlines) == 3
	}, 3*time.Second, 10*time.Millisecond)

	dls := loop.GetContext("u1").Deadlines
	for i := 1; i < len(dls); i++ {
		assert.False(t, dls[i].Date.Before(dls[i-1].Date), "deadlines must be ascending")
	}
}

func TestDuplicateDeadlineNotInserted(t *testing.T) {
	_, loop := newTestLoop(t)
	date := time.Now().UTC().Add(60 * 24 * time.Hour)
	dl := core.Deadline{ID: "same", Type: "rent_dispute", Date: date}

	for i := 0; i < 3; i++ {
		_, err := loop.EmitEvent(events.DeadlineApproaching, "u1", "test",
			events.DeadlineApproachingPayload{Deadline: dl})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(loop.GetContext("u1").Deadlines) == 1
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, loop.GetContext("u1").Deadlines, 1)
}

func TestIssueUniquenessAndRights(t *testing.T) {
	_, loop := newTestLoop(t)

	for i := 0; i < 3; i++ {
		_, err := loop.EmitEvent(events.IssueDetected, "u1", "test",
			events.IssueDetectedPayload{Issue: core.Issue{Type: "habitability_issue"}})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(loop.GetContext("u1").ActiveIssues) == 1
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	snap := loop.GetContext("u1")
	assert.Len(t, snap.ActiveIssues, 1, "issue type appears at most once")
	assert.Contains(t, snap.RightsAtRisk, "Right to habitable housing")
}

func TestStickyEvictionUntilIssueResolved(t *testing.T) {
	_, loop := newTestLoop(t)

	_, err := loop.EmitEvent(events.IssueDetected, "u1", "test",
		events.IssueDetectedPayload{Issue: core.Issue{Type: "eviction_threat"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return loop.GetContext("u1").Phase == core.PhaseEviction
	}, 3*time.Second, 10*time.Millisecond)

	// Unrelated events do not downgrade the phase, even though the rule
	// table alone would not keep it at eviction if the issue were gone.
	_, err = loop.EmitEvent(events.ActionTaken, "u1", "test",
		events.ActionTakenPayload{Action: "called_hotline"})
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, core.PhaseEviction, loop.GetContext("u1").Phase)

	// Resolving the severe issue releases the phase.
	_, err = loop.EmitEvent(events.IssueResolved, "u1", "test",
		events.IssueResolvedPayload{IssueType: "eviction_threat"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return loop.GetContext("u1").Phase != core.PhaseEviction
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPhaseChangedEventPublished(t *testing.T) {
	bus, loop := newTestLoop(t)

	received := make(chan *events.Event, 8)
	bus.Subscribe(events.PhaseChanged, func(_ context.Context, e *events.Event) error {
		received <- e
		return nil
	})

	_, err := loop.EmitEvent(events.IssueDetected, "u1", "test",
		events.IssueDetectedPayload{Issue: core.Issue{Type: "eviction_threat"}})
	require.NoError(t, err)

	select {
	case e := <-received:
		p := e.Payload.(events.PhaseChangedPayload)
		assert.Equal(t, core.PhaseEviction, p.To)
	case <-time.After(3 * time.Second):
		t.Fatal("phase_changed never published")
	}
}

func TestDeadlineApproachingEmittedAndDebounced(t *testing.T) {
	bus, loop := newTestLoop(t)

	warned := make(chan *events.Event, 16)
	bus.Subscribe(events.DeadlineApproaching, func(_ context.Context, e *events.Event) error {
		if e.Source == "context_loop" {
			warned <- e
		}
		return nil
	})

	date := time.Now().UTC().Add(3 * 24 * time.Hour)
	_, err := loop.EmitEvent(events.CaseInfoUpdated, "u1", "test",
		events.CaseInfoUpdatedPayload{Updates: []string{"hearing_date"}, HearingDate: &date})
	require.NoError(t, err)

	select {
	case e := <-warned:
		p := e.Payload.(events.DeadlineApproachingPayload)
		assert.Equal(t, 2, p.DaysRemaining) // 3 days minus rounding down
	case <-time.After(3 * time.Second):
		t.Fatal("deadline_approaching never emitted")
	}

	// More events inside the debounce window must not re-warn.
	for i := 0; i < 5; i++ {
		_, err := loop.EmitEvent(events.ActionTaken, "u1", "test",
			events.ActionTakenPayload{Action: "noop"})
		require.NoError(t, err)
	}
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, warned, "same deadline warned twice within 24h")
}

func TestGetStateUnknownUserIsEmpty(t *testing.T) {
	_, loop := newTestLoop(t)

	state := loop.GetState("stranger")
	assert.Equal(t, core.PhaseActive, state.Summary.Phase)
	assert.Zero(t, state.Intensity.Current)
	assert.Zero(t, state.Summary.Documents)
}

func TestIntensityReportBreakdown(t *testing.T) {
	_, loop := newTestLoop(t)

	_, err := loop.EmitEvent(events.IssueDetected, "u1", "test",
		events.IssueDetectedPayload{Issue: core.Issue{Type: "harassment"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(loop.GetContext("u1").ActiveIssues) == 1
	}, 3*time.Second, 10*time.Millisecond)

	report := loop.GetIntensityReport("u1")
	require.Len(t, report.Breakdown, 1)
	assert.Equal(t, "harassment", report.Breakdown[0].Item)
	assert.NotEmpty(t, report.Breakdown[0].Factors)
	assert.Equal(t, report.OverallIntensity, report.Trend.Current)
}
