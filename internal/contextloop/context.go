// Package contextloop implements the per-user state machine at the center
// of the runtime. Every event carrying a user_id is serialized through
// that user's mailbox worker, the single writer for the UserContext,
// which runs the reducer, rescores intensity, recomputes the phase and
// regenerates predictions before the next event is admitted.
package contextloop

import (
	"sort"
	"time"

	"github.com/semptify/backend/internal/core"
	"github.com/semptify/backend/internal/events"
)

// UserContext is everything the runtime knows about one user. It is owned
// by the user's mailbox worker; everyone else sees Snapshot copies.
type UserContext struct {
	UserID string

	Phase          core.Phase
	IntensityScore float64

	Documents     []core.DocumentDescriptor
	DocumentTypes map[string]bool

	ActiveIssues []core.Issue
	Deadlines    []core.Deadline // sorted ascending by date

	ApplicableLaws []string
	RightsAtRisk   map[string]bool

	Events       *eventRing // last 500 events
	ActionsTaken []core.ActionRecord

	PredictedNeeds []core.PredictedNeed

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActivity time.Time
}

func newUserContext(userID string, now time.Time) *UserContext {
	return &UserContext{
		UserID:        userID,
		Phase:         core.PhaseActive,
		DocumentTypes: make(map[string]bool),
		RightsAtRisk:  make(map[string]bool),
		Events:        newEventRing(contextEventLimit),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastActivity:  now,
	}
}

const contextEventLimit = 500

// hasIssue reports whether an issue of the given type is active.
func (uc *UserContext) hasIssue(issueType string) bool {
	for _, i := range uc.ActiveIssues {
		if i.Type == issueType {
			return true
		}
	}
	return false
}

// addDeadline inserts dl if no deadline with the same identity exists and
// re-sorts ascending by date.
func (uc *UserContext) addDeadline(dl core.Deadline) bool {
	key := deadlineKey(dl)
	for _, existing := range uc.Deadlines {
		if deadlineKey(existing) == key {
			return false
		}
	}
	uc.Deadlines = append(uc.Deadlines, dl)
	sort.SliceStable(uc.Deadlines, func(i, j int) bool {
		return uc.Deadlines[i].Date.Before(uc.Deadlines[j].Date)
	})
	return true
}

func deadlineKey(dl core.Deadline) string {
	if dl.ID != "" {
		return dl.ID
	}
	return dl.Type + "|" + dl.Date.UTC().Format(time.RFC3339)
}

// Snapshot is the read-only copy handed to consumers outside the worker.
type Snapshot struct {
	UserID         string                    `json:"user_id"`
	Phase          core.Phase                `json:"phase"`
	IntensityScore float64                   `json:"intensity_score"`
	Documents      []core.DocumentDescriptor `json:"documents"`
	DocumentTypes  []string                  `json:"document_types"`
	ActiveIssues   []core.Issue              `json:"active_issues"`
	Deadlines      []core.Deadline           `json:"deadlines"`
	ApplicableLaws []string                  `json:"applicable_laws"`
	RightsAtRisk   []string                  `json:"rights_at_risk"`
	RecentEvents   []*events.Event           `json:"recent_events,omitempty"`
	ActionsTaken   []core.ActionRecord       `json:"actions_taken"`
	PredictedNeeds []core.PredictedNeed      `json:"predicted_needs"`
	LastActivity   time.Time                 `json:"last_activity"`
}

// snapshot deep-copies the context. Called from inside the worker or with
// the owning lock held.
func (uc *UserContext) snapshot(includeEvents bool) Snapshot {
	s := Snapshot{
		UserID:         uc.UserID,
		Phase:          uc.Phase,
		IntensityScore: uc.IntensityScore,
		Documents:      append([]core.DocumentDescriptor(nil), uc.Documents...),
		DocumentTypes:  sortedKeys(uc.DocumentTypes),
		ActiveIssues:   append([]core.Issue(nil), uc.ActiveIssues...),
		Deadlines:      append([]core.Deadline(nil), uc.Deadlines...),
		ApplicableLaws: append([]string(nil), uc.ApplicableLaws...),
		RightsAtRisk:   sortedKeys(uc.RightsAtRisk),
		ActionsTaken:   append([]core.ActionRecord(nil), uc.ActionsTaken...),
		PredictedNeeds: append([]core.PredictedNeed(nil), uc.PredictedNeeds...),
		LastActivity:   uc.LastActivity,
	}
	if includeEvents {
		s.RecentEvents = uc.Events.newestFirst(50)
	}
	return s
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// eventRing is the bounded per-context history of recent events.
type eventRing struct {
	buf   []*events.Event
	head  int
	count int
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]*events.Event, capacity)}
}

func (r *eventRing) append(e *events.Event) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

func (r *eventRing) newestFirst(limit int) []*events.Event {
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]*events.Event, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, r.buf[(r.head+r.count-1-i)%len(r.buf)])
	}
	return out
}

func (r *eventRing) len() int { return r.count }
