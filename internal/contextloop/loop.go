package contextloop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/intensity"
	"github.com/semptify/backend/internal/metrics"
)

// spikeThreshold is the aggregate jump that publishes intensity_spike.
const spikeThreshold = 20.0

// deadlineWarnWindow is how far ahead deadline_approaching looks.
const deadlineWarnWindow = 7 * 24 * time.Hour

// deadlineWarnDebounce caps how often the same deadline is re-announced.
const deadlineWarnDebounce = 24 * time.Hour

// subscribedTypes are the event types that feed user mailboxes.
var subscribedTypes = []events.Type{
	events.DocumentAdded, events.DocumentProcessed, events.DocumentClassified,
	events.EventsExtracted, events.CaseInfoUpdated, events.ViolationFound,
	events.TimelineUpdated, events.DocumentUploaded, events.DocumentAnalyzed,
	events.IssueDetected, events.IssueResolved, events.DeadlineApproaching,
	events.DeadlinePassed, events.ActionTaken, events.PhaseChanged,
	events.LawMatched, events.UserDismissed, events.PredictionMade,
	events.IntensitySpike, events.UIRefreshNeeded,
}

// Options configures a Loop.
type Options struct {
	MailboxSize int           // per-user mailbox capacity (default 1000)
	IdleTTL     time.Duration // GC contexts idle longer than this (default 24h)
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time // clock, for tests
}

// Loop serializes every event that affects a user's state through that
// user's mailbox worker and computes the updated UserContext. One logical
// writer per user_id; everyone else reads snapshots.
type Loop struct {
	bus     *events.Bus
	tracker *intensity.Tracker
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	workers map[string]*userWorker
	closed  atomic.Bool

	unsubs   []func()
	wg       sync.WaitGroup
	janitorC chan struct{}
}

type userWorker struct {
	userID     string
	mailbox    chan *events.Event
	mu         sync.RWMutex // guards uc for snapshot reads
	uc         *UserContext
	lastWarned map[string]time.Time // deadline debounce
}

// NewLoop creates a Loop and subscribes it to the bus. Call Close to
// detach and drain.
func NewLoop(bus *events.Bus, tracker *intensity.Tracker, opts Options) *Loop {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 1000
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	l := &Loop{
		bus:      bus,
		tracker:  tracker,
		opts:     opts,
		logger:   logger.With("component", "context_loop"),
		now:      now,
		workers:  make(map[string]*userWorker),
		janitorC: make(chan struct{}),
	}

	for _, typ := range subscribedTypes {
		l.unsubs = append(l.unsubs, bus.Subscribe(typ, l.onEvent))
	}

	l.wg.Add(1)
	go l.janitor()
	return l
}

func (l *Loop) onEvent(_ context.Context, e *events.Event) error {
	if e.UserID == "" {
		return nil // broadcast events do not touch per-user state
	}
	l.dispatch(e)
	return nil
}

// dispatch enqueues the event on the user's mailbox, dropping with a
// metric when the mailbox is full. It never blocks the bus worker.
func (l *Loop) dispatch(e *events.Event) {
	l.mu.RLock()
	if l.closed.Load() {
		l.mu.RUnlock()
		return
	}
	w := l.workers[e.UserID]
	if w == nil {
		l.mu.RUnlock()
		w = l.getOrCreateWorker(e.UserID)
		l.mu.RLock()
		if l.closed.Load() {
			l.mu.RUnlock()
			return
		}
	}
	select {
	case w.mailbox <- e:
	default:
		if l.opts.Metrics != nil {
			l.opts.Metrics.EventsDropped.WithLabelValues("mailbox_full").Inc()
			l.opts.Metrics.MailboxDropped.WithLabelValues(e.UserID).Inc()
		}
		l.logger.Warn("mailbox full, dropping event", "user_id", e.UserID, "type", e.Type)
	}
	l.mu.RUnlock()
}

func (l *Loop) getOrCreateWorker(userID string) *userWorker {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.workers[userID]; ok {
		return w
	}
	w := &userWorker{
		userID:     userID,
		mailbox:    make(chan *events.Event, l.opts.MailboxSize),
		uc:         newUserContext(userID, l.now()),
		lastWarned: make(map[string]time.Time),
	}
	l.workers[userID] = w
	l.wg.Add(1)
	go l.runWorker(w)
	return w
}

func (l *Loop) runWorker(w *userWorker) {
	defer l.wg.Done()
	for e := range w.mailbox {
		l.process(w, e)
	}
}

// process runs the reducer and the post-event pass: activity stamps,
// event ring, aggregate intensity, phase, predictions, deadline warnings.
// Follow-up events are published after the context lock is released.
func (l *Loop) process(w *userWorker, e *events.Event) {
	now := l.now()

	w.mu.Lock()
	if err := reduce(w.uc, e); err != nil {
		w.mu.Unlock()
		if l.opts.Metrics != nil {
			l.opts.Metrics.EventsReduced.WithLabelValues(string(e.Type), "reducer_error").Inc()
		}
		l.logger.Error("reducer failed, context unchanged",
			"user_id", w.userID, "type", e.Type, "error", err)
		return
	}

	w.uc.LastActivity = now
	w.uc.UpdatedAt = now
	w.uc.Events.append(e)

	prevScore := w.uc.IntensityScore
	aggregate := intensity.Aggregate(intensity.Snapshot{
		Phase:        w.uc.Phase,
		Issues:       w.uc.ActiveIssues,
		Deadlines:    w.uc.Deadlines,
		RightsAtRisk: len(w.uc.RightsAtRisk),
		Now:          now,
	})
	w.uc.IntensityScore = aggregate
	l.tracker.Record(w.userID, aggregate, now)
	if l.opts.Metrics != nil {
		l.opts.Metrics.IntensityScore.WithLabelValues(w.userID).Set(aggregate)
		l.opts.Metrics.EventsReduced.WithLabelValues(string(e.Type), "ok").Inc()
	}

	from, to, phaseChanged := updatePhase(w.uc, e.Type)
	w.uc.PredictedNeeds = generatePredictions(w.uc, now)
	warnings := l.collectDeadlineWarnings(w, now)
	w.mu.Unlock()

	if phaseChanged {
		l.bus.Emit(events.PhaseChanged, w.userID, "context_loop",
			events.PhaseChangedPayload{From: from, To: to})
	}
	if aggregate-prevScore >= spikeThreshold {
		l.bus.Emit(events.IntensitySpike, w.userID, "context_loop",
			events.IntensitySpikePayload{Previous: prevScore, Current: aggregate})
	}
	for _, warn := range warnings {
		l.bus.Emit(events.DeadlineApproaching, w.userID, "context_loop", warn)
	}
}

// collectDeadlineWarnings returns deadline_approaching payloads for every
// deadline inside the warning window, debounced to once per 24h each.
// Caller holds w.mu.
func (l *Loop) collectDeadlineWarnings(w *userWorker, now time.Time) []events.DeadlineApproachingPayload {
	var out []events.DeadlineApproachingPayload
	for _, dl := range w.uc.Deadlines {
		if dl.Date.IsZero() {
			continue
		}
		until := dl.Date.Sub(now)
		if until < 0 || until > deadlineWarnWindow {
			continue
		}
		key := deadlineKey(dl)
		if last, ok := w.lastWarned[key]; ok && now.Sub(last) < deadlineWarnDebounce {
			continue
		}
		w.lastWarned[key] = now
		out = append(out, events.DeadlineApproachingPayload{
			Deadline:      dl,
			DaysRemaining: int(until.Hours() / 24),
		})
	}
	return out
}

// EmitEvent scores and publishes an event on the bus; the loop's own
// subscription will route it into the user's mailbox, so reducer order
// equals publish order.
func (l *Loop) EmitEvent(typ events.Type, userID, source string, payload events.Payload) (*events.Event, error) {
	snap := l.GetContext(userID)
	key, deadline := scoringKey(typ, payload)
	r := intensity.Score(intensity.Input{
		EventKey:     key,
		Phase:        snap.Phase,
		ActiveIssues: len(snap.ActiveIssues),
		RightsAtRisk: len(snap.RightsAtRisk),
		Deadline:     deadline,
		Now:          l.now(),
	})
	return l.bus.PublishScored(typ, userID, source, payload, r.Score, r.Severity)
}

// scoringKey picks the intensity key (and deadline, when the payload
// carries one) for a to-be-published event.
func scoringKey(typ events.Type, payload events.Payload) (string, *time.Time) {
	switch p := payload.(type) {
	case events.DocumentUploadedPayload:
		if p.DocType != "" {
			return p.DocType, p.Deadline
		}
	case events.IssueDetectedPayload:
		if p.Issue.Type != "" {
			return p.Issue.Type, nil
		}
	case events.ViolationFoundPayload:
		if p.IssueType != "" {
			return p.IssueType, nil
		}
	case events.DeadlineApproachingPayload:
		date := p.Deadline.Date
		key := p.Deadline.Type
		if key == "" {
			key = "deadline"
		}
		return key, &date
	case events.DocumentAddedPayload:
		if p.ResourceType != "" {
			return p.ResourceType, nil
		}
	}
	return string(typ), nil
}

// GetContext returns a deep-copied snapshot; unknown users get an empty
// context without registering a worker.
func (l *Loop) GetContext(userID string) Snapshot {
	l.mu.RLock()
	w := l.workers[userID]
	l.mu.RUnlock()
	if w == nil {
		return newUserContext(userID, l.now()).snapshot(false)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.uc.snapshot(false)
}

func (l *Loop) snapshotWithEvents(userID string) Snapshot {
	l.mu.RLock()
	w := l.workers[userID]
	l.mu.RUnlock()
	if w == nil {
		return newUserContext(userID, l.now()).snapshot(false)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.uc.snapshot(true)
}

// janitor drops contexts idle past the TTL. Trend history stays in the
// tracker window; a returning user starts from a fresh context.
func (l *Loop) janitor() {
	defer l.wg.Done()
	interval := l.opts.IdleTTL / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.janitorC:
			return
		}
	}
}

func (l *Loop) evictIdle() {
	cutoff := l.now().Add(-l.opts.IdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, w := range l.workers {
		w.mu.RLock()
		idle := w.uc.LastActivity.Before(cutoff)
		w.mu.RUnlock()
		if idle && len(w.mailbox) == 0 {
			close(w.mailbox)
			delete(l.workers, userID)
			l.logger.Info("evicted idle context", "user_id", userID)
		}
	}
}

// Close detaches from the bus and drains pending mailboxes up to the
// context deadline, then drops whatever is left.
func (l *Loop) Close(ctx context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	for _, unsub := range l.unsubs {
		unsub()
	}
	close(l.janitorC)

	l.mu.Lock()
	for _, w := range l.workers {
		close(w.mailbox)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.logger.Warn("shutdown deadline reached with mailboxes pending")
		return ctx.Err()
	}
}
