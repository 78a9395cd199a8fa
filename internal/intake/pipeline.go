package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/semptify/backend/internal/core"
	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/extract"
	"github.com/semptify/backend/internal/laws"
	"github.com/semptify/backend/internal/vault"
)

// extractionThreshold gates stage 3 on classifier confidence.
const extractionThreshold = 0.5

// Options configures a Pipeline.
type Options struct {
	ClassifierTimeout time.Duration // default 30s
	Logger            *slog.Logger
	Now               func() time.Time
}

// Pipeline runs the intake stages: register (through the vault gate),
// classify, extract dated events, cross-reference laws, and feed the
// composed analysis to the context loop via the bus. Every stage is
// failure-isolated: a classifier outage still yields a registered,
// retrievable document.
type Pipeline struct {
	vault      *vault.Engine
	classifier Classifier
	extractor  *extract.Extractor
	laws       *laws.Engine
	bus        *events.Bus
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline wires the intake stages together.
func NewPipeline(v *vault.Engine, c Classifier, x *extract.Extractor, l *laws.Engine, bus *events.Bus, opts Options) *Pipeline {
	if opts.ClassifierTimeout <= 0 {
		opts.ClassifierTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		vault:      v,
		classifier: c,
		extractor:  x,
		laws:       l,
		bus:        bus,
		opts:       opts,
		logger:     logger.With("component", "intake"),
		now:        now,
	}
}

// Result is the composed outcome of one ingestion.
type Result struct {
	Document  vault.RegisteredDocument `json:"document"`
	Duplicate bool                     `json:"duplicate"`
	Analysis  Analysis                 `json:"analysis"`
	Extracted []core.DatedItem         `json:"extracted,omitempty"`
	LawIDs    []string                 `json:"law_ids,omitempty"`
}

// Ingest runs the full pipeline for one upload. A duplicate upload
// returns the existing document immediately: the duplicate custody entry
// is recorded by the registry and no further events fire.
func (p *Pipeline) Ingest(ctx context.Context, actor vault.Actor, ownerID string, content []byte, filename, mime string) (Result, error) {
	// Stage 1: register through the vault gate (emits document_added).
	stored, err := p.vault.StoreDocument(ctx, actor, ownerID, content, filename, "", mime)
	if err != nil {
		return Result{}, err
	}
	if stored.Duplicate {
		p.logger.Info("duplicate upload detected",
			"doc_id", stored.Document.DocID, "user_id", ownerID)
		return Result{Document: stored.Document, Duplicate: true}, nil
	}
	doc := stored.Document

	// Stage 2: classify. Failures degrade to unknown and are flagged in
	// the custody log; the pipeline continues.
	text := string(content)
	analysis := p.classify(ctx, doc, text, filename, actor.ID)

	ready := analysis.Confidence >= extractionThreshold
	p.bus.Emit(events.DocumentClassified, ownerID, "intake",
		events.DocumentClassifiedPayload{
			DocumentID:         doc.DocID,
			DocType:            analysis.DocType,
			Confidence:         analysis.Confidence,
			Summary:            analysis.Summary,
			ReadyForExtraction: ready,
		})

	// Stage 3: extract dated events.
	var extracted []core.DatedItem
	if ready {
		extracted = p.extractor.Extract(text, analysis.DocType)
		if len(extracted) > 0 {
			hasDeadlines := false
			for _, item := range extracted {
				if item.IsDeadline {
					hasDeadlines = true
					break
				}
			}
			p.bus.Emit(events.EventsExtracted, ownerID, "intake",
				events.EventsExtractedPayload{
					DocumentID:   doc.DocID,
					DocType:      analysis.DocType,
					Count:        len(extracted),
					Events:       extracted,
					HasDeadlines: hasDeadlines,
				})
		}
		p.vault.Registry().AppendCustody(doc.DocID, "events_extracted", "system",
			map[string]interface{}{"count": len(extracted)})
	}

	// Stage 4: cross-reference laws.
	var lawIDs []string
	for _, match := range p.laws.MatchDocument(text, analysis.DocType, p.now()) {
		lawIDs = append(lawIDs, match.Law.ID)
		p.bus.Emit(events.LawMatched, ownerID, "intake",
			events.LawMatchedPayload{
				LawID:           match.Law.ID,
				DocumentID:      doc.DocID,
				Relevance:       match.Relevance,
				MatchedKeywords: match.MatchedKeywords,
			})
	}

	// Stage 5: feed the composed analysis to the context loop.
	p.bus.Emit(events.DocumentAnalyzed, ownerID, "intake",
		events.DocumentAnalyzedPayload{
			DocumentID:     doc.DocID,
			DocType:        analysis.DocType,
			Issues:         issuesFrom(analysis, doc.DocID, p.now()),
			Deadlines:      deadlinesFrom(extracted, doc.DocID),
			ApplicableLaws: lawIDs,
		})

	final, _ := p.vault.Registry().Get(doc.DocID)
	return Result{
		Document:  final,
		Analysis:  analysis,
		Extracted: extracted,
		LawIDs:    lawIDs,
	}, nil
}

func (p *Pipeline) classify(ctx context.Context, doc vault.RegisteredDocument, text, filename, actorID string) Analysis {
	cctx, cancel := context.WithTimeout(ctx, p.opts.ClassifierTimeout)
	defer cancel()

	type outcome struct {
		analysis Analysis
		err      error
	}
	ch := make(chan outcome, 1)
	go func() {
		a, err := p.classifier.AnalyzeDocument(cctx, text, filename, "")
		ch <- outcome{a, err}
	}()

	var result outcome
	select {
	case result = <-ch:
	case <-cctx.Done():
		result = outcome{err: cctx.Err()}
	}

	if result.err != nil {
		p.logger.Warn("classifier failed, continuing as unknown",
			"doc_id", doc.DocID, "error", result.err)
		p.vault.Registry().AppendCustody(doc.DocID, "classifier_failed", "system",
			map[string]interface{}{"error": result.err.Error()})
		return Analysis{DocType: "unknown", Confidence: 0}
	}

	p.vault.Registry().SetDocType(doc.DocID, result.analysis.DocType, actorID)
	p.vault.Registry().AppendCustody(doc.DocID, "classified", "system",
		map[string]interface{}{
			"doc_type":   result.analysis.DocType,
			"confidence": result.analysis.Confidence,
		})
	return result.analysis
}

func issuesFrom(a Analysis, docID string, now time.Time) []core.Issue {
	var out []core.Issue
	for _, issueType := range a.Issues {
		out = append(out, core.Issue{
			Type:         issueType,
			Description:  "Detected in " + a.DocType + " document",
			DetectedAt:   now,
			EvidenceRefs: []string{docID},
		})
	}
	return out
}

func deadlinesFrom(items []core.DatedItem, docID string) []core.Deadline {
	var out []core.Deadline
	for _, item := range items {
		if !item.IsDeadline {
			continue
		}
		out = append(out, core.Deadline{
			Type:             item.EventType,
			Date:             item.Date,
			Description:      item.Title,
			LinkedDocumentID: docID,
		})
	}
	return out
}
