package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/extract"
	"github.com/semptify/backend/internal/laws"
	"github.com/semptify/backend/internal/storage"
	"github.com/semptify/backend/internal/vault"
)

// fakeProvider keeps uploads in memory.
type fakeProvider struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (p *fakeProvider) Name() string                     { return "fake" }
func (p *fakeProvider) IsConnected(context.Context) bool { return true }
func (p *fakeProvider) CreateFolder(context.Context, string) (bool, error) {
	return true, nil
}

func (p *fakeProvider) UploadFile(_ context.Context, content []byte, destPath, filename, _ string) (storage.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.files == nil {
		p.files = make(map[string][]byte)
	}
	path := strings.Trim(destPath, "/") + "/" + filename
	p.files[path] = content
	return storage.File{ID: path, Path: path, Name: filename, Size: int64(len(content))}, nil
}

func (p *fakeProvider) DownloadFile(_ context.Context, path string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (p *fakeProvider) DeleteFile(context.Context, string) (bool, error) { return true, nil }
func (p *fakeProvider) ListFiles(context.Context, string, bool) ([]storage.File, error) {
	return nil, nil
}
func (p *fakeProvider) FileExists(context.Context, string) (bool, error) { return false, nil }

type failingClassifier struct{}

func (failingClassifier) AnalyzeDocument(context.Context, string, string, string) (Analysis, error) {
	return Analysis{}, errors.New("model backend down")
}

func newTestPipeline(t *testing.T, c Classifier) (*Pipeline, *events.Bus, *vault.Engine) {
	t.Helper()
	bus := events.NewBus(events.Options{})
	audit, err := vault.NewAuditLog(t.TempDir(), nil)
	require.NoError(t, err)
	engine := vault.NewEngine(vault.NewRegistry(), audit, bus, &fakeProvider{}, nil, nil)
	if c == nil {
		c = NewKeywordClassifier()
	}
	p := NewPipeline(engine, c, extract.New(), laws.NewEngine(), bus, Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bus.Close(ctx)
		audit.Close()
	})
	return p, bus, engine
}

// collector records bus events by type.
type collector struct {
	mu   sync.Mutex
	seen map[events.Type][]*events.Event
}

func collect(bus *events.Bus, types ...events.Type) *collector {
	c := &collector{seen: make(map[events.Type][]*events.Event)}
	for _, typ := range types {
		typ := typ
		bus.Subscribe(typ, func(_ context.Context, e *events.Event) error {
			c.mu.Lock()
			c.seen[typ] = append(c.seen[typ], e)
			c.mu.Unlock()
			return nil
		})
	}
	return c
}

func (c *collector) count(typ events.Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen[typ])
}

func (c *collector) first(typ events.Type) *events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seen[typ]) == 0 {
		return nil
	}
	return c.seen[typ][0]
}

const evictionText = `NOTICE TO QUIT

You are hereby notified to quit the premises. You must vacate by 06/15/2025.
This notice was served on 05/20/2025. Failure to vacate will result in
eviction proceedings and an unlawful detainer action.`

func TestIngestFullPipeline(t *testing.T) {
	p, bus, _ := newTestPipeline(t, nil)
	c := collect(bus, events.DocumentAdded, events.DocumentClassified,
		events.EventsExtracted, events.LawMatched, events.DocumentAnalyzed)

	actor := vault.Actor{ID: "u1", Role: vault.RoleUser}
	result, err := p.Ingest(context.Background(), actor, "u1", []byte(evictionText), "notice.txt", "text/plain")
	require.NoError(t, err)
	require.False(t, result.Duplicate)

	// Both eviction profiles fire; the one with the most keyword hits wins.
	assert.Equal(t, "eviction_notice", result.Analysis.DocType)
	assert.GreaterOrEqual(t, result.Analysis.Confidence, 0.5)
	assert.NotEmpty(t, result.Extracted, "dated events extracted")
	assert.Contains(t, result.LawIDs, "eviction_notice_general")

	require.Eventually(t, func() bool {
		return c.count(events.DocumentAnalyzed) == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, c.count(events.DocumentAdded))
	assert.Equal(t, 1, c.count(events.DocumentClassified))
	assert.Equal(t, 1, c.count(events.EventsExtracted))
	assert.GreaterOrEqual(t, c.count(events.LawMatched), 1)

	classified := c.first(events.DocumentClassified).Payload.(events.DocumentClassifiedPayload)
	assert.True(t, classified.ReadyForExtraction)

	analyzed := c.first(events.DocumentAnalyzed).Payload.(events.DocumentAnalyzedPayload)
	assert.NotEmpty(t, analyzed.Issues, "eviction_notice implies eviction_threat")
	assert.NotEmpty(t, analyzed.Deadlines, "vacate-by date becomes a deadline")
}

func TestIngestDuplicateSkipsDownstream(t *testing.T) {
	p, bus, _ := newTestPipeline(t, nil)
	c := collect(bus, events.DocumentAdded, events.DocumentAnalyzed)

	actor := vault.Actor{ID: "u1", Role: vault.RoleUser}
	first, err := p.Ingest(context.Background(), actor, "u1", []byte(evictionText), "n.txt", "text/plain")
	require.NoError(t, err)

	second, err := p.Ingest(context.Background(), actor, "u1", []byte(evictionText), "n.txt", "text/plain")
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	assert.Equal(t, first.Document.DocID, second.Document.DocID)

	custody := second.Document.CustodyLog
	assert.Equal(t, "duplicate_upload", custody[len(custody)-1].Action)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, c.count(events.DocumentAdded), "no document_added on duplicate")
	assert.Equal(t, 1, c.count(events.DocumentAnalyzed), "pipeline stops at the duplicate")
}

func TestIngestClassifierFailureDegrades(t *testing.T) {
	p, bus, engine := newTestPipeline(t, failingClassifier{})
	c := collect(bus, events.DocumentClassified, events.DocumentAnalyzed)

	actor := vault.Actor{ID: "u1", Role: vault.RoleUser}
	result, err := p.Ingest(context.Background(), actor, "u1", []byte("some text 06/15/2025"), "f.txt", "text/plain")
	require.NoError(t, err, "classifier outage is not fatal")
	assert.Equal(t, "unknown", result.Analysis.DocType)
	assert.Zero(t, result.Analysis.Confidence)

	doc, ok := engine.Registry().Get(result.Document.DocID)
	require.True(t, ok)
	flagged := false
	for _, rec := range doc.CustodyLog {
		if rec.Action == "classifier_failed" {
			flagged = true
		}
	}
	assert.True(t, flagged, "failure recorded in custody log")

	require.Eventually(t, func() bool {
		return c.count(events.DocumentAnalyzed) == 1
	}, 3*time.Second, 10*time.Millisecond)
	classified := c.first(events.DocumentClassified).Payload.(events.DocumentClassifiedPayload)
	assert.False(t, classified.ReadyForExtraction, "no extraction below the confidence bar")
}

func TestKeywordClassifierEmptyText(t *testing.T) {
	c := NewKeywordClassifier()
	a, err := c.AnalyzeDocument(context.Background(), "", "f.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "unknown", a.DocType)
	assert.Zero(t, a.Confidence)
}

func TestKeywordClassifierRecognizesLease(t *testing.T) {
	c := NewKeywordClassifier()
	a, err := c.AnalyzeDocument(context.Background(),
		"This Lease Agreement is made between landlord and tenant. The term of tenancy begins...",
		"lease.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, "lease", a.DocType)
	assert.GreaterOrEqual(t, a.Confidence, 0.5)
}
