// Package vault is the single choke-point for document access: every
// read, write, list, share and delete goes through the Engine, which
// enforces the role x resource-class matrix, serializes writes per
// resource, appends the audit trail and emits access events.
package vault

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one line of the append-only audit log. Each line is
// self-contained JSON.
type AuditEntry struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	ActorID       string                 `json:"actor_id"`
	Action        string                 `json:"action"`
	ResourceID    string                 `json:"resource_id"`
	ResourceClass string                 `json:"resource_class"`
	Decision      string                 `json:"decision"` // allowed, denied
	Reason        string                 `json:"reason,omitempty"`
	IP            string                 `json:"ip,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// AuditLog appends entries to one JSON-lines file per UTC day
// (audit_YYYY-MM-DD.jsonl). A single writer goroutine owns the file
// handle; queries re-open files and never block the writer.
type AuditLog struct {
	dir    string
	ch     chan AuditEntry
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex // guards current file rotation state
	file    *os.File
	fileDay string

	mirror func(AuditEntry) // optional secondary sink (Postgres)
}

// SetMirror installs a best-effort secondary sink invoked by the writer
// goroutine after the file append. Must be called before traffic starts.
func (a *AuditLog) SetMirror(fn func(AuditEntry)) { a.mirror = fn }

// NewAuditLog creates the log directory and starts the writer.
func NewAuditLog(dir string, logger *slog.Logger) (*AuditLog, error) {
	if dir == "" {
		dir = filepath.Join("logs", "audit")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &AuditLog{
		dir:    dir,
		ch:     make(chan AuditEntry, 1024),
		done:   make(chan struct{}),
		logger: logger.With("component", "audit_log"),
	}
	go a.writer()
	return a, nil
}

// Append queues an entry for the writer. Missing id/timestamp are filled
// in; append order within a day file equals call order.
func (a *AuditLog) Append(entry AuditEntry) AuditEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	a.ch <- entry
	return entry
}

func (a *AuditLog) writer() {
	defer close(a.done)
	for entry := range a.ch {
		if err := a.write(entry); err != nil {
			a.logger.Error("audit write failed", "error", err)
		}
		if a.mirror != nil {
			a.mirror(entry)
		}
	}
	a.mu.Lock()
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
	a.mu.Unlock()
}

func (a *AuditLog) write(entry AuditEntry) error {
	day := entry.Timestamp.Format("2006-01-02")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil || a.fileDay != day {
		if a.file != nil {
			_ = a.file.Close()
		}
		f, err := os.OpenFile(a.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		a.file = f
		a.fileDay = day
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = a.file.Write(append(line, '\n'))
	return err
}

func (a *AuditLog) path(day string) string {
	return filepath.Join(a.dir, fmt.Sprintf("audit_%s.jsonl", day))
}

// Flush blocks until everything queued so far is on disk. The trailing
// wait covers the entry the writer may have dequeued but not yet written;
// taking the rotation lock then orders Flush after that write.
func (a *AuditLog) Flush() {
	for len(a.ch) > 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)
	a.mu.Lock()
	if a.file != nil {
		_ = a.file.Sync()
	}
	a.mu.Unlock()
}

// Close flushes and stops the writer.
func (a *AuditLog) Close() {
	close(a.ch)
	<-a.done
}

// AuditQuery filters a log read.
type AuditQuery struct {
	ActorID    string
	Action     string
	ResourceID string
	Decision   string
	Since      time.Time
	Limit      int
}

// Query scans the day files newest-first and returns matching entries.
// It re-opens files read-only, so it never contends with the writer.
func (a *AuditLog) Query(q AuditQuery) ([]AuditEntry, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	names, err := filepath.Glob(filepath.Join(a.dir, "audit_*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names))) // filename order = day order

	var results []AuditEntry
	for _, name := range names {
		if len(results) >= q.Limit {
			break
		}
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(name), "audit_"), ".jsonl")
		if !q.Since.IsZero() && day < q.Since.UTC().Format("2006-01-02") {
			continue
		}
		entries, err := a.readFile(name, q)
		if err != nil {
			a.logger.Warn("skipping unreadable audit file", "file", name, "error", err)
			continue
		}
		// Newest entries within a file are at the end.
		for i := len(entries) - 1; i >= 0 && len(results) < q.Limit; i-- {
			results = append(results, entries[i])
		}
	}
	return results, nil
}

func (a *AuditLog) readFile(name string, q AuditQuery) ([]AuditEntry, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // a torn final line must not hide prior entries
		}
		if q.ActorID != "" && entry.ActorID != q.ActorID {
			continue
		}
		if q.Action != "" && entry.Action != q.Action {
			continue
		}
		if q.ResourceID != "" && entry.ResourceID != q.ResourceID {
			continue
		}
		if q.Decision != "" && entry.Decision != q.Decision {
			continue
		}
		if !q.Since.IsZero() && entry.Timestamp.Before(q.Since) {
			continue
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}
