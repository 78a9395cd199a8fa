package vault

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresAuditMirror copies audit entries into a Postgres table so
// operators can query the trail with SQL. The JSONL files remain the
// source of truth; the mirror is best-effort and a write failure never
// affects the decision path.
type PostgresAuditMirror struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAuditMirror connects with a lib/pq DSN and ensures the
// audit_entries table exists.
func NewPostgresAuditMirror(dsn string, logger *slog.Logger) (*PostgresAuditMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id             TEXT PRIMARY KEY,
    ts             TIMESTAMPTZ NOT NULL,
    actor_id       TEXT NOT NULL,
    action         TEXT NOT NULL,
    resource_id    TEXT NOT NULL,
    resource_class TEXT NOT NULL,
    decision       TEXT NOT NULL,
    reason         TEXT,
    ip             TEXT,
    user_agent     TEXT,
    details        JSONB
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure audit table: %w", err)
	}
	return &PostgresAuditMirror{db: db, logger: logger.With("component", "audit_pg")}, nil
}

// Mirror inserts one entry; failures are logged and swallowed.
func (m *PostgresAuditMirror) Mirror(entry AuditEntry) {
	var details []byte
	if entry.Details != nil {
		details, _ = json.Marshal(entry.Details)
	}
	_, err := m.db.Exec(
		`INSERT INTO audit_entries
		 (id, ts, actor_id, action, resource_id, resource_class, decision, reason, ip, user_agent, details)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Timestamp, entry.ActorID, entry.Action,
		entry.ResourceID, entry.ResourceClass, entry.Decision,
		nullable(entry.Reason), nullable(entry.IP), nullable(entry.UserAgent), details,
	)
	if err != nil {
		m.logger.Warn("audit mirror insert failed", "id", entry.ID, "error", err)
	}
}

// Close releases the connection pool.
func (m *PostgresAuditMirror) Close() error { return m.db.Close() }

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
