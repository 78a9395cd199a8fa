package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Document lifecycle status.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
	StatusDeleted  = "deleted"
)

// Integrity states, from content-hash comparison on read.
const (
	IntegrityVerified = "verified"
	IntegrityTampered = "tampered"
	IntegrityUnknown  = "unknown"
)

// Version is one entry in a document's append-only version history.
type Version struct {
	VersionNo   int       `json:"version_no"`
	ContentHash string    `json:"content_hash"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Reason      string    `json:"reason,omitempty"`
}

// CustodyRecord is one entry in the chain of custody.
type CustodyRecord struct {
	Action    string                 `json:"action"`
	ActorID   string                 `json:"actor_id"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// RegisteredDocument is the canonical handle for an uploaded file.
type RegisteredDocument struct {
	DocID          string          `json:"doc_id"`
	UserID         string          `json:"user_id"`
	Filename       string          `json:"filename"`
	ContentHash    string          `json:"content_hash"`
	MetadataHash   string          `json:"metadata_hash"`
	Size           int64           `json:"size"`
	Mime           string          `json:"mime,omitempty"`
	DocType        string          `json:"doc_type,omitempty"`
	StoragePath    string          `json:"storage_path,omitempty"`
	CurrentVersion int             `json:"current_version"`
	Versions       []Version       `json:"versions"`
	CustodyLog     []CustodyRecord `json:"custody_log"`
	Status         string          `json:"status"`
	Integrity      string          `json:"integrity"`
	RegisteredAt   time.Time       `json:"registered_at"`
}

// clone deep-copies the document so callers cannot reach the registry's
// slices.
func (d *RegisteredDocument) clone() RegisteredDocument {
	out := *d
	out.Versions = append([]Version(nil), d.Versions...)
	out.CustodyLog = append([]CustodyRecord(nil), d.CustodyLog...)
	return out
}

// Registry owns every RegisteredDocument. Callers receive copies; all
// mutation happens under the registry lock and custody entries are
// append-only.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*RegisteredDocument
	byHash  map[string]string // user_id|content_hash -> doc_id
	seqYear int
	seq     int
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*RegisteredDocument),
		byHash: make(map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ContentHash is the deterministic SHA-256 of a document's bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func metadataHash(filename string, size int64, mime, userID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s", filename, size, mime, userID)))
	return hex.EncodeToString(sum[:])
}

// Register files content under userID. If the same user already
// registered identical bytes, the existing document is returned with a
// duplicate_upload custody entry appended and duplicate=true; no new
// document is created.
func (r *Registry) Register(userID string, content []byte, filename, mime string) (RegisteredDocument, bool) {
	hash := ContentHash(content)
	dupKey := userID + "|" + hash

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existingID, ok := r.byHash[dupKey]; ok {
		doc := r.byID[existingID]
		doc.CustodyLog = append(doc.CustodyLog, CustodyRecord{
			Action:    "duplicate_upload",
			ActorID:   userID,
			Timestamp: now,
			Details:   map[string]interface{}{"filename": filename, "original_doc_id": doc.DocID},
		})
		return doc.clone(), true
	}

	doc := &RegisteredDocument{
		DocID:          r.nextDocID(now),
		UserID:         userID,
		Filename:       filename,
		ContentHash:    hash,
		MetadataHash:   metadataHash(filename, int64(len(content)), mime, userID),
		Size:           int64(len(content)),
		Mime:           mime,
		CurrentVersion: 1,
		Versions: []Version{{
			VersionNo:   1,
			ContentHash: hash,
			UploadedAt:  now,
			Reason:      "initial_upload",
		}},
		CustodyLog: []CustodyRecord{{
			Action:    "registered",
			ActorID:   userID,
			Timestamp: now,
			Details:   map[string]interface{}{"filename": filename, "size": len(content)},
		}},
		Status:       StatusActive,
		Integrity:    IntegrityVerified,
		RegisteredAt: now,
	}
	r.byID[doc.DocID] = doc
	r.byHash[dupKey] = doc.DocID
	return doc.clone(), false
}

// nextDocID generates SEM-YYYY-NNNNNN-XXXX: a per-year monotonic sequence
// plus four random base32 characters. Caller holds the write lock.
func (r *Registry) nextDocID(now time.Time) string {
	year := now.Year()
	if year != r.seqYear {
		r.seqYear = year
		r.seq = 0
	}
	r.seq++
	return fmt.Sprintf("SEM-%d-%06d-%s", year, r.seq, randBase32(4))
}

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

func randBase32(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base32Alphabet[int(b)%len(base32Alphabet)]
	}
	return string(out)
}

// Get returns a copy of a document.
func (r *Registry) Get(docID string) (RegisteredDocument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byID[docID]
	if !ok {
		return RegisteredDocument{}, false
	}
	return doc.clone(), true
}

// ForUser lists a user's documents.
func (r *Registry) ForUser(userID string) []RegisteredDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RegisteredDocument
	for _, doc := range r.byID {
		if doc.UserID == userID {
			out = append(out, doc.clone())
		}
	}
	return out
}

// AppendCustody records one custody entry on a document.
func (r *Registry) AppendCustody(docID, action, actorID string, details map[string]interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[docID]
	if !ok {
		return false
	}
	doc.CustodyLog = append(doc.CustodyLog, CustodyRecord{
		Action:    action,
		ActorID:   actorID,
		Timestamp: r.now(),
		Details:   details,
	})
	return true
}

// SetDocType records the classifier's verdict as a metadata update.
func (r *Registry) SetDocType(docID, docType, actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[docID]
	if !ok {
		return
	}
	doc.DocType = docType
	doc.CustodyLog = append(doc.CustodyLog, CustodyRecord{
		Action:    "metadata_updated",
		ActorID:   actorID,
		Timestamp: r.now(),
		Details:   map[string]interface{}{"doc_type": docType},
	})
}

// SetStoragePath links the document to its provider object.
func (r *Registry) SetStoragePath(docID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.byID[docID]; ok {
		doc.StoragePath = path
	}
}

// SetStatus moves a document through its lifecycle.
func (r *Registry) SetStatus(docID, status, actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[docID]
	if !ok {
		return
	}
	doc.Status = status
	doc.CustodyLog = append(doc.CustodyLog, CustodyRecord{
		Action:    "status_" + status,
		ActorID:   actorID,
		Timestamp: r.now(),
	})
}

// VerifyIntegrity recomputes the content hash against content. On
// mismatch the document is flagged tampered (non-fatal: the bytes remain
// retrievable, the caller sees the flag). Returns the resulting state.
func (r *Registry) VerifyIntegrity(docID string, content []byte) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[docID]
	if !ok {
		return IntegrityUnknown
	}
	if ContentHash(content) == doc.ContentHash {
		doc.Integrity = IntegrityVerified
		return IntegrityVerified
	}
	doc.Integrity = IntegrityTampered
	doc.CustodyLog = append(doc.CustodyLog, CustodyRecord{
		Action:    "integrity_violation",
		ActorID:   "system",
		Timestamp: r.now(),
	})
	return IntegrityTampered
}
