package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/metrics"
	"github.com/semptify/backend/internal/storage"
)

// Roles ordered roughly by privilege.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdvocate Role = "advocate"
	RoleLegal    Role = "legal"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// ResourceClass is the relationship between actor and resource.
type ResourceClass string

const (
	ClassOwn    ResourceClass = "own"
	ClassShared ResourceClass = "shared"
	ClassCase   ResourceClass = "case"
	ClassOrg    ResourceClass = "org"
	ClassSystem ResourceClass = "system"
)

// Action is the operation being attempted.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionShare  Action = "share"
	ActionList   Action = "list"
)

// accessMatrix holds the permission letters per role x class. R=read,
// W=write, D=delete. An absent cell means no access at all.
var accessMatrix = map[Role]map[ResourceClass]string{
	RoleUser:     {ClassOwn: "RWD", ClassShared: "R"},
	RoleAdvocate: {ClassOwn: "RWD", ClassShared: "RW", ClassCase: "RW", ClassOrg: "R"},
	RoleLegal:    {ClassOwn: "RWD", ClassShared: "RW", ClassCase: "RWD", ClassOrg: "RW", ClassSystem: "R"},
	RoleManager:  {ClassOwn: "RWD", ClassShared: "RW", ClassCase: "RW", ClassOrg: "RWD", ClassSystem: "R"},
	RoleAdmin:    {ClassOwn: "RWD", ClassShared: "RWD", ClassCase: "RWD", ClassOrg: "RWD", ClassSystem: "RWD"},
}

// requiredLetter maps actions onto matrix letters: list rides on R,
// share rides on W.
func requiredLetter(action Action) byte {
	switch action {
	case ActionRead, ActionList:
		return 'R'
	case ActionWrite, ActionShare:
		return 'W'
	case ActionDelete:
		return 'D'
	default:
		return 0
	}
}

// ErrDenied is the auth error returned for every refused access. It is
// identical whether or not the resource exists.
var ErrDenied = errors.New("access denied")

// Actor identifies who is asking.
type Actor struct {
	ID        string
	Role      Role
	IP        string
	UserAgent string
}

// AccessRequest is the ephemeral input to one access decision.
type AccessRequest struct {
	Actor         Actor
	ResourceID    string
	ResourceClass ResourceClass // advisory; the engine re-resolves it
	Action        Action
}

// Decision is the outcome of one access check.
type Decision struct {
	Allowed       bool
	ResourceClass ResourceClass
	Reason        string // "matrix", "legal_hold" on denial
}

// Engine mediates all document access. Writes to a resource are
// serialized by a per-resource lock; reads never block reads.
type Engine struct {
	registry *Registry
	audit    *AuditLog
	bus      *events.Bus
	provider storage.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	locks      map[string]*sync.RWMutex
	shares     map[string]map[string]bool // resource -> actor set
	caseMember map[string]map[string]bool
	orgMember  map[string]map[string]bool
	legalHolds map[string]bool
}

// NewEngine wires the access engine. bus may not be nil; every decision
// is audited and access events are published for downstream listeners.
func NewEngine(registry *Registry, audit *AuditLog, bus *events.Bus, provider storage.Provider, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:   registry,
		audit:      audit,
		bus:        bus,
		provider:   provider,
		metrics:    m,
		logger:     logger.With("component", "vault_engine"),
		locks:      make(map[string]*sync.RWMutex),
		shares:     make(map[string]map[string]bool),
		caseMember: make(map[string]map[string]bool),
		orgMember:  make(map[string]map[string]bool),
		legalHolds: make(map[string]bool),
	}
}

// Registry exposes the document registry for read paths.
func (e *Engine) Registry() *Registry { return e.registry }

// SetLegalHold marks or clears a hold; deletes under hold are refused.
func (e *Engine) SetLegalHold(resourceID string, held bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if held {
		e.legalHolds[resourceID] = true
	} else {
		delete(e.legalHolds, resourceID)
	}
}

// AddCaseMember grants case-class standing on a resource.
func (e *Engine) AddCaseMember(resourceID, actorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.caseMember[resourceID] == nil {
		e.caseMember[resourceID] = make(map[string]bool)
	}
	e.caseMember[resourceID][actorID] = true
}

// AddOrgMember grants org-class standing on a resource.
func (e *Engine) AddOrgMember(resourceID, actorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.orgMember[resourceID] == nil {
		e.orgMember[resourceID] = make(map[string]bool)
	}
	e.orgMember[resourceID][actorID] = true
}

func (e *Engine) lockFor(resourceID string) *sync.RWMutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[resourceID]
	if !ok {
		l = &sync.RWMutex{}
		e.locks[resourceID] = l
	}
	return l
}

// resolveClass determines the actor's relationship to the resource:
// owner, then share list, then case/org membership. Resources the engine
// does not know keep the requested class, so a denial for a missing
// resource is indistinguishable from a denial for an existing one.
func (e *Engine) resolveClass(actorID, resourceID string, requested ResourceClass) ResourceClass {
	if doc, ok := e.registry.Get(resourceID); ok {
		if doc.UserID == actorID {
			return ClassOwn
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		switch {
		case e.shares[resourceID][actorID]:
			return ClassShared
		case e.caseMember[resourceID][actorID]:
			return ClassCase
		case e.orgMember[resourceID][actorID]:
			return ClassOrg
		default:
			return ClassSystem // no relationship: strictest row
		}
	}
	if owner, ok := strings.CutPrefix(resourceID, "vault:"); ok && owner == actorID {
		return ClassOwn
	}
	if requested != "" {
		return requested
	}
	return ClassSystem
}

// Decide runs the decision procedure and appends the audit entry
// regardless of outcome.
func (e *Engine) Decide(req AccessRequest) Decision {
	class := e.resolveClass(req.Actor.ID, req.ResourceID, req.ResourceClass)

	decision := Decision{ResourceClass: class}
	cell := accessMatrix[req.Actor.Role][class]
	letter := requiredLetter(req.Action)
	if letter == 0 || !strings.ContainsRune(cell, rune(letter)) {
		decision.Reason = "matrix"
	} else if req.Action == ActionDelete && e.underLegalHold(req.ResourceID) {
		decision.Reason = "legal_hold"
	} else {
		decision.Allowed = true
	}

	outcome := "denied"
	if decision.Allowed {
		outcome = "allowed"
	}
	e.audit.Append(AuditEntry{
		ActorID:       req.Actor.ID,
		Action:        string(req.Action),
		ResourceID:    req.ResourceID,
		ResourceClass: string(class),
		Decision:      outcome,
		Reason:        decision.Reason,
		IP:            req.Actor.IP,
		UserAgent:     req.Actor.UserAgent,
	})
	if e.metrics != nil {
		e.metrics.AccessDecisions.WithLabelValues(string(req.Action), outcome).Inc()
	}
	if !decision.Allowed {
		e.logger.Warn("access denied",
			"actor", req.Actor.ID, "role", req.Actor.Role,
			"action", req.Action, "class", class, "reason", decision.Reason)
	}
	return decision
}

func (e *Engine) underLegalHold(resourceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.legalHolds[resourceID]
}

// StoreResult is what a gated write returns.
type StoreResult struct {
	Document  RegisteredDocument
	Duplicate bool
	Overwrite bool
}

// StoreDocument is the gated write path: access check, duplicate
// detection, provider upload with retry, custody and event emission.
// Duplicate bytes short-circuit to the existing document with a
// duplicate_upload custody entry and no document_added event.
func (e *Engine) StoreDocument(ctx context.Context, actor Actor, ownerID string, content []byte, filename, docType, mime string) (StoreResult, error) {
	req := AccessRequest{
		Actor:      actor,
		ResourceID: "vault:" + ownerID,
		Action:     ActionWrite,
	}
	if actor.ID != ownerID {
		req.ResourceClass = ClassCase // non-owners write through case standing
	}
	if d := e.Decide(req); !d.Allowed {
		return StoreResult{}, ErrDenied
	}

	lock := e.lockFor("vault:" + ownerID)
	lock.Lock()
	defer lock.Unlock()

	doc, duplicate := e.registry.Register(ownerID, content, filename, mime)
	if duplicate {
		return StoreResult{Document: doc, Duplicate: true}, nil
	}

	overwrite := false
	for _, prior := range e.registry.ForUser(ownerID) {
		if prior.DocID != doc.DocID && prior.Filename == filename && prior.Status == StatusActive {
			overwrite = true
			break
		}
	}

	var stored storage.File
	err := storage.WithRetry(ctx, e.metrics, "upload", func() error {
		var uploadErr error
		stored, uploadErr = storage.UploadDocument(ctx, e.provider, content, filename, docType, mime)
		return uploadErr
	})
	if err != nil {
		e.registry.AppendCustody(doc.DocID, "upload_failed", actor.ID,
			map[string]interface{}{"error": err.Error()})
		return StoreResult{}, err
	}
	e.registry.SetStoragePath(doc.DocID, stored.Path)
	if docType != "" {
		e.registry.SetDocType(doc.DocID, docType, actor.ID)
	}

	if overwrite {
		e.bus.Emit(events.DocumentProcessed, ownerID, "vault_engine",
			events.DocumentProcessedPayload{DocumentID: doc.DocID, Overwrite: true})
	} else {
		e.bus.Emit(events.DocumentAdded, ownerID, "vault_engine",
			events.DocumentAddedPayload{
				ResourceID:   doc.DocID,
				ResourceType: docType,
				Filename:     filename,
				Size:         doc.Size,
			})
	}

	final, _ := e.registry.Get(doc.DocID)
	return StoreResult{Document: final, Overwrite: overwrite}, nil
}

// FetchResult carries the bytes and the (possibly flagged) document.
type FetchResult struct {
	Content  []byte
	Document RegisteredDocument
}

// Fetch is the gated read path. Integrity is re-verified on every read;
// a mismatch flags the document tampered and emits a security audit
// event, but the bytes are still returned.
func (e *Engine) Fetch(ctx context.Context, actor Actor, docID string) (FetchResult, error) {
	if d := e.Decide(AccessRequest{Actor: actor, ResourceID: docID, Action: ActionRead}); !d.Allowed {
		return FetchResult{}, ErrDenied
	}

	doc, ok := e.registry.Get(docID)
	if !ok || doc.Status == StatusDeleted {
		return FetchResult{}, fmt.Errorf("document %s: %w", docID, storage.ErrNotFound)
	}

	lock := e.lockFor(docID)
	lock.RLock()
	defer lock.RUnlock()

	var content []byte
	err := storage.WithRetry(ctx, e.metrics, "download", func() error {
		var dlErr error
		content, dlErr = e.provider.DownloadFile(ctx, doc.StoragePath)
		return dlErr
	})
	if err != nil {
		return FetchResult{}, err
	}

	if state := e.registry.VerifyIntegrity(docID, content); state == IntegrityTampered {
		if e.metrics != nil {
			e.metrics.TamperDetected.Inc()
		}
		e.bus.Emit(events.AccessAudit, doc.UserID, "vault_engine",
			events.AccessAuditPayload{
				ActorID:    actor.ID,
				Action:     "integrity_violation",
				ResourceID: docID,
				Decision:   "flagged",
			})
	}
	e.registry.AppendCustody(docID, "read", actor.ID, nil)

	final, _ := e.registry.Get(docID)
	return FetchResult{Content: content, Document: final}, nil
}

// Remove is the gated delete path: soft-delete in the registry, hard
// delete at the provider, and an access-audit event with no content.
func (e *Engine) Remove(ctx context.Context, actor Actor, docID string) error {
	d := e.Decide(AccessRequest{Actor: actor, ResourceID: docID, Action: ActionDelete})
	if !d.Allowed {
		return ErrDenied
	}

	doc, ok := e.registry.Get(docID)
	if !ok {
		return fmt.Errorf("document %s: %w", docID, storage.ErrNotFound)
	}

	lock := e.lockFor(docID)
	lock.Lock()
	defer lock.Unlock()

	if doc.StoragePath != "" {
		err := storage.WithRetry(ctx, e.metrics, "delete", func() error {
			_, delErr := e.provider.DeleteFile(ctx, doc.StoragePath)
			return delErr
		})
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	e.registry.SetStatus(docID, StatusDeleted, actor.ID)

	e.bus.Emit(events.AccessAudit, doc.UserID, "vault_engine",
		events.AccessAuditPayload{
			ActorID:       actor.ID,
			Action:        string(ActionDelete),
			ResourceID:    docID,
			ResourceClass: string(d.ResourceClass),
			Decision:      "allowed",
		})
	return nil
}

// List is the gated listing of a user's documents.
func (e *Engine) List(actor Actor, ownerID string) ([]RegisteredDocument, error) {
	req := AccessRequest{Actor: actor, ResourceID: "vault:" + ownerID, Action: ActionList}
	if actor.ID != ownerID {
		req.ResourceClass = ClassCase
	}
	if d := e.Decide(req); !d.Allowed {
		return nil, ErrDenied
	}
	docs := e.registry.ForUser(ownerID)
	var out []RegisteredDocument
	for _, doc := range docs {
		if doc.Status != StatusDeleted {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Share grants granteeID shared-class standing on a document.
func (e *Engine) Share(actor Actor, docID, granteeID string) error {
	if d := e.Decide(AccessRequest{Actor: actor, ResourceID: docID, Action: ActionShare}); !d.Allowed {
		return ErrDenied
	}
	e.mu.Lock()
	if e.shares[docID] == nil {
		e.shares[docID] = make(map[string]bool)
	}
	e.shares[docID][granteeID] = true
	e.mu.Unlock()

	e.registry.AppendCustody(docID, "shared", actor.ID,
		map[string]interface{}{"grantee": granteeID})
	return nil
}
