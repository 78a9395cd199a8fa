package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/semptify/backend/internal/cache"
	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/laws"
	"github.com/semptify/backend/internal/vault"
)

// maxUploadBytes caps document uploads at 25 MB.
const maxUploadBytes = 25 << 20

// GET /api/v1/state/{userID}
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	cacheKey := "state:" + userID

	if data, err := s.cache.Get(r.Context(), cacheKey); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(data)
		return
	} else if err != cache.ErrMiss {
		s.logger.Warn("cache read failed", "key", cacheKey, "error", err)
	}

	state := s.loop.GetState(userID)
	body, err := json.Marshal(state)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.cache.Set(r.Context(), cacheKey, body, s.cacheTTL)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// GET /api/v1/intensity/{userID}
func (s *Server) handleGetIntensity(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	writeJSON(w, http.StatusOK, s.loop.GetIntensityReport(userID))
}

// emitRequest is the generic event-injection body.
type emitRequest struct {
	Type   string          `json:"type"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

// POST /api/v1/events/{userID}
func (s *Server) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	payload, err := decodePayload(events.Type(req.Type), req.Data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	event, err := s.loop.EmitEvent(events.Type(req.Type), userID, source, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.cache.Invalidate(r.Context(), "state:"+userID)
	writeJSON(w, http.StatusAccepted, event)
}

// decodePayload maps the wire "data" object onto the typed payload
// variant for the event type.
func decodePayload(typ events.Type, data json.RawMessage) (events.Payload, error) {
	if !events.Known(typ) {
		return nil, fmt.Errorf("unknown event type %q", typ)
	}
	if len(data) == 0 {
		data = []byte("{}")
	}

	unmarshal := func(v events.Payload) (events.Payload, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", typ, err)
		}
		return v, nil
	}

	switch typ {
	case events.DocumentUploaded:
		p := &events.DocumentUploadedPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	case events.IssueDetected:
		p := &events.IssueDetectedPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	case events.IssueResolved:
		p := &events.IssueResolvedPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	case events.DeadlineApproaching:
		p := &events.DeadlineApproachingPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	case events.ActionTaken:
		p := &events.ActionTakenPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	case events.CaseInfoUpdated:
		p := &events.CaseInfoUpdatedPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	case events.UserDismissed:
		p := &events.UserDismissedPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	case events.ViolationFound:
		p := &events.ViolationFoundPayload{}
		if _, err := unmarshal(p); err != nil {
			return nil, err
		}
		return *p, nil
	default:
		return nil, fmt.Errorf("event type %q cannot be injected via the API", typ)
	}
}

// POST /api/v1/vault/{userID}/documents  (multipart or raw body)
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	actor := actorFrom(r, userID)

	var content []byte
	var filename, mime string
	var err error

	if ct := r.Header.Get("Content-Type"); len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
			return
		}
		defer file.Close()
		content, err = io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			writeError(w, err)
			return
		}
		filename = header.Filename
		mime = header.Header.Get("Content-Type")
	} else {
		content, err = io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			writeError(w, err)
			return
		}
		filename = r.URL.Query().Get("filename")
		if filename == "" {
			filename = "upload.bin"
		}
		mime = r.Header.Get("Content-Type")
	}

	if len(content) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty upload"})
		return
	}

	result, err := s.intake.Ingest(r.Context(), actor, userID, content, filename, mime)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.cache.Invalidate(r.Context(), "state:"+userID)

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// GET /api/v1/vault/{userID}/documents
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	docs, err := s.vault.List(actorFrom(r, userID), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

// GET /api/v1/vault/{userID}/documents/{docID}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := s.vault.Fetch(r.Context(), actorFrom(r, vars["userID"]), vars["docID"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Integrity", result.Document.Integrity)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", result.Document.Filename))
	_, _ = w.Write(result.Content)
}

// DELETE /api/v1/vault/{userID}/documents/{docID}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.vault.Remove(r.Context(), actorFrom(r, vars["userID"]), vars["docID"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /api/v1/vault/{userID}/documents/{docID}/share
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		GranteeID string `json:"grantee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.GranteeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "grantee_id required"})
		return
	}
	if err := s.vault.Share(actorFrom(r, vars["userID"]), vars["docID"], body.GranteeID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shared"})
}

// GET /api/v1/audit/logs?actor_id=&action=&resource_id=&decision=&limit=
func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var since time.Time
	if raw := q.Get("since"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			since = parsed
		}
	}

	entries, err := s.audit.Query(vault.AuditQuery{
		ActorID:    q.Get("actor_id"),
		Action:     q.Get("action"),
		ResourceID: q.Get("resource_id"),
		Decision:   q.Get("decision"),
		Since:      since,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":     entries,
		"total":       len(entries),
		"executed_at": time.Now().UTC(),
	})
}

// GET /api/v1/laws?category=
func (s *Server) handleListLaws(w http.ResponseWriter, r *http.Request) {
	if category := r.URL.Query().Get("category"); category != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"laws": s.laws.ByCategory(laws.Category(category))})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"laws": s.laws.All()})
}

// GET /api/v1/history?type=&user_id=&limit=
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	history := s.bus.History(events.Type(q.Get("type")), q.Get("user_id"), limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": history, "count": len(history)})
}
