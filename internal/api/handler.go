// Package api is the operator HTTP surface: enqueue deletes, read the status snapshot and
// action results, list orphans, and browse the audit trail.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mfa-orphans/internal/action/domain"
	auditdomain "mfa-orphans/internal/audit/domain"
	"mfa-orphans/internal/converge"
	identitydomain "mfa-orphans/internal/identity/domain"
	statusdomain "mfa-orphans/internal/mfastatus/domain"
	"mfa-orphans/internal/mfastatus/reader"
	"mfa-orphans/internal/orphan"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
	maxBulkActions    = 500
)

// Enqueuer queues one action.
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.Request) (string, error)
}

// ResultFetcher reads worker results.
type ResultFetcher interface {
	FetchResult(ctx context.Context, id string) (*domain.Result, error)
	Classify(res *domain.Result) domain.Outcome
}

// StatusReader reads the worker-published snapshot.
type StatusReader interface {
	ReadRaw(ctx context.Context) ([]byte, error)
	Read(ctx context.Context) (*statusdomain.Snapshot, error)
}

// IdentityLister lists directory identities.
type IdentityLister interface {
	ListIdentities(ctx context.Context) ([]*identitydomain.Identity, error)
}

// AuditReader lists audit entries.
type AuditReader interface {
	Recent(ctx context.Context, subject string, limit, offset int32) ([]*auditdomain.AuditLog, error)
}

// Handler serves the operator API. Audit may be nil.
type Handler struct {
	Queue      Enqueuer
	Results    ResultFetcher
	Snapshots  StatusReader
	Identities IdentityLister
	Audit      AuditReader
	Policy     identitydomain.MatchPolicy
}

// EnqueueResponse is returned for an accepted action.
type EnqueueResponse struct {
	ActionID string `json:"action_id"`
}

// BulkRequest is the body of a bulk enqueue.
type BulkRequest struct {
	Actions []domain.Request `json:"actions"`
}

// BulkItem is the outcome of one action in a bulk enqueue.
type BulkItem struct {
	Op       domain.Op `json:"op"`
	User     string    `json:"user"`
	ActionID string    `json:"action_id,omitempty"`
	Status   int       `json:"status"`
	Error    string    `json:"error,omitempty"`
	Code     string    `json:"code,omitempty"`
}

// BulkResponse tallies a bulk enqueue and carries the merged want map for a convergence poll.
type BulkResponse struct {
	Submitted int              `json:"submitted"`
	Failed    int              `json:"failed"`
	Items     []BulkItem       `json:"items"`
	Want      converge.WantMap `json:"want"`
}

// ResultResponse wraps a worker result with the server's success verdict. Result is verbatim.
type ResultResponse struct {
	ActionID string          `json:"action_id"`
	Outcome  string          `json:"outcome"`
	Result   json.RawMessage `json:"result"`
}

// AuditEntry is one audit log row.
type AuditEntry struct {
	ID        string    `json:"id"`
	AdminUID  string    `json:"admin_uid"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	ActionID  string    `json:"action_id,omitempty"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Enqueue handles POST /api/mfa/actions.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "malformed request body", Code: CodeValidation})
		return
	}
	req.Requester = RequesterFrom(r.Context())
	id, err := h.Queue.Enqueue(r.Context(), req)
	if err != nil {
		writeCoreError(w, "enqueue", err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{ActionID: id})
}

// BulkEnqueue handles POST /api/mfa/actions/bulk. Items are dispatched concurrently and
// reported individually; the response is 200 even when some items fail.
func (h *Handler) BulkEnqueue(w http.ResponseWriter, r *http.Request) {
	var body BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "malformed request body", Code: CodeValidation})
		return
	}
	if len(body.Actions) == 0 || len(body.Actions) > maxBulkActions {
		writeJSON(w, http.StatusBadRequest, ErrorBody{
			Error: "actions must hold 1 to " + strconv.Itoa(maxBulkActions) + " entries",
			Code:  CodeValidation,
			Field: "actions",
		})
		return
	}
	requester := RequesterFrom(r.Context())
	for i := range body.Actions {
		body.Actions[i].Requester = requester
	}

	var baseline *statusdomain.Snapshot
	if h.Snapshots != nil {
		if snap, err := h.Snapshots.Read(r.Context()); err == nil {
			baseline = snap
		}
	}
	subs, want := converge.BulkEnqueue(r.Context(), h.Queue, body.Actions, baseline)
	resp := BulkResponse{Items: make([]BulkItem, 0, len(subs)), Want: want}
	for _, s := range subs {
		item := BulkItem{Op: s.Request.Op, User: s.Request.User, ActionID: s.ActionID, Status: http.StatusAccepted}
		if s.Err != nil {
			item.Status, item.Code = StatusFor(s.Err)
			item.Error = s.Err.Error()
			if item.Code == CodeInternal {
				log.Printf("api: bulk enqueue %s: %v", s.Request.User, s.Err)
				item.Error = "internal error"
			}
			resp.Failed++
		} else {
			resp.Submitted++
		}
		resp.Items = append(resp.Items, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /api/mfa/status and returns the snapshot document verbatim.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Snapshots.ReadRaw(r.Context())
	if err != nil {
		if errors.Is(err, reader.ErrNoSnapshot) {
			writeCoreError(w, "status", err)
			return
		}
		log.Printf("api: read status: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "status snapshot unreadable", Code: CodeUnavailable})
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// Result handles GET /api/mfa/results/{id}: 200 with the result, 202 while pending, 404 if unknown.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.Results.FetchResult(r.Context(), id)
	if err != nil {
		writeCoreError(w, "result", err)
		return
	}
	raw := res.Raw
	if len(raw) == 0 {
		raw, _ = json.Marshal(res)
	}
	writeJSON(w, http.StatusOK, ResultResponse{
		ActionID: id,
		Outcome:  h.Results.Classify(res).String(),
		Result:   raw,
	})
}

// Orphans handles GET /api/mfa/orphans.
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Snapshots.Read(r.Context())
	if err != nil {
		if errors.Is(err, reader.ErrNoSnapshot) {
			writeCoreError(w, "orphans", err)
			return
		}
		log.Printf("api: read status for orphans: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "status snapshot unreadable", Code: CodeUnavailable})
		return
	}
	ids, err := h.Identities.ListIdentities(r.Context())
	if err != nil {
		// Without the directory every subject would look orphaned.
		log.Printf("api: list identities: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "directory unavailable", Code: CodeUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, orphan.Resolve(snap, ids, h.Policy))
}

// AuditLog handles GET /api/audit?subject=&limit=&offset=.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusOK, []AuditEntry{})
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultAuditLimit)
	if err != nil || limit <= 0 || limit > maxAuditLimit {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "limit must be 1-" + strconv.Itoa(maxAuditLimit), Code: CodeValidation, Field: "limit"})
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "offset must not be negative", Code: CodeValidation, Field: "offset"})
		return
	}
	logs, err := h.Audit.Recent(r.Context(), q.Get("subject"), int32(limit), int32(offset))
	if err != nil {
		log.Printf("api: list audit logs: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "audit log unavailable", Code: CodeUnavailable})
		return
	}
	out := make([]AuditEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, AuditEntry{
			ID: l.ID, AdminUID: l.AdminUID, Action: l.Action, Subject: l.Subject,
			ActionID: l.ActionID, IP: l.IP, Metadata: l.Metadata, CreatedAt: l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
