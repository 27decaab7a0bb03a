package handlers

//go:generate mockgen -destination=mocks/mock_journal.go -package=mocks journal-sync/internal/handlers JournalService,Syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/document"
	"journal-sync/internal/entrysync"
	"journal-sync/internal/errs"
	"journal-sync/internal/reconcile"
	"journal-sync/internal/storage"
)

// JournalService is the entry orchestrator as seen by the HTTP layer.
type JournalService interface {
	Get(ctx context.Context, id int64, includeDeleted bool) (*storage.Entry, error)
	GetByDate(ctx context.Context, date string, includeDeleted bool) (*storage.Entry, error)
	List(ctx context.Context, includeDeleted bool) ([]storage.Entry, error)
	Create(ctx context.Context, in entrysync.Input) (*entrysync.Result, error)
	Update(ctx context.Context, id int64, in entrysync.Input, mode reconcile.Mode, rm entrysync.Removals) (*entrysync.Result, error)
	Delete(ctx context.Context, id int64, actor, reason string, hard bool) error
	Restore(ctx context.Context, id int64) (*storage.Entry, error)
	Export(ctx context.Context, e *storage.Entry) (*document.Document, error)
	Tombstones(ctx context.Context, includeExpired bool) ([]storage.Tombstone, error)
	PruneTombstones(ctx context.Context) (int64, error)
}

// Syncer runs a full directory sync.
type Syncer interface {
	SyncAll(ctx context.Context) (*entrysync.SyncStats, error)
}

// EntryHandler serves the entry API.
type EntryHandler struct {
	journal JournalService
	syncer  Syncer
}

// NewEntryHandler creates a new EntryHandler. syncer may be nil when no
// journal directory is configured.
func NewEntryHandler(journal JournalService, syncer Syncer) *EntryHandler {
	return &EntryHandler{journal: journal, syncer: syncer}
}

// DocumentRequest carries a document for create and update.
type DocumentRequest struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// UpdateRequest is the PATCH payload.
type UpdateRequest struct {
	DocumentRequest
	Mode   string             `json:"mode,omitempty"`
	Remove entrysync.Removals `json:"remove,omitempty"`
}

// PruneResponse reports how many tombstones were pruned.
type PruneResponse struct {
	Pruned int64 `json:"pruned"`
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func (req DocumentRequest) input() (entrysync.Input, error) {
	if strings.TrimSpace(req.FilePath) == "" {
		return entrysync.Input{}, errs.Invalid("file_path", "is required")
	}
	data := []byte(req.Content)
	doc, err := document.ParseNamed(req.FilePath, data)
	if err != nil {
		return entrysync.Input{}, err
	}
	return entrysync.Input{Document: doc, FilePath: req.FilePath, FileHash: entrysync.HashBytes(data)}, nil
}

// entry loads the entry named by the {date} URL parameter.
func (h *EntryHandler) entry(r *http.Request, includeDeleted bool) (*storage.Entry, error) {
	date, err := document.ParseDay("date", chi.URLParam(r, "date"))
	if err != nil {
		return nil, err
	}
	return h.journal.GetByDate(r.Context(), date, includeDeleted)
}

// List handles GET /api/entries.
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.journal.List(r.Context(), queryBool(r, "include_deleted"))
	if err != nil {
		handleServiceError(w, r.Context(), err, "Failed to list entries")
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	writeJSON(w, r.Context(), http.StatusOK, entries)
}

// Get handles GET /api/entries/{date}.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.entry(r, queryBool(r, "include_deleted"))
	if err != nil {
		handleServiceError(w, r.Context(), err, "Failed to get entry")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, e)
}

// Document handles GET /api/entries/{date}/document and returns the
// serialized document rebuilt from the store.
func (h *EntryHandler) Document(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := h.entry(r, false)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get entry")
		return
	}
	doc, err := h.journal.Export(ctx, e)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to export entry")
		return
	}
	out, err := document.Serialize(doc)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to serialize entry")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to write document", "error", err)
	}
}

// Create handles POST /api/entries.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		handleServiceError(w, ctx, err, "Invalid document")
		return
	}
	res, err := h.journal.Create(ctx, in)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to create entry")
		return
	}
	writeJSON(w, ctx, http.StatusCreated, res)
}

// Update handles PATCH /api/entries/{date}.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	mode, err := reconcile.ParseMode(req.Mode)
	if err != nil {
		handleServiceError(w, ctx, err, "Invalid mode")
		return
	}
	e, err := h.entry(r, false)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get entry")
		return
	}
	if req.FilePath == "" {
		req.FilePath = e.FilePath
	}
	in, err := req.input()
	if err != nil {
		handleServiceError(w, ctx, err, "Invalid document")
		return
	}
	res, err := h.journal.Update(ctx, e.ID, in, mode, req.Remove)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to update entry")
		return
	}
	writeJSON(w, ctx, http.StatusOK, res)
}

// Delete handles DELETE /api/entries/{date}?hard=&reason=&actor=.
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hard := queryBool(r, "hard")
	// A soft-deleted entry can still be removed for good.
	e, err := h.entry(r, hard)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get entry")
		return
	}
	q := r.URL.Query()
	if err := h.journal.Delete(ctx, e.ID, q.Get("actor"), q.Get("reason"), hard); err != nil {
		handleServiceError(w, ctx, err, "Failed to delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/entries/{date}/restore.
func (h *EntryHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := h.entry(r, true)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to get entry")
		return
	}
	restored, err := h.journal.Restore(ctx, e.ID)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to restore entry")
		return
	}
	writeJSON(w, ctx, http.StatusOK, restored)
}

// Tombstones handles GET /api/tombstones.
func (h *EntryHandler) Tombstones(w http.ResponseWriter, r *http.Request) {
	list, err := h.journal.Tombstones(r.Context(), queryBool(r, "include_expired"))
	if err != nil {
		handleServiceError(w, r.Context(), err, "Failed to list tombstones")
		return
	}
	if list == nil {
		list = []storage.Tombstone{}
	}
	writeJSON(w, r.Context(), http.StatusOK, list)
}

// PruneTombstones handles POST /api/tombstones/prune.
func (h *EntryHandler) PruneTombstones(w http.ResponseWriter, r *http.Request) {
	n, err := h.journal.PruneTombstones(r.Context())
	if err != nil {
		handleServiceError(w, r.Context(), err, "Failed to prune tombstones")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, PruneResponse{Pruned: n})
}

// Sync handles POST /api/sync.
func (h *EntryHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "Journal directory is not configured")
		return
	}
	stats, err := h.syncer.SyncAll(r.Context())
	if err != nil {
		handleServiceError(w, r.Context(), err, "Failed to sync journal")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, stats)
}
