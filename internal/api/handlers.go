package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/index"
	"github.com/starford/arbor/internal/vault"
)

// Vault is the subset of the vault service the HTTP layer needs.
type Vault interface {
	GetNote(ctx context.Context, fname string) (vault.NoteView, error)
	GetNoteByID(ctx context.Context, id string) (vault.NoteView, error)
	Children(ctx context.Context, fname string) ([]vault.NoteSummary, error)
	CreateNote(ctx context.Context, fname, body string) (vault.NoteView, error)
	DeleteNote(ctx context.Context, fname string) error
	MatchSchema(ctx context.Context, fname string) (vault.SchemaView, error)
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
	Outline(fname string) (*vault.Outline, error)
}

var _ Vault = (*vault.Service)(nil)

// Handler holds API route handlers.
type Handler struct {
	svc Vault
}

// NewHandler creates a new Handler.
func NewHandler(svc Vault) *Handler {
	return &Handler{svc: svc}
}

// noteFname extracts the dotted note name from the URL wildcard.
// Supports encoded characters from OpenAPI clients.
func noteFname(r *http.Request) string {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeServiceError maps vault errors onto HTTP statuses. Unexpected errors
// are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, op, fname string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("note already exists"))
	case errors.Is(err, apperr.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("fname", fname), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Tree handles GET /tree.
//
//	@Summary		Get the note hierarchy as a nested outline
//	@Tags			tree
//	@Produce		json
//	@Param			fname	query		string	false	"Subtree root (defaults to the vault root)"
//	@Success		200		{object}	TreeResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	fname := r.URL.Query().Get("fname")
	out, err := h.svc.Outline(fname)
	if err != nil {
		writeServiceError(w, "outline", fname, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Children handles GET /children/*.
//
//	@Summary		List the direct children of a note
//	@Tags			tree
//	@Produce		json
//	@Param			fname	path		string	true	"Dotted note name"
//	@Success		200		{object}	ChildrenResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/children/{fname} [get]
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	fname := noteFname(r)
	kids, err := h.svc.Children(r.Context(), fname)
	if err != nil {
		writeServiceError(w, "children", fname, err)
		return
	}
	if kids == nil {
		kids = []vault.NoteSummary{}
	}
	writeJSON(w, http.StatusOK, ChildrenResponse{Children: kids})
}

// GetNote handles GET /notes/*. An empty name addresses the root; the id
// query parameter looks a note up by id instead.
//
//	@Summary		Get a single note by dotted name
//	@Tags			notes
//	@Produce		json
//	@Param			fname	path		string	true	"Dotted note name"
//	@Param			id		query		string	false	"Look up by note id"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{fname} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	fname := noteFname(r)
	var (
		note vault.NoteView
		err  error
	)
	if id := r.URL.Query().Get("id"); id != "" && fname == "" {
		note, err = h.svc.GetNoteByID(r.Context(), id)
	} else {
		note, err = h.svc.GetNote(r.Context(), fname)
	}
	if err != nil {
		writeServiceError(w, "get note", fname, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /notes.
//
//	@Summary		Create a note, synthesizing stubs for missing ancestors
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Fname, req.Body)
	if err != nil {
		writeServiceError(w, "create note", req.Fname, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// DeleteNote handles DELETE /notes/*.
//
//	@Summary		Delete a note; descendants keep their place under a stub
//	@Tags			notes
//	@Param			fname	path	string	true	"Dotted note name"
//	@Success		204		"Note deleted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{fname} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	fname := noteFname(r)
	if fname == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("fname is required"))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), fname); err != nil {
		writeServiceError(w, "delete note", fname, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MatchSchema handles GET /schemas/match.
//
//	@Summary		Resolve the schema a dotted name falls under
//	@Tags			schemas
//	@Produce		json
//	@Param			fname	query		string	true	"Dotted note name"
//	@Success		200		{object}	SchemaResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/schemas/match [get]
func (h *Handler) MatchSchema(w http.ResponseWriter, r *http.Request) {
	fname := r.URL.Query().Get("fname")
	if fname == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'fname' is required"))
		return
	}
	sch, err := h.svc.MatchSchema(r.Context(), fname)
	if err != nil {
		writeServiceError(w, "match schema", fname, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// Search handles GET /search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", q, err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
