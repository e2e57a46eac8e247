package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/orm"
	"github.com/sakif/activerecord/internal/service"
)

// OwnerTokenHeader carries the snippet owner token. It is set on the create
// response and required on update, delete and restore unless the request is
// signed in as the snippet's user.
const OwnerTokenHeader = "X-Owner-Token"

type SnippetHandler struct {
	service *service.SnippetService
	logger  *slog.Logger
}

func NewSnippetHandler(svc *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{service: svc, logger: logger}
}

// Routes mounts the snippet endpoints. Mount auth.OptionalAuth in front of
// them so signed-in users are recognized.
//
//	GET    /                ?limit=&offset=&with_trashed=1
//	POST   /
//	GET    /{id}
//	PUT    /{id}
//	DELETE /{id}
//	POST   /{id}/restore
func (h *SnippetHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	r.Post("/{id}/restore", h.HandleRestore)
}

func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	withTrashed, _ := strconv.ParseBool(q.Get("with_trashed"))

	snippets, err := h.service.List(r.Context(), service.ListOptions{
		Limit:       limit,
		Offset:      offset,
		WithTrashed: withTrashed,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toMaps(snippets))
}

func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	attrs, err := decodeAttrs(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	snippet, token, err := h.service.Create(r.Context(), userID, attrs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set(OwnerTokenHeader, token)
	writeJSON(w, http.StatusCreated, snippet)
}

func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	attrs, err := decodeAttrs(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	snippet, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), caller(r), attrs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), caller(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SnippetHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.service.Restore(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

func caller(r *http.Request) service.Caller {
	userID, _ := auth.UserIDFromContext(r.Context())
	return service.Caller{UserID: userID, Token: r.Header.Get(OwnerTokenHeader)}
}

func toMaps(models []*orm.Model) []map[string]any {
	out := make([]map[string]any, len(models))
	for i, m := range models {
		out[i] = m.ToMap()
	}
	return out
}
