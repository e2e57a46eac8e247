package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/service"
)

type UserHandler struct {
	service *service.UserService
	tokens  *auth.TokenService
	logger  *slog.Logger
}

func NewUserHandler(svc *service.UserService, tokens *auth.TokenService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, tokens: tokens, logger: logger}
}

// Routes mounts the user endpoints.
//
//	POST /         register
//	POST /login    returns a bearer token
//	GET  /me       requires a bearer token
//	GET  /{id}
func (h *UserHandler) Routes(r chi.Router) {
	r.Post("/", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.With(auth.RequireAuth(h.tokens)).Get("/me", h.HandleMe)
	r.Get("/{id}", h.HandleGet)
}

func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	attrs, err := decodeAttrs(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.service.Register(r.Context(), attrs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	attrs, err := decodeAttrs(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	login, _ := attrs["login"].(string)
	password, _ := attrs["password"].(string)

	session, err := h.service.Login(r.Context(), login, password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.service.Current(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("id", "user ID must be an integer"))
		return
	}
	user, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
