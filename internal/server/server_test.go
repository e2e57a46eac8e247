package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/database"
	"github.com/sakif/activerecord/internal/model"
	"github.com/sakif/activerecord/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *database.Connection) {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	conn, err := database.Open(ctx, database.Config{Connection: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.DB.ExecContext(ctx, model.SQLiteSchema)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("server-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	return New(Config{Port: 0, PasswordCost: bcrypt.MinCost}, conn, tokens, logger), conn
}

func TestHealthz(t *testing.T) {
	srv, conn := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.Close())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutesAreMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/snippets", strings.NewReader(`{"name":"hi"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginTokenAuthorizesSnippetEdits(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	serve := func(method, path, body, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(http.MethodPost, "/api/users", `{"login":"ada","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(http.MethodPost, "/api/users/login", `{"login":"ada","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = serve(http.MethodPost, "/api/snippets", `{"name":"mine"}`, session.Token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snippet struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snippet))

	rec = serve(http.MethodDelete, "/api/snippets/"+snippet.ID, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(http.MethodDelete, "/api/snippets/"+snippet.ID, "", session.Token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
