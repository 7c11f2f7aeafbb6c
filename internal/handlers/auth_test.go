package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elibrary/apiserver/internal/auth"
	"github.com/elibrary/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

func newUserRouter(repo *fakeUserRepo) *chi.Mux {
	router := chi.NewRouter()
	router.Route("/api/users", func(r chi.Router) {
		UserRouter(r, services.NewUserService(repo), testJWTSecret, false)
	})
	return router
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterIssuesToken(t *testing.T) {
	router := newUserRouter(newFakeUserRepo())

	rec := postJSON(t, router, "/api/users/register", map[string]string{
		"name":     "Ann",
		"email":    "a@x.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	subject, err := auth.ParseTokenSubject(resp.AccessToken, []byte(testJWTSecret))
	require.NoError(t, err)
	assert.Equal(t, "1", subject)
}

func TestRegisterMissingFields(t *testing.T) {
	router := newUserRouter(newFakeUserRepo())

	rec := postJSON(t, router, "/api/users/register", map[string]string{
		"name":  "Ann",
		"email": "a@x.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	router := newUserRouter(repo)

	payload := map[string]string{"name": "Ann", "email": "a@x.com", "password": "secret1"}
	require.Equal(t, http.StatusCreated, postJSON(t, router, "/api/users/register", payload).Code)

	rec := postJSON(t, router, "/api/users/register", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user already exists with this email", resp.Message)

	// no second record was created
	assert.Len(t, repo.users, 1)
}

func TestLoginFlow(t *testing.T) {
	router := newUserRouter(newFakeUserRepo())

	register := postJSON(t, router, "/api/users/register", map[string]string{
		"name":     "Ann",
		"email":    "a@x.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, register.Code)

	login := postJSON(t, router, "/api/users/login", map[string]string{
		"email":    "a@x.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, login.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &resp))
	subject, err := auth.ParseTokenSubject(resp.AccessToken, []byte(testJWTSecret))
	require.NoError(t, err)
	assert.Equal(t, "1", subject)
}

func TestLoginWrongPassword(t *testing.T) {
	router := newUserRouter(newFakeUserRepo())

	require.Equal(t, http.StatusCreated, postJSON(t, router, "/api/users/register", map[string]string{
		"name": "Ann", "email": "a@x.com", "password": "secret1",
	}).Code)

	rec := postJSON(t, router, "/api/users/login", map[string]string{
		"email":    "a@x.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	router := newUserRouter(newFakeUserRepo())

	rec := postJSON(t, router, "/api/users/login", map[string]string{
		"email":    "nobody@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
