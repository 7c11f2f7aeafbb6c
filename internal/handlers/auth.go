package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/elibrary/apiserver/internal/apperr"
	"github.com/elibrary/apiserver/internal/auth"
	"github.com/elibrary/apiserver/internal/services"
	"github.com/elibrary/apiserver/internal/store"
	"github.com/elibrary/apiserver/types"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// UserHandler provides the registration and login endpoints.
type UserHandler struct {
	userService *services.UserService
	secret      []byte
	dev         bool
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService, jwtSecret string, dev bool) *UserHandler {
	return &UserHandler{
		userService: userService,
		secret:      []byte(jwtSecret),
		dev:         dev,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService, jwtSecret string, dev bool) {
	handler := NewUserHandler(userService, jwtSecret, dev)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
}

// RequireAuth constructs bearer-token middleware that injects the
// verified user ID into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, err := auth.ParseTokenSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account and returns a session token.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.Dependency, "failed to create user", err), h.dev)
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeAppError(w, apperr.New(apperr.Conflict, "user already exists with this email"), h.dev)
			return
		}
		writeAppError(w, apperr.Wrap(apperr.Dependency, "failed to create user", err), h.dev)
		return
	}

	token, err := auth.IssueToken(user.ID, h.secret, auth.TokenTTL)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.Dependency, "failed to create token", err), h.dev)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{AccessToken: token})
}

// Login verifies credentials and returns a session token.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeAppError(w, apperr.New(apperr.NotFound, "user not found"), h.dev)
			return
		}
		writeAppError(w, apperr.Wrap(apperr.Dependency, "failed to authenticate", err), h.dev)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeAppError(w, apperr.New(apperr.Authentication, "username or password incorrect"), h.dev)
		return
	}

	token, err := auth.IssueToken(user.ID, h.secret, auth.TokenTTL)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.Dependency, "failed to create token", err), h.dev)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{AccessToken: token})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the signed session token.
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
