package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/orderdesk/api/internal/auth"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/middleware"
	"golang.org/x/crypto/bcrypt"
)

// UserStore defines the database methods needed by auth handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
}

// SessionManager issues and revokes login sessions.
// Satisfied by *auth.Sessions.
type SessionManager interface {
	Create(ctx context.Context, userID uuid.UUID, username string) (string, *auth.Principal, error)
	Revoke(ctx context.Context, token string) error
	TTL() time.Duration
}

// AuthHandler handles login, logout and session status.
type AuthHandler struct {
	store        UserStore
	sessions     SessionManager
	secureCookie bool
	log          *logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store UserStore, sessions SessionManager, secureCookie bool, log *logger.Logger) *AuthHandler {
	return &AuthHandler{store: store, sessions: sessions, secureCookie: secureCookie, log: log}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/me", h.Me)
}

// --- Request / Response types ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type meResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	Username string `json:"username,omitempty"`
}

// --- Handlers ---

// Login handles POST /api/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		h.log.Error(r.Context(), "load user", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Database error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	token, _, err := h.sessions.Create(r.Context(), user.ID, user.Username)
	if err != nil {
		h.log.Error(r.Context(), "create session", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	http.SetCookie(w, h.sessionCookie(token, h.sessions.TTL()))
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Login successful",
		"username": user.Username,
	})
}

// Logout handles POST /api/logout. It always clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			h.log.Error(r.Context(), "revoke session", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Logout failed"})
			return
		}
	}

	http.SetCookie(w, h.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		writeJSON(w, http.StatusOK, meResponse{LoggedIn: false})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{LoggedIn: true, Username: principal.Username})
}

// sessionCookie builds the session cookie. A negative ttl deletes it.
func (h *AuthHandler) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}
	c.MaxAge = int(ttl.Seconds())
	c.Expires = time.Now().Add(ttl)
	return c
}

// writeJSON sends v with the given status. The status line is already out
// when encoding fails, so an encode error leaves the body short.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
