package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/diagnosis/refcheck/internal/http/response"
	"github.com/diagnosis/refcheck/pkg/auth"
	"github.com/diagnosis/refcheck/pkg/logger"
)

type AuthHandler struct {
	Users    *auth.Directory
	Secret   string
	TTL      time.Duration
	validate *validator.Validate
}

func NewAuthHandler(users *auth.Directory, secret string, ttl time.Duration) *AuthHandler {
	return &AuthHandler{Users: users, Secret: secret, TTL: ttl, validate: newValidator()}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)
	return r
}

type loginIn struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in loginIn
	if !decode(w, r, &in) || !check(w, h.validate, &in) {
		return
	}

	u, err := h.Users.Authenticate(in.Email, in.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		response.Unauthorized(w, "Invalid email or password")
		return
	}
	if err != nil {
		internalError(w, r, "Login failed", err)
		return
	}

	token, err := auth.NewAccessToken(u, h.Secret, h.TTL)
	if err != nil {
		internalError(w, r, "Failed to sign session token", err)
		return
	}

	logger.InfoContext(r.Context(), "Corporate user signed in", "user_id", u.ID)
	response.JSON(w, http.StatusOK, map[string]any{
		"session_token": token,
		"expires_in":    int64(h.TTL.Seconds()),
		"user":          u,
	})
}
