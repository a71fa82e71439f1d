package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// UserHandler serves user HTTP endpoints directly over the user store.
type UserHandler struct {
	users  domain.UserStore
	logger *slog.Logger
	now    func() time.Time
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users domain.UserStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// ListUsers returns registered users.
// GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list users failed", slog.Any("error", err))
		writeDomainError(w, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// GetUser returns a user by ID.
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// createUserRequest is the JSON body for registering a user.
type createUserRequest struct {
	Username  string            `json:"username"`
	Addresses map[string]string `json:"addresses"`
}

// CreateUser registers a new user.
// POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	now := h.now().UTC()
	u := domain.User{
		ID:              uuid.NewString(),
		Username:        req.Username,
		Addresses:       req.Addresses,
		ReputationScore: 50,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := u.ValidateUsername(); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.users.Create(r.Context(), u); err != nil {
		if !domain.IsValidation(err) {
			h.logger.ErrorContext(r.Context(), "create user failed", slog.Any("error", err))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ReputationHistory returns the user's audited reputation events, newest
// first.
// GET /api/users/{id}/reputation
func (h *UserHandler) ReputationHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	// Existence check so an unknown user yields 404 rather than an empty list.
	if _, err := h.users.GetByID(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	events, err := h.users.ReputationHistory(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []domain.ReputationEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
