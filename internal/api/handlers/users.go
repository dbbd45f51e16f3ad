package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/core"
	"agriweather/internal/types"
)

// UserStore is the user data access used by UserHandler. Mirrors
// db.UserRepository.
type UserStore interface {
	Create(ctx context.Context, u *types.User) error
	GetByID(ctx context.Context, id string) (*types.User, error)
	SetBlocked(ctx context.Context, id string, blocked bool) error
	SetSMSOptOut(ctx context.Context, id string, optOut bool) error
}

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone_number,omitempty" validate:"omitempty,e164"`
}

// OptOutRequest is the body of PUT /v1/users/{userID}/sms-opt-out.
type OptOutRequest struct {
	OptOut *bool `json:"opt_out" validate:"required"`
}

// BlockRequest is the body of PUT /v1/users/{userID}/blocked.
type BlockRequest struct {
	Blocked *bool `json:"blocked" validate:"required"`
}

// UserHandler serves user registration and messaging preferences.
type UserHandler struct {
	users     UserStore
	validator *core.Validator
	admin     func(http.Handler) http.Handler
	logger    *slog.Logger
}

// NewUserHandler creates a UserHandler. admin guards the operator-only
// routes; it is normally core.Server.AdminOnly.
func NewUserHandler(users UserStore, val *core.Validator, admin func(http.Handler) http.Handler, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		users:     users,
		validator: val,
		admin:     admin,
		logger:    logger,
	}
}

// RegisterRoutes mounts the user endpoints. Paths are relative to /v1.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.HandleCreate)
	r.Get("/users/{userID}", h.HandleGet)
	r.Put("/users/{userID}/sms-opt-out", h.HandleSetOptOut)
	r.With(h.admin).Put("/users/{userID}/blocked", h.HandleSetBlocked)
}

// HandleCreate handles POST /v1/users.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user := &types.User{Name: req.Name, Phone: req.Phone}
	if err := h.users.Create(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: user})
}

// HandleGet handles GET /v1/users/{userID}.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// HandleSetOptOut handles PUT /v1/users/{userID}/sms-opt-out.
func (h *UserHandler) HandleSetOptOut(w http.ResponseWriter, r *http.Request) {
	var req OptOutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.users.SetSMSOptOut(r.Context(), userID, *req.OptOut); err != nil {
		core.Error(w, r, err)
		return
	}
	h.respondUser(w, r, userID)
}

// HandleSetBlocked handles PUT /v1/users/{userID}/blocked.
func (h *UserHandler) HandleSetBlocked(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.users.SetBlocked(r.Context(), userID, *req.Blocked); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user block state changed",
		"user_id", userID, "blocked", *req.Blocked)
	h.respondUser(w, r, userID)
}

func (h *UserHandler) respondUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}
