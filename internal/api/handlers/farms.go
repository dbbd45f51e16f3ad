package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/core"
	"agriweather/internal/types"
)

// FarmStore is the farm data access used by FarmHandler. Mirrors
// db.FarmRepository.
type FarmStore interface {
	Create(ctx context.Context, f *types.Farm) error
	GetByID(ctx context.Context, id string) (*types.Farm, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*types.Farm, error)
	UpdateDetails(ctx context.Context, f *types.Farm) error
	SetLocation(ctx context.Context, id string, c types.Coordinate) (*types.Farm, error)
	UnsetLocation(ctx context.Context, id string) (*types.Farm, error)
}

// UserReader loads a single user.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// LocationRequest is the body of PUT /v1/farms/{farmID}/location.
type LocationRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lon *float64 `json:"lon" validate:"required,longitude"`
}

func (l *LocationRequest) coordinate() types.Coordinate {
	return types.Coordinate{Lat: *l.Lat, Lon: *l.Lon}
}

// FarmDetails are the registration fields a client may set.
type FarmDetails struct {
	Name         string            `json:"name" validate:"required,max=100"`
	Product      types.ProductType `json:"product" validate:"required,product"`
	Province     string            `json:"province,omitempty" validate:"max=100"`
	City         string            `json:"city,omitempty" validate:"max=100"`
	Village      string            `json:"village,omitempty" validate:"max=100"`
	AreaHectares *float64          `json:"area_hectares,omitempty" validate:"omitempty,gt=0"`
}

func (d FarmDetails) apply(f *types.Farm) {
	f.Name = d.Name
	f.Product = d.Product
	f.Province = d.Province
	f.City = d.City
	f.Village = d.Village
	f.AreaHectares = d.AreaHectares
}

// CreateFarmRequest is the body of POST /v1/farms. The location may be
// registered later.
type CreateFarmRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
	FarmDetails
	Location *LocationRequest `json:"location,omitempty"`
}

// FarmResponse is a farm with its registration progress.
type FarmResponse struct {
	*types.Farm
	NextStep     types.RegistrationStep   `json:"next_step"`
	MissingSteps []types.RegistrationStep `json:"missing_steps,omitempty"`
}

func newFarmResponse(f *types.Farm) FarmResponse {
	return FarmResponse{
		Farm:         f,
		NextStep:     types.NextRegistrationStep(f),
		MissingSteps: types.MissingRegistrationSteps(f),
	}
}

// FarmHandler serves farm registration.
type FarmHandler struct {
	farms     FarmStore
	users     UserReader
	validator *core.Validator
	logger    *slog.Logger
}

// NewFarmHandler creates a FarmHandler.
func NewFarmHandler(farms FarmStore, users UserReader, val *core.Validator, logger *slog.Logger) *FarmHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FarmHandler{
		farms:     farms,
		users:     users,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the farm endpoints. Paths are relative to /v1.
func (h *FarmHandler) RegisterRoutes(r chi.Router) {
	r.Post("/farms", h.HandleCreate)
	r.Get("/farms", h.HandleList)
	r.Get("/farms/{farmID}", h.HandleGet)
	r.Put("/farms/{farmID}", h.HandleUpdate)
	r.Put("/farms/{farmID}/location", h.HandleSetLocation)
	r.Delete("/farms/{farmID}/location", h.HandleUnsetLocation)
}

// HandleCreate handles POST /v1/farms.
func (h *FarmHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateFarmRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.users.GetByID(r.Context(), req.OwnerID); err != nil {
		core.Error(w, r, err)
		return
	}

	farm := &types.Farm{OwnerID: req.OwnerID}
	req.FarmDetails.apply(farm)
	if req.Location != nil {
		c := req.Location.coordinate()
		farm.Location = &c
		h.warnOutsideServiceArea(r, "", c)
	}

	if err := h.farms.Create(r.Context(), farm); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "farm registered",
		"farm_id", farm.ID, "owner_id", farm.OwnerID, "status", farm.Status)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: newFarmResponse(farm)})
}

// HandleList handles GET /v1/farms?owner_id=.
func (h *FarmHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"owner_id query parameter is required",
			nil,
		))
		return
	}

	farms, err := h.farms.ListByOwner(r.Context(), ownerID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	out := make([]FarmResponse, 0, len(farms))
	for _, f := range farms {
		out = append(out, newFarmResponse(f))
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: out})
}

// HandleGet handles GET /v1/farms/{farmID}.
func (h *FarmHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	farm, err := h.farms.GetByID(r.Context(), chi.URLParam(r, "farmID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newFarmResponse(farm)})
}

// HandleUpdate handles PUT /v1/farms/{farmID}. The location is left alone.
func (h *FarmHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req FarmDetails
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	farm, err := h.farms.GetByID(r.Context(), chi.URLParam(r, "farmID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	req.apply(farm)
	if err := h.farms.UpdateDetails(r.Context(), farm); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newFarmResponse(farm)})
}

// HandleSetLocation handles PUT /v1/farms/{farmID}/location.
func (h *FarmHandler) HandleSetLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	farmID := chi.URLParam(r, "farmID")
	c := req.coordinate()
	h.warnOutsideServiceArea(r, farmID, c)

	farm, err := h.farms.SetLocation(r.Context(), farmID, c)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newFarmResponse(farm)})
}

// HandleUnsetLocation handles DELETE /v1/farms/{farmID}/location.
func (h *FarmHandler) HandleUnsetLocation(w http.ResponseWriter, r *http.Request) {
	farm, err := h.farms.UnsetLocation(r.Context(), chi.URLParam(r, "farmID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newFarmResponse(farm)})
}

// warnOutsideServiceArea accepts the coordinate but logs it, since no point
// file will cover it and every report will fail with no_nearby_point.
func (h *FarmHandler) warnOutsideServiceArea(r *http.Request, farmID string, c types.Coordinate) {
	if types.InServiceArea(c) {
		return
	}
	h.logger.WarnContext(r.Context(), "farm location outside service area",
		"farm_id", farmID, "location", c.String())
}
