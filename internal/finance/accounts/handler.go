package accounts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pesantren-erp/pesantren-erp/internal/platform/httpx"
)

// Handler exposes the cash account registry.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
}

type createRequest struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Unit      string `json:"managing_unit" validate:"required,oneof=GENERAL COOPERATIVE OTHER"`
	IsDefault bool   `json:"is_default"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acct, err := h.service.Create(r.Context(), CreateInput{
		Code:      req.Code,
		Name:      req.Name,
		Unit:      ManagingUnit(req.Unit),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(acct))
}

type updateRequest struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Unit      string `json:"managing_unit" validate:"required,oneof=GENERAL COOPERATIVE OTHER"`
	Active    bool   `json:"active"`
	IsDefault bool   `json:"is_default"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acct, err := h.service.Update(r.Context(), UpdateInput{
		ID:        id,
		Code:      req.Code,
		Name:      req.Name,
		Unit:      ManagingUnit(req.Unit),
		Active:    req.Active,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(acct))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	acct, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(acct))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	accts, err := h.service.List(r.Context(), onlyActive)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]accountResponse, 0, len(accts))
	for _, acct := range accts {
		items = append(items, toAccountResponse(acct))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": items})
}

type accountResponse struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Unit           string `json:"managing_unit"`
	Active         bool   `json:"active"`
	IsDefault      bool   `json:"is_default"`
	CurrentBalance string `json:"current_balance"`
}

func toAccountResponse(a CashAccount) accountResponse {
	return accountResponse{
		ID:             a.ID.String(),
		Code:           a.Code,
		Name:           a.Name,
		Unit:           string(a.Unit),
		Active:         a.Active,
		IsDefault:      a.IsDefault,
		CurrentBalance: a.Balance.String(),
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownUnit):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrNoDefaultAccount):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateDefault):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("accounts handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
