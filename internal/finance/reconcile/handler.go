package reconcile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/httpx"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// Handler exposes balance reads, recomputes and reconciliations.
type Handler struct {
	engine   *Engine
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{engine: engine, logger: logger, validate: validator.New()}
}

// MountRoutes attaches balance routes under the accounts subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/balance", h.Balance)
	r.Post("/{id}/balance/recompute", h.Recompute)
	r.Post("/{id}/balance/adjust", h.Adjust)
	r.Get("/drift", h.Drift)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	balance, err := h.engine.Balance(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id":      id.String(),
		"balance":         balance.String(),
		"balance_display": shared.FormatRupiah(balance),
	})
}

func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	balance, err := h.engine.Recompute(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id": id.String(),
		"balance":    balance.String(),
	})
}

type adjustRequest struct {
	ActualBalance string `json:"actual_balance" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actual, err := decimal.NewFromString(req.ActualBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	entry, err := h.engine.Adjust(r.Context(), id, actual, req.Reason, "")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if entry.ID == uuid.Nil {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"adjusted": false,
			"detail":   "recorded balance already matches the count",
		})
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"adjusted":  true,
		"entry_id":  entry.ID.String(),
		"direction": string(entry.Direction),
		"amount":    entry.Amount.String(),
		"delta":     entry.Signed().String(),
	})
}

func (h *Handler) Drift(w http.ResponseWriter, r *http.Request) {
	fix := r.URL.Query().Get("fix") == "true"
	drifts, err := h.engine.VerifyAll(r.Context(), fix)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(drifts))
	for _, d := range drifts {
		items = append(items, map[string]any{
			"account_id": d.AccountID.String(),
			"recorded":   d.Recorded.String(),
			"computed":   d.Computed.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fixed": fix, "drifts": items})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReasonRequired), errors.Is(err, shared.ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, accounts.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, db.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("reconcile handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
