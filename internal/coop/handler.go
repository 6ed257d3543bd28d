package coop

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/inventory"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/httpx"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// Handler exposes transfer and profit-sharing operations.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches coop routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.ListTransfers)
		r.Post("/", h.RequestTransfer)
		r.Get("/{id}", h.GetTransfer)
		r.Post("/{id}/approve", h.ApproveTransfer)
		r.Post("/{id}/reject", h.RejectTransfer)
		r.Post("/{id}/complete", h.CompleteTransfer)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Post("/", h.RecordSale)
		r.Get("/undetermined", h.ListUndetermined)
		r.Get("/{id}", h.GetSale)
		r.Post("/{id}/split", h.RecordSplit)
	})
	r.Get("/debt-settlement", h.DebtSettlement)
}

type requestTransferRequest struct {
	ItemID      string `json:"item_id" validate:"required,uuid4"`
	Destination string `json:"destination" validate:"required"`
	Qty         string `json:"qty" validate:"required"`
	Condition   string `json:"condition"`
	Notes       string `json:"notes"`
}

func (h *Handler) RequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req requestTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	transfer, err := h.service.RequestTransfer(r.Context(), RequestInput{
		ItemID:      itemID,
		Destination: Destination(req.Destination),
		Qty:         qty,
		Condition:   req.Condition,
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransferResponse(transfer))
}

type approveRequest struct {
	UnitCostBasis string `json:"unit_cost_basis" validate:"required"`
}

func (h *Handler) ApproveTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "invalid transfer id")
	if !ok {
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	costBasis, err := decimal.NewFromString(req.UnitCostBasis)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	transfer, err := h.service.ApproveTransfer(r.Context(), id, costBasis)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(transfer))
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) RejectTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "invalid transfer id")
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	transfer, err := h.service.RejectTransfer(r.Context(), id, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) CompleteTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "invalid transfer id")
	if !ok {
		return
	}
	transfer, err := h.service.CompleteTransfer(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "invalid transfer id")
	if !ok {
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	var status *TransferStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := TransferStatus(raw)
		switch s {
		case TransferPending, TransferApproved, TransferRejected, TransferCompleted:
			status = &s
		default:
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown transfer status")
			return
		}
	}
	transfers, err := h.service.ListTransfers(r.Context(), status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		items = append(items, toTransferResponse(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": items})
}

type saleRequest struct {
	ItemID     string `json:"item_id" validate:"required,uuid4"`
	TransferID string `json:"transfer_id"`
	Channel    string `json:"channel" validate:"required,oneof=INVENTORY COOPERATIVE"`
	Qty        string `json:"qty" validate:"required"`
	UnitPrice  string `json:"unit_price" validate:"required"`
}

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	input := SaleInput{
		ItemID:    itemID,
		Channel:   SaleChannel(req.Channel),
		Qty:       qty,
		UnitPrice: unitPrice,
	}
	if req.TransferID != "" {
		transferID, err := uuid.Parse(req.TransferID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
			return
		}
		input.TransferID = &transferID
	}
	sale, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSaleResponse(sale))
}

type splitRequest struct {
	FoundationShare string `json:"foundation_share" validate:"required"`
	CoopShare       string `json:"coop_share" validate:"required"`
}

func (h *Handler) RecordSplit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "invalid sale id")
	if !ok {
		return
	}
	var req splitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	foundationShare, err := decimal.NewFromString(req.FoundationShare)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	coopShare, err := decimal.NewFromString(req.CoopShare)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	sale, err := h.service.RecordProfitSplit(r.Context(), id, foundationShare, coopShare)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "invalid sale id")
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) ListUndetermined(w http.ResponseWriter, r *http.Request) {
	sales, err := h.service.ListUndeterminedSales(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]saleResponse, 0, len(sales))
	for _, sale := range sales {
		items = append(items, toSaleResponse(sale))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": items})
}

func (h *Handler) DebtSettlement(w http.ResponseWriter, r *http.Request) {
	blocked, reasons, err := h.service.DebtSettlementBlocked(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if reasons == nil {
		reasons = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"blocked": blocked, "reasons": reasons})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, detail string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return uuid.Nil, false
	}
	return id, true
}

type transferResponse struct {
	ID            string  `json:"id"`
	ItemID        string  `json:"item_id"`
	Destination   string  `json:"destination"`
	Qty           string  `json:"qty"`
	Status        string  `json:"status"`
	UnitCostBasis *string `json:"unit_cost_basis,omitempty"`
	Condition     string  `json:"condition,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	RequestedBy   string  `json:"requested_by,omitempty"`
	DecidedBy     string  `json:"decided_by,omitempty"`
	RejectReason  *string `json:"reject_reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func toTransferResponse(t Transfer) transferResponse {
	resp := transferResponse{
		ID:           t.ID.String(),
		ItemID:       t.ItemID.String(),
		Destination:  string(t.Destination),
		Qty:          t.Qty.String(),
		Status:       string(t.Status),
		Condition:    t.Condition,
		Notes:        t.Notes,
		RequestedBy:  t.RequestedBy,
		DecidedBy:    t.DecidedBy,
		RejectReason: t.RejectReason,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}
	if t.UnitCostBasis != nil {
		s := t.UnitCostBasis.String()
		resp.UnitCostBasis = &s
	}
	return resp
}

type saleResponse struct {
	ID              string  `json:"id"`
	ItemID          string  `json:"item_id"`
	TransferID      *string `json:"transfer_id,omitempty"`
	Channel         string  `json:"channel"`
	Qty             string  `json:"qty"`
	UnitPrice       string  `json:"unit_price"`
	Total           string  `json:"total"`
	CostBasis       *string `json:"cost_basis,omitempty"`
	FoundationShare *string `json:"foundation_share,omitempty"`
	CoopShare       *string `json:"coop_share,omitempty"`
	Undetermined    bool    `json:"undetermined"`
	SettledAt       *string `json:"settled_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func toSaleResponse(s Sale) saleResponse {
	resp := saleResponse{
		ID:           s.ID.String(),
		ItemID:       s.ItemID.String(),
		Channel:      string(s.Channel),
		Qty:          s.Qty.String(),
		UnitPrice:    s.UnitPrice.String(),
		Total:        s.Total.String(),
		Undetermined: s.Undetermined(),
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
	if s.TransferID != nil {
		v := s.TransferID.String()
		resp.TransferID = &v
	}
	if s.CostBasis != nil {
		v := s.CostBasis.String()
		resp.CostBasis = &v
	}
	if s.FoundationShare != nil {
		v := s.FoundationShare.String()
		resp.FoundationShare = &v
	}
	if s.CoopShare != nil {
		v := s.CoopShare.String()
		resp.CoopShare = &v
	}
	if s.SettledAt != nil {
		v := s.SettledAt.Format(time.RFC3339)
		resp.SettledAt = &v
	}
	return resp
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidAmount),
		errors.Is(err, ErrUnknownDestination),
		errors.Is(err, ErrUnknownChannel),
		errors.Is(err, ErrRejectReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrTransferNotFound),
		errors.Is(err, ErrSaleNotFound),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, accounts.ErrAccountNotFound),
		errors.Is(err, accounts.ErrNoDefaultAccount):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrCostBasisRequired),
		errors.Is(err, ErrSplitMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	case errors.Is(err, ErrAlreadySettled), errors.Is(err, db.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("coop handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
