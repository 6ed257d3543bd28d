package savings

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/httpx"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// Handler exposes the student savings ledger.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches savings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/deposits", h.Deposit)
	r.Post("/withdrawals", h.Withdraw)
	r.Post("/deposits/bulk", h.BulkDeposit)
	r.Post("/withdrawals/bulk", h.BulkWithdraw)
	r.Get("/students/{id}/balance", h.Balance)
	r.Get("/history", h.History)
}

type movementRequest struct {
	StudentID   string `json:"student_id" validate:"required,uuid4"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
	EvidenceRef string `json:"evidence_ref"`
	AccountID   string `json:"account_id"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	req, input, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Deposit(r.Context(), DepositInput{
		StudentID:   input.studentID,
		Kind:        Kind(req.Kind),
		Amount:      input.amount,
		Description: req.Description,
		Notes:       req.Notes,
		EvidenceRef: req.EvidenceRef,
		AccountID:   input.accountID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSavingsResponse(entry))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, input, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Withdraw(r.Context(), WithdrawInput{
		StudentID:   input.studentID,
		Amount:      input.amount,
		Description: req.Description,
		Notes:       req.Notes,
		AccountID:   input.accountID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSavingsResponse(entry))
}

type bulkRequest struct {
	StudentIDs  []string `json:"student_ids" validate:"required,min=1,dive,uuid4"`
	Amount      string   `json:"amount" validate:"required"`
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
}

func (h *Handler) BulkDeposit(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.service.BulkDeposit)
}

func (h *Handler) BulkWithdraw(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.service.BulkWithdraw)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, input BulkInput) (BulkResult, error)) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	studentIDs := make([]uuid.UUID, 0, len(req.StudentIDs))
	for _, raw := range req.StudentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
			return
		}
		studentIDs = append(studentIDs, id)
	}
	result, err := op(r.Context(), BulkInput{
		StudentIDs:  studentIDs,
		Amount:      amount,
		Description: req.Description,
		Kind:        Kind(req.Kind),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	succeeded := make([]savingsResponse, 0, len(result.Succeeded))
	for _, entry := range result.Succeeded {
		succeeded = append(succeeded, toSavingsResponse(entry))
	}
	failed := make([]map[string]any, 0, len(result.Failed))
	for _, f := range result.Failed {
		failed = append(failed, map[string]any{
			"student_id": f.StudentID.String(),
			"reason":     f.Reason,
		})
	}
	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, map[string]any{"succeeded": succeeded, "failed": failed})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
		return
	}
	balance, err := h.service.Balance(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"student_id":      id.String(),
		"balance":         balance.String(),
		"balance_display": shared.FormatRupiah(balance),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter HistoryFilter
	if raw := q.Get("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
			return
		}
		filter.StudentID = &id
	}
	if raw := q.Get("kind"); raw != "" {
		kind := Kind(raw)
		if !kind.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", ErrUnknownKind.Error())
			return
		}
		filter.Kind = &kind
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = &to
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	entries, page, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]savingsResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toSavingsResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": items, "pagination": page})
}

type decodedMovement struct {
	studentID uuid.UUID
	amount    decimal.Decimal
	accountID *uuid.UUID
}

func (h *Handler) decodeMovement(w http.ResponseWriter, r *http.Request) (movementRequest, decodedMovement, bool) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return req, decodedMovement{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, decodedMovement{}, false
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
		return req, decodedMovement{}, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return req, decodedMovement{}, false
	}
	out := decodedMovement{studentID: studentID, amount: amount}
	if req.AccountID != "" {
		accountID, err := uuid.Parse(req.AccountID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
			return req, decodedMovement{}, false
		}
		out.accountID = &accountID
	}
	return req, out, true
}

type savingsResponse struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	StudentID     string `json:"student_id"`
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	Description   string `json:"description,omitempty"`
	Notes         string `json:"notes,omitempty"`
	EvidenceRef   string `json:"evidence_ref,omitempty"`
	AccountID     string `json:"account_id,omitempty"`
	OperatorRef   string `json:"operator_ref,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toSavingsResponse(e SavingsEntry) savingsResponse {
	resp := savingsResponse{
		ID:            e.ID.String(),
		Seq:           e.Seq,
		StudentID:     e.StudentID.String(),
		Kind:          string(e.Kind),
		Amount:        e.Amount.String(),
		BalanceBefore: e.BalanceBefore.String(),
		BalanceAfter:  e.BalanceAfter.String(),
		Description:   e.Description,
		Notes:         e.Notes,
		EvidenceRef:   e.EvidenceRef,
		OperatorRef:   e.OperatorRef,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
	if e.AccountID != nil {
		resp.AccountID = e.AccountID.String()
	}
	return resp
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidAmount),
		errors.Is(err, ErrUnknownKind),
		errors.Is(err, ErrEmptyBatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrStudentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	case errors.Is(err, db.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("savings handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
