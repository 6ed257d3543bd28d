package journal

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
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/httpx"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// Handler exposes journal operations to the UI layer.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Post)
	r.Get("/cashflow", h.Cashflow)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/void", h.Void)
}

type postRequest struct {
	AccountID    string `json:"account_id" validate:"required,uuid4"`
	Date         string `json:"date"`
	Direction    string `json:"direction" validate:"required,oneof=INCOME EXPENSE"`
	Category     string `json:"category" validate:"required"`
	SubCategory  string `json:"sub_category"`
	Amount       string `json:"amount" validate:"required"`
	Description  string `json:"description"`
	Counterparty string `json:"counterparty"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrInvalidAmount.Error())
		return
	}
	input := PostInput{
		AccountID:    accountID,
		Direction:    Direction(req.Direction),
		Category:     Category(req.Category),
		SubCategory:  req.SubCategory,
		Amount:       amount,
		Description:  req.Description,
		Counterparty: req.Counterparty,
	}
	if req.Date != "" {
		date, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date")
			return
		}
		input.Date = date
	}
	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Void(r.Context(), VoidInput{EntryID: entryID, Reason: req.Reason})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    items,
		"pagination": page,
	})
}

func (h *Handler) Cashflow(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
		return
	}
	summary, err := h.service.Cashflow(r.Context(), from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	categories := make([]map[string]any, 0, len(summary.Categories))
	for _, ct := range summary.Categories {
		categories = append(categories, map[string]any{
			"category": ct.Category,
			"income":   ct.Income.String(),
			"expense":  ct.Expense.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"from":          summary.From.Format("2006-01-02"),
		"to":            summary.To.Format("2006-01-02"),
		"total_income":  summary.TotalIncome.String(),
		"total_expense": summary.TotalExpense.String(),
		"net":           summary.Net.String(),
		"net_display":   shared.FormatRupiah(summary.Net),
		"categories":    categories,
	})
}

type entryResponse struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	Direction    string  `json:"direction"`
	Category     string  `json:"category"`
	SubCategory  string  `json:"sub_category,omitempty"`
	Amount       string  `json:"amount"`
	Description  string  `json:"description,omitempty"`
	Counterparty string  `json:"counterparty,omitempty"`
	AccountID    string  `json:"account_id"`
	Status       string  `json:"status"`
	AutoPosted   bool    `json:"auto_posted"`
	CreatedBy    string  `json:"created_by,omitempty"`
	VoidReason   *string `json:"void_reason,omitempty"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	return entryResponse{
		ID:           e.ID.String(),
		Date:         e.Date.Format(time.RFC3339),
		Direction:    string(e.Direction),
		Category:     string(e.Category),
		SubCategory:  e.SubCategory,
		Amount:       e.Amount.String(),
		Description:  e.Description,
		Counterparty: e.Counterparty,
		AccountID:    e.AccountID.String(),
		Status:       string(e.Status),
		AutoPosted:   e.AutoPosted,
		CreatedBy:    e.CreatedBy,
		VoidReason:   e.VoidReason,
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var filter ListFilter
	if raw := q.Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ListFilter{}, errors.New("invalid account id")
		}
		filter.AccountID = &id
	}
	if raw := q.Get("direction"); raw != "" {
		direction := Direction(raw)
		if !direction.Valid() {
			return ListFilter{}, ErrUnknownDirection
		}
		filter.Direction = &direction
	}
	if raw := q.Get("category"); raw != "" {
		category := Category(raw)
		if !category.Valid() {
			return ListFilter{}, ErrUnknownCategory
		}
		filter.Category = &category
	}
	if raw := q.Get("from"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			return ListFilter{}, errors.New("invalid from date")
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			return ListFilter{}, errors.New("invalid to date")
		}
		filter.To = &to
	}
	filter.Page = atoiDefault(q.Get("page"), 1)
	filter.PerPage = atoiDefault(q.Get("per_page"), 20)
	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("date required")
	}
	return time.Parse("2006-01-02", raw)
}

func atoiDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	var n int
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var pending *shared.PendingProfitSharingError
	switch {
	case errors.As(err, &pending):
		httpx.Problem(w, http.StatusConflict, "Profit Sharing Pending", pending.Error())
	case errors.Is(err, shared.ErrInvalidAmount),
		errors.Is(err, ErrUnknownCategory),
		errors.Is(err, ErrUnknownDirection),
		errors.Is(err, ErrReservedCategory),
		errors.Is(err, ErrVoidReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInactiveAccount), errors.Is(err, ErrEntryAlreadyVoid):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, accounts.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, db.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("journal handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
