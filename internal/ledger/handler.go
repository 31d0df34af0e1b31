package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-promo/atlas-promo/internal/platform/httpx"
	"github.com/atlas-promo/atlas-promo/internal/shared"
)

// Handler manages the ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}/{obligationID}/installments", h.listInstallments)
	r.Post("/{kind}/{obligationID}/installments", h.createInstallment)
	r.Get("/{kind}/{obligationID}/receipt", h.showReceipt)
	r.Put("/installments/{id}", h.updateInstallment)
	r.Delete("/installments/{id}", h.deleteInstallment)
}

type settlementRequest struct {
	DueDate           *time.Time `json:"due_date"`
	ScheduledAmount   float64    `json:"scheduled_amount" validate:"gte=0"`
	PaidAmount        float64    `json:"paid_amount" validate:"gte=0"`
	DeclaredAmount    float64    `json:"declared_amount" validate:"gte=0"`
	UndeclaredAmount  float64    `json:"undeclared_amount" validate:"gte=0"`
	PaymentDate       *time.Time `json:"payment_date"`
	Mode              string     `json:"mode" validate:"required,oneof=cash check cash_and_check transfer"`
	CashAmount        float64    `json:"cash_amount" validate:"gte=0"`
	CheckAmount       float64    `json:"check_amount" validate:"gte=0"`
	Status            string     `json:"status" validate:"omitempty,oneof=pending paid late cancelled"`
	RepresentsAdvance bool       `json:"represents_advance"`
	Notes             string     `json:"notes"`
}

type instrumentRequest struct {
	ID            int64      `json:"id"`
	Number        string     `json:"number" validate:"required"`
	PayerName     string     `json:"payer_name"`
	PayeeName     string     `json:"payee_name"`
	IssueDate     *time.Time `json:"issue_date"`
	ClearanceDate *time.Time `json:"clearance_date"`
	Amount        float64    `json:"amount" validate:"gt=0"`
	Status        string     `json:"status" validate:"omitempty,oneof=issued cleared cancelled"`
	Description   string     `json:"description"`
}

type installmentRequest struct {
	Settlement  settlementRequest   `json:"settlement"`
	Instruments []instrumentRequest `json:"instruments" validate:"dive"`
}

type installmentResponse struct {
	Installment EntryView               `json:"installment"`
	Instruments []Instrument            `json:"instruments,omitempty"`
	Failures    []ReconciliationFailure `json:"reconciliation_failures,omitempty"`
}

func (h *Handler) listInstallments(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	kind, obligationID, ok := h.parseKindAndParent(w, r)
	if !ok {
		return
	}

	view, err := h.service.ListInstallments(r.Context(), kind, obligationID, identity.UserID)
	if err != nil {
		h.logFailure("list installments", err, slog.Int64("obligation_id", obligationID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) createInstallment(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	kind, obligationID, ok := h.parseKindAndParent(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeInstallmentRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.CreateInstallment(r.Context(), CreateInstallmentInput{
		Kind:         kind,
		ObligationID: obligationID,
		OwnerID:      identity.UserID,
		ActorID:      identity.UserID,
		Settlement:   req.settlement(),
		Instruments:  req.instruments(),
	})
	if err != nil {
		h.logFailure("create installment", err, slog.Int64("obligation_id", obligationID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, installmentResponseFrom(result))
}

func (h *Handler) updateInstallment(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := h.parseInstallmentID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeInstallmentRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.UpdateInstallment(r.Context(), UpdateInstallmentInput{
		InstallmentID: id,
		OwnerID:       identity.UserID,
		ActorID:       identity.UserID,
		Settlement:    req.settlement(),
		Instruments:   req.instruments(),
	})
	if err != nil {
		h.logFailure("update installment", err, slog.Int64("installment_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, installmentResponseFrom(result))
}

func (h *Handler) deleteInstallment(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := h.parseInstallmentID(w, r)
	if !ok {
		return
	}

	result, err := h.service.DeleteInstallment(r.Context(), DeleteInstallmentInput{
		InstallmentID: id,
		OwnerID:       identity.UserID,
		ActorID:       identity.UserID,
	})
	if err != nil {
		h.logFailure("delete installment", err, slog.Int64("installment_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) showReceipt(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	kind, obligationID, ok := h.parseKindAndParent(w, r)
	if !ok {
		return
	}

	view, err := h.service.ListInstallments(r.Context(), kind, obligationID, identity.UserID)
	if err != nil {
		h.logFailure("build receipt", err, slog.Int64("obligation_id", obligationID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, BuildReceipt(view))
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	identity := shared.IdentityFromContext(r.Context())
	if identity.UserID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Identity{}, false
	}
	return identity, true
}

func (h *Handler) parseKindAndParent(w http.ResponseWriter, r *http.Request) (ObligationKind, int64, bool) {
	kind, ok := kindFromPath(chi.URLParam(r, "kind"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown ledger side")
		return "", 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "obligationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid obligation id")
		return "", 0, false
	}
	return kind, id, true
}

// parseInstallmentID rejects virtual entry ids before they reach the
// service, whose API cannot represent them.
func (h *Handler) parseInstallmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	if strings.HasPrefix(raw, VirtualEntryPrefix) {
		h.respondError(w, ErrImmutableVirtual)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid installment id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeInstallmentRequest(w http.ResponseWriter, r *http.Request) (*installmentRequest, bool) {
	var req installmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, false
	}
	return &req, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrImmutableVirtual):
		httpx.Problem(w, http.StatusBadRequest, "Immutable Entry", err.Error())
	case errors.Is(err, ErrInvariantViolation), errors.Is(err, ErrInvalidMode):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

// logFailure keeps Error level for unexpected failures; expected domain
// rejections (not found, validation, conflicts) log at Debug.
func (h *Handler) logFailure(msg string, err error, args ...any) {
	args = append(args, slog.Any("error", err))
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrImmutableVirtual),
		errors.Is(err, ErrInvariantViolation),
		errors.Is(err, ErrInvalidMode),
		errors.Is(err, ErrConcurrencyConflict):
		h.logger.Debug(msg, args...)
	default:
		h.logger.Error(msg, args...)
	}
}

func kindFromPath(raw string) (ObligationKind, bool) {
	switch raw {
	case "receivables", "sales":
		return KindReceivable, true
	case "payables", "expenses":
		return KindPayable, true
	}
	return "", false
}

func (r *installmentRequest) settlement() SettlementInput {
	return SettlementInput{
		DueDate:           r.Settlement.DueDate,
		ScheduledAmount:   r.Settlement.ScheduledAmount,
		PaidAmount:        r.Settlement.PaidAmount,
		DeclaredAmount:    r.Settlement.DeclaredAmount,
		UndeclaredAmount:  r.Settlement.UndeclaredAmount,
		PaymentDate:       r.Settlement.PaymentDate,
		Mode:              SettlementMode(r.Settlement.Mode),
		CashAmount:        r.Settlement.CashAmount,
		CheckAmount:       r.Settlement.CheckAmount,
		Status:            InstallmentStatus(r.Settlement.Status),
		RepresentsAdvance: r.Settlement.RepresentsAdvance,
		Notes:             r.Settlement.Notes,
	}
}

func (r *installmentRequest) instruments() []InstrumentInput {
	out := make([]InstrumentInput, 0, len(r.Instruments))
	for _, in := range r.Instruments {
		out = append(out, InstrumentInput{
			ID:            in.ID,
			Number:        in.Number,
			PayerName:     in.PayerName,
			PayeeName:     in.PayeeName,
			IssueDate:     in.IssueDate,
			ClearanceDate: in.ClearanceDate,
			Amount:        in.Amount,
			Status:        InstrumentStatus(in.Status),
			Description:   in.Description,
		})
	}
	return out
}

func installmentResponseFrom(result *InstallmentResult) installmentResponse {
	return installmentResponse{
		Installment: entryViewFrom(result.Installment),
		Instruments: result.Instruments,
		Failures:    result.Failures,
	}
}
