package obligation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-promo/atlas-promo/internal/ledger"
	"github.com/atlas-promo/atlas-promo/internal/platform/httpx"
	"github.com/atlas-promo/atlas-promo/internal/shared"
)

// Handler manages obligation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers obligation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}", h.list)
	r.Post("/{kind}", h.create)
	r.Get("/{kind}/{id}", h.get)
}

type createRequest struct {
	Reference         string  `json:"reference" validate:"required"`
	CounterpartyName  string  `json:"counterparty_name" validate:"required"`
	TotalAmount       float64 `json:"total_amount" validate:"gt=0"`
	AdvanceDeclared   float64 `json:"advance_declared" validate:"gte=0"`
	AdvanceUndeclared float64 `json:"advance_undeclared" validate:"gte=0"`
	AdvanceCash       float64 `json:"advance_cash" validate:"gte=0"`
	AdvanceCheck      float64 `json:"advance_check" validate:"gte=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, kind, ok := h.scope(w, r)
	if !ok {
		return
	}

	status := ledger.ObligationStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	obligations, err := h.service.List(r.Context(), ListRequest{
		OwnerID: identity.UserID,
		Kind:    kind,
		Status:  status,
		Limit:   limit,
	})
	if err != nil {
		h.logFailure("list obligations", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"obligations": obligations})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity, kind, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid obligation id")
		return
	}

	p, err := h.service.Get(r.Context(), id, identity.UserID)
	if err != nil || p.Kind != kind {
		if err == nil {
			err = ledger.ErrNotFound
		}
		h.logFailure("get obligation", err, slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, kind, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	p, err := h.service.Create(r.Context(), CreateInput{
		OwnerID:           identity.UserID,
		Kind:              kind,
		Reference:         req.Reference,
		CounterpartyName:  req.CounterpartyName,
		TotalAmount:       req.TotalAmount,
		AdvanceDeclared:   req.AdvanceDeclared,
		AdvanceUndeclared: req.AdvanceUndeclared,
		AdvanceCash:       req.AdvanceCash,
		AdvanceCheck:      req.AdvanceCheck,
	})
	if err != nil {
		h.logFailure("create obligation", err)
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (shared.Identity, ledger.ObligationKind, bool) {
	identity := shared.IdentityFromContext(r.Context())
	if identity.UserID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Identity{}, "", false
	}
	var kind ledger.ObligationKind
	switch chi.URLParam(r, "kind") {
	case "receivables", "sales":
		kind = ledger.KindReceivable
	case "payables", "expenses":
		kind = ledger.KindPayable
	default:
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown obligation kind")
		return shared.Identity{}, "", false
	}
	return identity, kind, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	httpx.RespondError(w, err)
}

// logFailure logs expected domain rejections at Debug and everything else
// at Error.
func (h *Handler) logFailure(msg string, err error, args ...any) {
	args = append(args, slog.Any("error", err))
	if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ErrValidation) {
		h.logger.Debug(msg, args...)
		return
	}
	h.logger.Error(msg, args...)
}
