package obligation

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-promo/atlas-promo/internal/ledger"
)

// RepositoryPort defines data access methods for obligations.
type RepositoryPort interface {
	Create(ctx context.Context, in CreateInput) (*ledger.ParentObligation, error)
	GetByID(ctx context.Context, id, ownerID int64) (*ledger.ParentObligation, error)
	List(ctx context.Context, req ListRequest) ([]ledger.ParentObligation, error)
}

// ErrValidation marks a rejected obligation payload.
var ErrValidation = errors.New("obligation: invalid input")

// Service handles obligation business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a new obligation after basic validation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*ledger.ParentObligation, error) {
	if in.OwnerID == 0 {
		return nil, fmt.Errorf("%w: owner required", ErrValidation)
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, in.Kind)
	}
	if in.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	advance := in.AdvanceDeclared + in.AdvanceUndeclared
	if advance < 0 || in.AdvanceDeclared < 0 || in.AdvanceUndeclared < 0 {
		return nil, fmt.Errorf("%w: advance amounts must not be negative", ErrValidation)
	}
	if advance > in.TotalAmount+ledger.AmountTolerance {
		return nil, fmt.Errorf("%w: advance %.2f cannot exceed total %.2f", ErrValidation, advance, in.TotalAmount)
	}
	if advance > 0 && !withinTolerance(in.AdvanceCash+in.AdvanceCheck, advance) && in.AdvanceCash+in.AdvanceCheck != 0 {
		return nil, fmt.Errorf("%w: advance cash %.2f + check %.2f does not equal advance %.2f",
			ErrValidation, in.AdvanceCash, in.AdvanceCheck, advance)
	}
	return s.repo.Create(ctx, in)
}

// Get returns one obligation scoped to its owner.
func (s *Service) Get(ctx context.Context, id, ownerID int64) (*ledger.ParentObligation, error) {
	return s.repo.GetByID(ctx, id, ownerID)
}

// List returns obligations matching the request.
func (s *Service) List(ctx context.Context, req ListRequest) ([]ledger.ParentObligation, error) {
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}
	return s.repo.List(ctx, req)
}

func withinTolerance(a, b float64) bool {
	d := a - b
	return d <= ledger.AmountTolerance && d >= -ledger.AmountTolerance
}
