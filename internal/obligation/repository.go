package obligation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-promo/atlas-promo/internal/ledger"
)

// Repository provides PostgreSQL backed persistence for obligations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, owner_id, kind, reference, counterparty_name, total_amount,
	advance_declared, advance_undeclared, advance_cash, advance_check,
	paid_amount, remaining_amount, status, created_at, updated_at`

// Create inserts a new obligation. The initial aggregates reflect the
// advance alone.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*ledger.ParentObligation, error) {
	advance := in.AdvanceDeclared + in.AdvanceUndeclared
	remaining := in.TotalAmount - advance
	if remaining < 0 {
		remaining = 0
	}
	status := ledger.ObligationOpen
	if advance > ledger.AmountTolerance {
		status = ledger.ObligationPartial
	}

	query := `
		INSERT INTO obligations (
			owner_id, kind, reference, counterparty_name, total_amount,
			advance_declared, advance_undeclared, advance_cash, advance_check,
			paid_amount, remaining_amount, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING ` + columns

	row := r.pool.QueryRow(ctx, query,
		in.OwnerID, in.Kind, in.Reference, in.CounterpartyName, in.TotalAmount,
		in.AdvanceDeclared, in.AdvanceUndeclared, in.AdvanceCash, in.AdvanceCheck,
		advance, remaining, status,
	)
	return scanObligation(row)
}

// GetByID fetches an obligation scoped to its owner.
func (r *Repository) GetByID(ctx context.Context, id, ownerID int64) (*ledger.ParentObligation, error) {
	query := `SELECT ` + columns + ` FROM obligations WHERE id = $1 AND owner_id = $2`
	p, err := scanObligation(r.pool.QueryRow(ctx, query, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return p, err
}

// List returns obligations matching the request, newest first.
func (r *Repository) List(ctx context.Context, req ListRequest) ([]ledger.ParentObligation, error) {
	query := `SELECT ` + columns + ` FROM obligations WHERE owner_id = $1`
	args := []any{req.OwnerID}
	argNum := 2

	if req.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, req.Kind)
		argNum++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, req.Status)
		argNum++
	}
	if !req.FromDate.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, req.FromDate)
		argNum++
	}
	if !req.ToDate.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argNum)
		args = append(args, req.ToDate)
		argNum++
	}

	query += " ORDER BY created_at DESC"
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.ParentObligation
	for rows.Next() {
		p, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanObligation(row pgx.Row) (*ledger.ParentObligation, error) {
	var p ledger.ParentObligation
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Kind, &p.Reference, &p.CounterpartyName, &p.TotalAmount,
		&p.AdvanceDeclared, &p.AdvanceUndeclared, &p.AdvanceCash, &p.AdvanceCheck,
		&p.PaidAmount, &p.RemainingAmount, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
