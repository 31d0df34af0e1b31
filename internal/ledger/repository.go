package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines the read side and the transaction entry point used
// by the ledger service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetObligation(ctx context.Context, id, ownerID int64) (*ParentObligation, error)
	GetInstallment(ctx context.Context, id int64) (*Installment, error)
	ListInstallments(ctx context.Context, obligationID int64) ([]Installment, error)
	ListInstruments(ctx context.Context, obligationID, installmentID int64, sequence int) ([]Instrument, error)
}

// TxRepository exposes every write the ledger performs inside one atomic
// mutation transaction.
type TxRepository interface {
	GetObligation(ctx context.Context, id, ownerID int64) (*ParentObligation, error)
	GetInstallment(ctx context.Context, id int64) (*Installment, error)
	CountInstallments(ctx context.Context, obligationID int64) (int, error)
	ListInstallments(ctx context.Context, obligationID int64) ([]Installment, error)
	CreateInstallment(ctx context.Context, inst *Installment) (int64, error)
	UpdateInstallment(ctx context.Context, inst *Installment) error
	DeleteInstallment(ctx context.Context, id int64) error
	UpdateSequence(ctx context.Context, id int64, sequence int) error
	DeleteObligation(ctx context.Context, id int64) error
	UpdateAggregates(ctx context.Context, obligationID int64, agg Aggregates) error

	ListInstruments(ctx context.Context, obligationID, installmentID int64, sequence int) ([]Instrument, error)
	CreateInstrument(ctx context.Context, ins *Instrument) (int64, error)
	UpdateInstrument(ctx context.Context, ins *Instrument) error
	DeleteInstrument(ctx context.Context, id int64) error
	DeleteInstrumentsForInstallment(ctx context.Context, obligationID, installmentID int64, sequence int) error
	DeleteInstrumentsForObligation(ctx context.Context, obligationID int64) error
	RewriteInstrumentTag(ctx context.Context, obligationID int64, oldSeq, newSeq int) error
}

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
	queries
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, queries: queries{db: pool}}
}

// WithTx wraps the callback in a repeatable-read transaction. Everything the
// callback writes becomes visible atomically on commit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit tx: %w", err)
	}
	return nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db querier
}

const obligationColumns = `id, owner_id, kind, reference, counterparty_name, total_amount,
	advance_declared, advance_undeclared, advance_cash, advance_check,
	paid_amount, remaining_amount, status, created_at, updated_at`

// GetObligation fetches an obligation scoped to its owner.
func (q queries) GetObligation(ctx context.Context, id, ownerID int64) (*ParentObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligations WHERE id = $1 AND owner_id = $2`

	var p ParentObligation
	err := q.db.QueryRow(ctx, query, id, ownerID).Scan(
		&p.ID, &p.OwnerID, &p.Kind, &p.Reference, &p.CounterpartyName, &p.TotalAmount,
		&p.AdvanceDeclared, &p.AdvanceUndeclared, &p.AdvanceCash, &p.AdvanceCheck,
		&p.PaidAmount, &p.RemainingAmount, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const installmentColumns = `id, obligation_id, sequence_number, due_date, scheduled_amount,
	paid_amount, declared_amount, undeclared_amount, payment_date, mode,
	cash_amount, check_amount, status, represents_advance, notes, created_at, updated_at`

func scanInstallment(row pgx.Row) (*Installment, error) {
	var inst Installment
	var dueDate, paymentDate pgtype.Timestamptz
	err := row.Scan(
		&inst.ID, &inst.ObligationID, &inst.SequenceNumber, &dueDate, &inst.ScheduledAmount,
		&inst.PaidAmount, &inst.DeclaredAmount, &inst.UndeclaredAmount, &paymentDate, &inst.Mode,
		&inst.CashAmount, &inst.CheckAmount, &inst.Status, &inst.RepresentsAdvance, &inst.Notes,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		inst.DueDate = &dueDate.Time
	}
	if paymentDate.Valid {
		inst.PaymentDate = &paymentDate.Time
	}
	return &inst, nil
}

// GetInstallment fetches one installment by row id.
func (q queries) GetInstallment(ctx context.Context, id int64) (*Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE id = $1`
	inst, err := scanInstallment(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// ListInstallments returns an obligation's installments ordered by sequence.
func (q queries) ListInstallments(ctx context.Context, obligationID int64) ([]Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments
		WHERE obligation_id = $1 ORDER BY sequence_number`

	rows, err := q.db.Query(ctx, query, obligationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

// CountInstallments counts the persisted installments of an obligation.
func (q queries) CountInstallments(ctx context.Context, obligationID int64) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM installments WHERE obligation_id = $1`, obligationID).Scan(&count)
	return count, err
}

// CreateInstallment inserts a row. A duplicate (obligation_id,
// sequence_number) surfaces as ErrConcurrencyConflict: two concurrent
// creations raced on the sequence and the caller should retry.
func (q queries) CreateInstallment(ctx context.Context, inst *Installment) (int64, error) {
	query := `
		INSERT INTO installments (
			obligation_id, sequence_number, due_date, scheduled_amount,
			paid_amount, declared_amount, undeclared_amount, payment_date, mode,
			cash_amount, check_amount, status, represents_advance, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := q.db.QueryRow(ctx, query,
		inst.ObligationID, inst.SequenceNumber, nullableTime(inst.DueDate), inst.ScheduledAmount,
		inst.PaidAmount, inst.DeclaredAmount, inst.UndeclaredAmount, nullableTime(inst.PaymentDate), inst.Mode,
		inst.CashAmount, inst.CheckAmount, inst.Status, inst.RepresentsAdvance, inst.Notes,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if isUniqueViolation(err) {
		return 0, ErrConcurrencyConflict
	}
	if err != nil {
		return 0, err
	}
	return inst.ID, nil
}

// UpdateInstallment overwrites every settlement field; the sequence number is
// deliberately not part of the statement.
func (q queries) UpdateInstallment(ctx context.Context, inst *Installment) error {
	query := `
		UPDATE installments SET
			due_date = $2, scheduled_amount = $3, paid_amount = $4,
			declared_amount = $5, undeclared_amount = $6, payment_date = $7,
			mode = $8, cash_amount = $9, check_amount = $10, status = $11,
			represents_advance = $12, notes = $13, updated_at = NOW()
		WHERE id = $1`

	tag, err := q.db.Exec(ctx, query,
		inst.ID, nullableTime(inst.DueDate), inst.ScheduledAmount, inst.PaidAmount,
		inst.DeclaredAmount, inst.UndeclaredAmount, nullableTime(inst.PaymentDate),
		inst.Mode, inst.CashAmount, inst.CheckAmount, inst.Status,
		inst.RepresentsAdvance, inst.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInstallment removes one installment row.
func (q queries) DeleteInstallment(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM installments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSequence rewrites one installment's sequence number during
// renumbering.
func (q queries) UpdateSequence(ctx context.Context, id int64, sequence int) error {
	_, err := q.db.Exec(ctx,
		`UPDATE installments SET sequence_number = $2, updated_at = NOW() WHERE id = $1`,
		id, sequence)
	if isUniqueViolation(err) {
		return ErrConcurrencyConflict
	}
	return err
}

// DeleteObligation removes the parent row itself.
func (q queries) DeleteObligation(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM obligations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAggregates persists the recomputed paid/remaining/status fields.
func (q queries) UpdateAggregates(ctx context.Context, obligationID int64, agg Aggregates) error {
	_, err := q.db.Exec(ctx,
		`UPDATE obligations SET paid_amount = $2, remaining_amount = $3, status = $4, updated_at = NOW() WHERE id = $1`,
		obligationID, agg.PaidAmount, agg.RemainingAmount, agg.Status)
	return err
}

const instrumentColumns = `id, obligation_id, installment_id, number, payer_name, payee_name,
	issue_date, clearance_date, amount, status, direction, description, created_at, updated_at`

func scanInstrument(row pgx.Row) (*Instrument, error) {
	var ins Instrument
	var obligationID, installmentID pgtype.Int8
	var issueDate, clearanceDate pgtype.Timestamptz
	err := row.Scan(
		&ins.ID, &obligationID, &installmentID, &ins.Number, &ins.PayerName, &ins.PayeeName,
		&issueDate, &clearanceDate, &ins.Amount, &ins.Status, &ins.Direction, &ins.Description,
		&ins.CreatedAt, &ins.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if obligationID.Valid {
		ins.ObligationID = &obligationID.Int64
	}
	if installmentID.Valid {
		ins.InstallmentID = &installmentID.Int64
	}
	if issueDate.Valid {
		ins.IssueDate = &issueDate.Time
	}
	if clearanceDate.Valid {
		ins.ClearanceDate = &clearanceDate.Time
	}
	return &ins, nil
}

// ListInstruments returns the instruments of one installment: rows linked via
// installment_id, plus legacy rows correlated only through the textual
// "paiement #N" pattern in their description. The tag must end at a non-digit
// so "paiement #1" never matches "paiement #10".
func (q queries) ListInstruments(ctx context.Context, obligationID, installmentID int64, sequence int) ([]Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments
		WHERE installment_id = $1
		   OR (obligation_id = $2 AND installment_id IS NULL AND description ~ ($3 || '([^0-9]|$)'))
		ORDER BY id`

	rows, err := q.db.Query(ctx, query, installmentID, obligationID, CorrelationTag(sequence))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instrument
	for rows.Next() {
		ins, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ins)
	}
	return out, rows.Err()
}

// CreateInstrument inserts a check record.
func (q queries) CreateInstrument(ctx context.Context, ins *Instrument) (int64, error) {
	query := `
		INSERT INTO instruments (
			obligation_id, installment_id, number, payer_name, payee_name,
			issue_date, clearance_date, amount, status, direction, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := q.db.QueryRow(ctx, query,
		nullableInt(ins.ObligationID), nullableInt(ins.InstallmentID), ins.Number, ins.PayerName, ins.PayeeName,
		nullableTime(ins.IssueDate), nullableTime(ins.ClearanceDate), ins.Amount, ins.Status, ins.Direction, ins.Description,
	).Scan(&ins.ID, &ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return ins.ID, nil
}

// UpdateInstrument overwrites a check record's fields.
func (q queries) UpdateInstrument(ctx context.Context, ins *Instrument) error {
	query := `
		UPDATE instruments SET
			number = $2, payer_name = $3, payee_name = $4, issue_date = $5,
			clearance_date = $6, amount = $7, status = $8, description = $9, updated_at = NOW()
		WHERE id = $1`

	tag, err := q.db.Exec(ctx, query,
		ins.ID, ins.Number, ins.PayerName, ins.PayeeName, nullableTime(ins.IssueDate),
		nullableTime(ins.ClearanceDate), ins.Amount, ins.Status, ins.Description,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInstrument removes one check record.
func (q queries) DeleteInstrument(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM instruments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInstrumentsForInstallment removes an installment's instruments,
// including legacy description-correlated rows. Only rows whose tag ends at
// a non-digit match: installment #1 must never take #10's instruments along.
func (q queries) DeleteInstrumentsForInstallment(ctx context.Context, obligationID, installmentID int64, sequence int) error {
	_, err := q.db.Exec(ctx,
		`DELETE FROM instruments
		 WHERE installment_id = $1
		    OR (obligation_id = $2 AND installment_id IS NULL AND description ~ ($3 || '([^0-9]|$)'))`,
		installmentID, obligationID, CorrelationTag(sequence))
	return err
}

// DeleteInstrumentsForObligation removes every instrument tied to a parent.
func (q queries) DeleteInstrumentsForObligation(ctx context.Context, obligationID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM instruments WHERE obligation_id = $1`, obligationID)
	return err
}

// RewriteInstrumentTag substitutes the textual "paiement #N" correlation in
// every instrument description of an obligation after renumbering. The match
// is anchored at a non-digit boundary so rewriting #2 leaves #21 untouched;
// the captured boundary character is kept in the replacement.
func (q queries) RewriteInstrumentTag(ctx context.Context, obligationID int64, oldSeq, newSeq int) error {
	_, err := q.db.Exec(ctx,
		`UPDATE instruments
		 SET description = regexp_replace(description, $2 || '([^0-9]|$)', $3 || '\1', 'g'), updated_at = NOW()
		 WHERE obligation_id = $1 AND description ~ ($2 || '([^0-9]|$)')`,
		obligationID, CorrelationTag(oldSeq), CorrelationTag(newSeq))
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func nullableInt(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}
