package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore is a Postgres-backed Repository.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const serviceColumns = `id, slug, name, price::text, recurring`

func (s *PGStore) Services(ctx context.Context) ([]ServiceType, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+serviceColumns+` FROM service_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	return pgx.CollectRows(rows, scanService)
}

func (s *PGStore) Service(ctx context.Context, id int64) (ServiceType, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+serviceColumns+` FROM service_types WHERE id = $1`, id)
	if err != nil {
		return ServiceType{}, fmt.Errorf("query service: %w", err)
	}
	svc, err := pgx.CollectExactlyOneRow(rows, scanService)
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceType{}, ErrNotFound
	}
	return svc, err
}

const invoiceColumns = `id, COALESCE(user_id, ''), number, description, amount::text, status, issued_at, due_at`

func (s *PGStore) Invoices(ctx context.Context, userID string) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id IS NULL OR user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	return pgx.CollectRows(rows, scanInvoice)
}

func (s *PGStore) Invoice(ctx context.Context, userID string, id int64) (Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND (user_id IS NULL OR user_id = $2)`, id, userID)
	if err != nil {
		return Invoice{}, fmt.Errorf("query invoice: %w", err)
	}
	inv, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

// MarkInvoicePaid flips an invoice to paid.
func (s *PGStore) MarkInvoicePaid(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE invoices SET status = 'paid' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateInvoice inserts inv and returns it with its assigned id. An empty
// UserID publishes the invoice to every user.
func (s *PGStore) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	if !inv.Amount.IsPositive() {
		return Invoice{}, fmt.Errorf("create invoice: amount must be positive")
	}
	if inv.Status == "" {
		inv.Status = InvoicePending
	}
	var owner *string
	if inv.UserID != "" {
		owner = &inv.UserID
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO invoices (user_id, number, description, amount, status, issued_at, due_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7) RETURNING id`,
		owner, inv.Number, inv.Description, inv.Amount.StringFixed(2), string(inv.Status), inv.IssuedAt, inv.DueAt,
	).Scan(&inv.ID)
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

func scanService(row pgx.CollectableRow) (ServiceType, error) {
	var (
		svc   ServiceType
		price string
	)
	if err := row.Scan(&svc.ID, &svc.Slug, &svc.Name, &price, &svc.Recurring); err != nil {
		return ServiceType{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return ServiceType{}, fmt.Errorf("parse price: %w", err)
	}
	svc.Price = d
	return svc, nil
}

func scanInvoice(row pgx.CollectableRow) (Invoice, error) {
	var (
		inv    Invoice
		amount string
		status string
	)
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.Number, &inv.Description, &amount, &status, &inv.IssuedAt, &inv.DueAt); err != nil {
		return Invoice{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Invoice{}, fmt.Errorf("parse amount: %w", err)
	}
	inv.Amount = d
	inv.Status = InvoiceStatus(status)
	return inv, nil
}
