package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

const purchaseColumns = `id, owner_id, book_id, capability, amount_minor, currency, payment_method, provider_reference, status, created_at, completed_at, updated_at`

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

type PurchaseRecord struct {
	ID                int64
	OwnerID           int64
	BookID            *int64
	Capability        string
	AmountMinor       int
	Currency          string
	PaymentMethod     string
	ProviderReference *string
	Status            string
	CreatedAt         time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

func (r *PurchaseRepo) CreatePending(ctx context.Context, ownerID int64, bookID *int64, capability string, amountMinor int, currency, paymentMethod string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	capability = strings.ToLower(strings.TrimSpace(capability))
	currency = strings.ToUpper(strings.TrimSpace(currency))
	paymentMethod = strings.ToLower(strings.TrimSpace(paymentMethod))
	if ownerID <= 0 || capability == "" || currency == "" || amountMinor < 0 {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase create payload")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
INSERT INTO purchases (
	owner_id,
	book_id,
	capability,
	amount_minor,
	currency,
	payment_method,
	status,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, 'pending', NOW(), NOW())
RETURNING `+purchaseColumns+`
`, ownerID, bookID, capability, amountMinor, currency, paymentMethod))
	if err != nil {
		return PurchaseRecord{}, fmt.Errorf("create pending purchase: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) FindByID(ctx context.Context, purchaseID int64) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if purchaseID <= 0 {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT `+purchaseColumns+`
FROM purchases
WHERE id = $1
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by id: %w", err)
	}

	return record, nil
}

// ListByOwner returns the owner's purchases, newest first. The order is
// presentational only; nothing downstream depends on it.
func (r *PurchaseRepo) ListByOwner(ctx context.Context, ownerID int64, capability string) ([]PurchaseRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if ownerID <= 0 {
		return nil, fmt.Errorf("invalid owner id")
	}

	capability = strings.ToLower(strings.TrimSpace(capability))
	rows, err := r.pool.Query(ctx, `
SELECT `+purchaseColumns+`
FROM purchases
WHERE owner_id = $1
  AND ($2 = '' OR capability = $2)
ORDER BY created_at DESC
`, ownerID, capability)
	if err != nil {
		return nil, fmt.Errorf("list purchases by owner: %w", err)
	}
	defer rows.Close()

	var records []PurchaseRecord
	for rows.Next() {
		record, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase rows: %w", err)
	}

	return records, nil
}

// CountCompletedUserScoped counts completed purchases of a user-scoped
// capability. This is the "purchased" side of the credit read model.
func (r *PurchaseRepo) CountCompletedUserScoped(ctx context.Context, ownerID int64, capability string) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	capability = strings.ToLower(strings.TrimSpace(capability))
	if ownerID <= 0 || capability == "" {
		return 0, fmt.Errorf("invalid credit count payload")
	}

	var count int
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM purchases
WHERE owner_id = $1
  AND capability = $2
  AND book_id IS NULL
  AND status = 'completed'
`, ownerID, capability).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed purchases: %w", err)
	}

	return count, nil
}

// MarkCompleted performs the pending -> completed transition as a
// compare-and-set on status. Exactly one of two racing callers gets
// changed=true; the other receives the already-transitioned row. The
// caller owns the surrounding transaction.
func (r *PurchaseRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, purchaseID int64, providerReference string, now time.Time) (PurchaseRecord, bool, error) {
	if tx == nil {
		return PurchaseRecord{}, false, fmt.Errorf("transaction is required")
	}
	providerReference = strings.TrimSpace(providerReference)
	if purchaseID <= 0 || providerReference == "" {
		return PurchaseRecord{}, false, fmt.Errorf("invalid completion payload")
	}

	record, err := scanPurchase(tx.QueryRow(ctx, `
UPDATE purchases
SET
	status = 'completed',
	provider_reference = $2,
	completed_at = $3,
	updated_at = NOW()
WHERE id = $1
  AND status = 'pending'
RETURNING `+purchaseColumns+`
`, purchaseID, providerReference, now.UTC()))
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, false, fmt.Errorf("mark purchase completed: %w", err)
	}

	existing, err := scanPurchase(tx.QueryRow(ctx, `
SELECT `+purchaseColumns+`
FROM purchases
WHERE id = $1
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, false, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, false, fmt.Errorf("reload purchase after completion miss: %w", err)
	}

	return existing, false, nil
}

// MarkFailed transitions pending -> failed with the same CAS shape as
// MarkCompleted. A purchase that already completed stays completed.
func (r *PurchaseRepo) MarkFailed(ctx context.Context, tx pgx.Tx, purchaseID int64, now time.Time) (PurchaseRecord, bool, error) {
	if tx == nil {
		return PurchaseRecord{}, false, fmt.Errorf("transaction is required")
	}
	if purchaseID <= 0 {
		return PurchaseRecord{}, false, fmt.Errorf("invalid purchase id")
	}

	record, err := scanPurchase(tx.QueryRow(ctx, `
UPDATE purchases
SET
	status = 'failed',
	updated_at = NOW()
WHERE id = $1
  AND status = 'pending'
RETURNING `+purchaseColumns+`
`, purchaseID))
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, false, fmt.Errorf("mark purchase failed: %w", err)
	}

	existing, err := scanPurchase(tx.QueryRow(ctx, `
SELECT `+purchaseColumns+`
FROM purchases
WHERE id = $1
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, false, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, false, fmt.Errorf("reload purchase after failure miss: %w", err)
	}

	return existing, false, nil
}

// FindCompletedWithoutEntitlement surfaces completed book-scoped
// purchases whose entitlement row is missing or still locked. Given the
// single-transaction completion write this should return nothing; any
// hit is a data integrity violation for the audit tool.
func (r *PurchaseRepo) FindCompletedWithoutEntitlement(ctx context.Context, limit int) ([]PurchaseRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT p.id, p.owner_id, p.book_id, p.capability, p.amount_minor, p.currency, p.payment_method, p.provider_reference, p.status, p.created_at, p.completed_at, p.updated_at
FROM purchases p
LEFT JOIN feature_entitlements e
  ON e.book_id = p.book_id
 AND e.capability = p.capability
WHERE p.status = 'completed'
  AND p.book_id IS NOT NULL
  AND (e.book_id IS NULL OR e.status <> 'purchased')
ORDER BY p.completed_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("find completed purchases without entitlement: %w", err)
	}
	defer rows.Close()

	var records []PurchaseRecord
	for rows.Next() {
		record, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan orphaned purchase row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphaned purchase rows: %w", err)
	}

	return records, nil
}

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var record PurchaseRecord
	if err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.BookID,
		&record.Capability,
		&record.AmountMinor,
		&record.Currency,
		&record.PaymentMethod,
		&record.ProviderReference,
		&record.Status,
		&record.CreatedAt,
		&record.CompletedAt,
		&record.UpdatedAt,
	); err != nil {
		return PurchaseRecord{}, err
	}
	return record, nil
}
