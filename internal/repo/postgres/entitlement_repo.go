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

type EntitlementRepo struct {
	pool *pgxpool.Pool
}

type EntitlementRecord struct {
	BookID     int64
	Capability string
	Status     string
	UnlockedAt *time.Time
	PriceMinor int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewEntitlementRepo(pool *pgxpool.Pool) *EntitlementRepo {
	return &EntitlementRepo{pool: pool}
}

// Get loads the entitlement for (book, capability). A missing row is
// not an error; it reads as locked.
func (r *EntitlementRepo) Get(ctx context.Context, bookID int64, capability string) (EntitlementRecord, error) {
	capability = strings.ToLower(strings.TrimSpace(capability))
	if bookID <= 0 || capability == "" {
		return EntitlementRecord{}, fmt.Errorf("invalid entitlement lookup payload")
	}
	if r.pool == nil {
		return lockedRecord(bookID, capability), nil
	}

	var record EntitlementRecord
	err := r.pool.QueryRow(ctx, `
SELECT book_id, capability, status, unlocked_at, price_minor, created_at, updated_at
FROM feature_entitlements
WHERE book_id = $1
  AND capability = $2
LIMIT 1
`, bookID, capability).Scan(
		&record.BookID,
		&record.Capability,
		&record.Status,
		&record.UnlockedAt,
		&record.PriceMinor,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedRecord(bookID, capability), nil
		}
		return EntitlementRecord{}, fmt.Errorf("get entitlement: %w", err)
	}

	return record, nil
}

// UpsertPurchased unlocks (book, capability). Re-applying to a row that
// is already purchased keeps the original unlocked_at and price, so the
// final state is identical no matter how many times the reconciler
// lands here. Runs inside the caller's transaction.
func (r *EntitlementRepo) UpsertPurchased(ctx context.Context, tx pgx.Tx, bookID int64, capability string, unlockedAt time.Time, priceMinor int) (EntitlementRecord, error) {
	if tx == nil {
		return EntitlementRecord{}, fmt.Errorf("transaction is required")
	}
	capability = strings.ToLower(strings.TrimSpace(capability))
	if bookID <= 0 || capability == "" || priceMinor < 0 {
		return EntitlementRecord{}, fmt.Errorf("invalid entitlement upsert payload")
	}

	var record EntitlementRecord
	err := tx.QueryRow(ctx, `
INSERT INTO feature_entitlements (
	book_id,
	capability,
	status,
	unlocked_at,
	price_minor,
	created_at,
	updated_at
) VALUES ($1, $2, 'purchased', $3, $4, NOW(), NOW())
ON CONFLICT (book_id, capability) DO UPDATE
SET
	status = 'purchased',
	unlocked_at = COALESCE(feature_entitlements.unlocked_at, EXCLUDED.unlocked_at),
	updated_at = NOW()
RETURNING book_id, capability, status, unlocked_at, price_minor, created_at, updated_at
`, bookID, capability, unlockedAt.UTC(), priceMinor).Scan(
		&record.BookID,
		&record.Capability,
		&record.Status,
		&record.UnlockedAt,
		&record.PriceMinor,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return EntitlementRecord{}, fmt.Errorf("upsert purchased entitlement: %w", err)
	}

	return record, nil
}

func lockedRecord(bookID int64, capability string) EntitlementRecord {
	return EntitlementRecord{
		BookID:     bookID,
		Capability: capability,
		Status:     "locked",
	}
}
