package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConsumptionRepo counts consumed credit units. The rows themselves are
// written by the upload pipeline, never by the billing core.
type ConsumptionRepo struct {
	pool *pgxpool.Pool
}

func NewConsumptionRepo(pool *pgxpool.Pool) *ConsumptionRepo {
	return &ConsumptionRepo{pool: pool}
}

func (r *ConsumptionRepo) CountByOwner(ctx context.Context, ownerID int64, capability string) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	capability = strings.ToLower(strings.TrimSpace(capability))
	if ownerID <= 0 || capability == "" {
		return 0, fmt.Errorf("invalid consumption count payload")
	}

	var count int
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM credit_consumptions
WHERE owner_id = $1
  AND capability = $2
`, ownerID, capability).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count credit consumptions: %w", err)
	}

	return count, nil
}
