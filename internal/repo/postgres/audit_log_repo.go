package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditLogRepo struct {
	pool *pgxpool.Pool
}

type AuditEntryRecord struct {
	OwnerID    int64
	Action     string
	OccurredAt time.Time
	Props      map[string]any
}

func NewAuditLogRepo(pool *pgxpool.Pool) *AuditLogRepo {
	return &AuditLogRepo{pool: pool}
}

func (r *AuditLogRepo) Insert(ctx context.Context, entry AuditEntryRecord) error {
	if r.pool == nil {
		return nil
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return fmt.Errorf("audit action is required")
	}

	props := entry.Props
	if props == nil {
		props = map[string]any{}
	}
	payload, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshal audit props: %w", err)
	}

	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var ownerID any
	if entry.OwnerID > 0 {
		ownerID = entry.OwnerID
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO billing_audit_log (
	owner_id,
	action,
	payload,
	occurred_at,
	created_at
) VALUES ($1, $2, $3::jsonb, $4, NOW())
`, ownerID, action, string(payload), occurredAt.UTC()); err != nil {
		return fmt.Errorf("insert billing audit entry: %w", err)
	}

	return nil
}
