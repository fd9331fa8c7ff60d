package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
)

type Store interface {
	Insert(ctx context.Context, entry pgrepo.AuditEntryRecord) error
}

// Service writes the billing audit trail. Every write is best effort:
// a broken audit sink must never roll back a completed purchase, so
// failures are logged and swallowed.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Record(ctx context.Context, ownerID int64, action string, props map[string]any) {
	if s == nil || s.store == nil {
		return
	}

	err := s.store.Insert(ctx, pgrepo.AuditEntryRecord{
		OwnerID:    ownerID,
		Action:     action,
		OccurredAt: s.now().UTC(),
		Props:      props,
	})
	if err != nil {
		s.logger.Warn("failed to write audit entry",
			zap.String("action", action),
			zap.Int64("owner_id", ownerID),
			zap.Error(err),
		)
	}
}
