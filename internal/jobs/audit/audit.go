package audit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
)

// Job scans for completed book-scoped purchases whose entitlement row
// is missing or still locked. The single-transaction completion write
// should make this impossible; any hit means manual intervention.
type Job struct {
	orphanFinder orphanFinder
	batchLimit   int
	notifier     notifier
	logger       *zap.Logger
}

type orphanFinder interface {
	FindCompletedWithoutEntitlement(ctx context.Context, limit int) ([]pgrepo.PurchaseRecord, error)
}

type notifier interface {
	Notify(text string) error
}

func New(finder orphanFinder, batchLimit int, logger *zap.Logger) *Job {
	if batchLimit <= 0 {
		batchLimit = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		orphanFinder: finder,
		batchLimit:   batchLimit,
		logger:       logger,
	}
}

func (j *Job) AttachNotifier(n notifier) {
	j.notifier = n
}

// Run performs one scan. It returns the number of violations found;
// a non-zero count is reported but is not itself an error.
func (j *Job) Run(ctx context.Context) (int, error) {
	if j.orphanFinder == nil {
		return 0, fmt.Errorf("orphan finder is not configured")
	}

	orphans, err := j.orphanFinder.FindCompletedWithoutEntitlement(ctx, j.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("scan for unentitled purchases: %w", err)
	}
	if len(orphans) == 0 {
		j.logger.Info("entitlement integrity scan clean")
		return 0, nil
	}

	for _, orphan := range orphans {
		fields := []zap.Field{
			zap.Int64("purchase_id", orphan.ID),
			zap.Int64("owner_id", orphan.OwnerID),
			zap.String("capability", orphan.Capability),
		}
		if orphan.BookID != nil {
			fields = append(fields, zap.Int64("book_id", *orphan.BookID))
		}
		j.logger.Error("completed purchase without entitlement", fields...)
	}

	j.notify(orphans)

	return len(orphans), nil
}

func (j *Job) notify(orphans []pgrepo.PurchaseRecord) {
	if j.notifier == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Billing integrity: %d completed purchase(s) without entitlement\n", len(orphans))
	for i, orphan := range orphans {
		if i >= 10 {
			fmt.Fprintf(&b, "... and %d more\n", len(orphans)-i)
			break
		}
		bookID := int64(0)
		if orphan.BookID != nil {
			bookID = *orphan.BookID
		}
		fmt.Fprintf(&b, "purchase=%d owner=%d book=%d capability=%s\n", orphan.ID, orphan.OwnerID, bookID, orphan.Capability)
	}

	if err := j.notifier.Notify(b.String()); err != nil {
		j.logger.Warn("failed to send integrity alert", zap.Error(err))
	}
}
