package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/storehub-realtime/internal/domain"
)

// LedgerStats returns the number of live ledger rows for tenantID and the
// creation time of the newest one. maxCreatedAt is nil when there are none.
func LedgerStats(ctx context.Context, db *gorm.DB, tenantID string, now time.Time) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("tenant_id = ? AND expires_at > ?", tenantID, now)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
