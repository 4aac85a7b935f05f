package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/storehub-realtime/internal/domain"
)

// GetIdempotency returns the non-expired record for (source, key) or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, source, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("source = ? AND key = ? AND expires_at > ?", source, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ClaimIdempotency inserts a ledger row for (source, key) before the event is
// published, so two concurrent deliveries of the same key cannot both fan
// out. An expired row for the same key is replaced. It returns ErrDuplicate
// when a live row already exists.
func ClaimIdempotency(ctx context.Context, db *gorm.DB, source, key, tenantID, orderID string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Source:    source,
		Key:       key,
		TenantID:  tenantID,
		OrderID:   orderID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source = ? AND key = ? AND expires_at <= ?", source, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// MarkDelivered records how many connections the claimed event reached.
func MarkDelivered(ctx context.Context, db *gorm.DB, id string, delivered int) error {
	res := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("id = ?", id).
		Update("delivered", delivered)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredIdempotency deletes rows whose TTL elapsed before now and
// returns how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation recognizes UNIQUE failures; glebarez/sqlite often
// returns them as plain text.
func isUniqueViolation(err error) bool {
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
