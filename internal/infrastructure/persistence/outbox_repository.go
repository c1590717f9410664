package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/manufacture/internal/domain/shared"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GormOutboxRepository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// appendOutbox writes entries with tx, the transaction of the producing aggregate
func appendOutbox(tx *gorm.DB, entries []*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxModelFromDomain(e)
	}
	return tx.Create(rows).Error
}

// ClaimDue locks due entries, skipping rows held by another relay, and pushes their
// next attempt past hold. An entry whose relay dies becomes due again afterwards.
func (r *GormOutboxRepository) ClaimDue(ctx context.Context, now time.Time, hold time.Duration, limit int) ([]*shared.OutboxEntry, error) {
	now = now.UTC()
	var rows []models.OutboxModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND next_attempt_at <= ?",
				[]shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed}, now).
			Order("next_attempt_at").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		return tx.Model(&models.OutboxModel{}).
			Where("id IN ?", ids).
			Update("next_attempt_at", now.Add(hold)).Error
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// Update stores the delivery state of entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	var sentAt *time.Time
	if entry.SentAt != nil {
		t := entry.SentAt.UTC()
		sentAt = &t
	}
	return r.db.WithContext(ctx).
		Model(&models.OutboxModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":          entry.Status,
			"attempts":        entry.Attempts,
			"last_error":      entry.LastError,
			"next_attempt_at": entry.NextAttemptAt.UTC(),
			"sent_at":         sentAt,
		}).Error
}

// DeleteSentBefore removes entries sent before cutoff
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND sent_at < ?", shared.OutboxStatusSent, cutoff.UTC()).
		Delete(&models.OutboxModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the number of entries per status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var results []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.OutboxModel{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, row := range results {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
