package persistence

import (
	"context"
	"fmt"

	"multipost/domain/model"
	"multipost/domain/repository"

	"gorm.io/gorm"
)

type outcomeRow struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`
	model.PublishOutcome
}

func (outcomeRow) TableName() string { return "publish_outcomes" }

// OutcomeRepositoryGorm stores outcomes through gorm (MySQL in production).
type OutcomeRepositoryGorm struct{ db *gorm.DB }

func NewOutcomeRepositoryGorm(db *gorm.DB) *OutcomeRepositoryGorm {
	return &OutcomeRepositoryGorm{db: db}
}

// AutoMigrate creates or updates the publish_outcomes table.
func (r *OutcomeRepositoryGorm) AutoMigrate() error {
	return r.db.AutoMigrate(&outcomeRow{})
}

func (r *OutcomeRepositoryGorm) Append(ctx context.Context, o *model.PublishOutcome) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&outcomeRow{}).
			Where("request_id = ? AND platform_id = ?", o.RequestID, o.PlatformID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return repository.ErrDuplicateOutcome
		}
		row := outcomeRow{PublishOutcome: *o}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
		return nil
	})
}

func (r *OutcomeRepositoryGorm) ListByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	return r.list(ctx, "request_id = ?", requestID)
}

func (r *OutcomeRepositoryGorm) ListByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error) {
	return r.list(ctx, "platform_id = ?", string(platform))
}

func (r *OutcomeRepositoryGorm) list(ctx context.Context, cond string, arg any) ([]*model.PublishOutcome, error) {
	var rows []outcomeRow
	if err := r.db.WithContext(ctx).Where(cond, arg).Order("completed_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.PublishOutcome, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i].PublishOutcome)
	}
	return out, nil
}
