package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/QuestLog/internal/schema"
	"gorm.io/gorm"
)

// PlayLogRepository 行为记录仓储
type PlayLogRepository struct {
	db *gorm.DB
}

func NewPlayLogRepository(db *gorm.DB) *PlayLogRepository {
	return &PlayLogRepository{db: db}
}

func (r *PlayLogRepository) Create(ctx context.Context, p *schema.PlayLog) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("写入行为记录失败: %w", err)
	}
	return nil
}

func (r *PlayLogRepository) GetByID(ctx context.Context, userID, id string) (*schema.PlayLog, error) {
	var p schema.PlayLog
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询行为记录失败: %w", err)
	}
	return &p, nil
}

func (r *PlayLogRepository) Delete(ctx context.Context, userID, id string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&schema.PlayLog{}).Error
	if err != nil {
		return fmt.Errorf("删除行为记录失败: %w", err)
	}
	return nil
}

// ListByDay 按时间升序
func (r *PlayLogRepository) ListByDay(ctx context.Context, userID, dayKey string) ([]schema.PlayLog, error) {
	var out []schema.PlayLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day_key = ?", userID, dayKey).
		Order("at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询行为记录失败: %w", err)
	}
	return out, nil
}

func (r *PlayLogRepository) CountByDayCategory(ctx context.Context, userID, dayKey string, categoryID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&schema.PlayLog{}).
		Where("user_id = ? AND day_key = ? AND category_id = ?", userID, dayKey, categoryID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计行为记录失败: %w", err)
	}
	return n, nil
}
