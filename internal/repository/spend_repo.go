package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/QuestLog/internal/schema"
	"gorm.io/gorm"
)

// SpendLogRepository SP 支出流水，只追加
type SpendLogRepository struct {
	db *gorm.DB
}

func NewSpendLogRepository(db *gorm.DB) *SpendLogRepository {
	return &SpendLogRepository{db: db}
}

func (r *SpendLogRepository) Append(ctx context.Context, l *schema.SpendLog) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("写入支出流水失败: %w", err)
	}
	return nil
}

// ListRecent 最新在前
func (r *SpendLogRepository) ListRecent(ctx context.Context, userID string, limit int) ([]schema.SpendLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []schema.SpendLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询支出流水失败: %w", err)
	}
	return out, nil
}
