package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/QuestLog/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyResultRepository 日结果仓储（含分类日结果）
type DailyResultRepository struct {
	db *gorm.DB
}

func NewDailyResultRepository(db *gorm.DB) *DailyResultRepository {
	return &DailyResultRepository{db: db}
}

// Get 不存在时返回 (nil, nil)
func (r *DailyResultRepository) Get(ctx context.Context, userID, dayKey string) (*schema.DailyResult, error) {
	var dr schema.DailyResult
	err := r.db.WithContext(ctx).Where("user_id = ? AND day_key = ?", userID, dayKey).First(&dr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询日结果失败: %w", err)
	}
	return &dr, nil
}

// EnsureDraft 不存在则以 draft 创建，返回当前行
func (r *DailyResultRepository) EnsureDraft(ctx context.Context, userID, dayKey string) (*schema.DailyResult, error) {
	dr := &schema.DailyResult{UserID: userID, DayKey: dayKey, Status: schema.DayStatusDraft}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "day_key"}},
		DoNothing: true,
	}).Create(dr).Error
	if err != nil {
		return nil, fmt.Errorf("创建日结果失败: %w", err)
	}
	got, err := r.Get(ctx, userID, dayKey)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, fmt.Errorf("日结果创建后不可见: %s", dayKey)
	}
	return got, nil
}

// MarkConfirmed 仅 draft → confirmed；返回是否发生迁移
func (r *DailyResultRepository) MarkConfirmed(ctx context.Context, userID, dayKey string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&schema.DailyResult{}).
		Where("user_id = ? AND day_key = ? AND status = ?", userID, dayKey, schema.DayStatusDraft).
		Updates(map[string]any{
			"status":       schema.DayStatusConfirmed,
			"confirmed_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("确认日结果失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListByRange 日期闭区间，降序
func (r *DailyResultRepository) ListByRange(ctx context.Context, userID, startDay, endDay string) ([]schema.DailyResult, error) {
	var out []schema.DailyResult
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day_key >= ? AND day_key <= ?", userID, startDay, endDay).
		Order("day_key DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询日期范围日结果失败: %w", err)
	}
	return out, nil
}

// GetCategoryResult 不存在时返回 (nil, nil)
func (r *DailyResultRepository) GetCategoryResult(ctx context.Context, userID, dayKey string, categoryID int64) (*schema.DailyCategoryResult, error) {
	var dcr schema.DailyCategoryResult
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day_key = ? AND category_id = ?", userID, dayKey, categoryID).
		First(&dcr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分类日结果失败: %w", err)
	}
	return &dcr, nil
}

// SaveCategoryResult 新行插入，已有行整体覆盖计数与派生值
func (r *DailyResultRepository) SaveCategoryResult(ctx context.Context, dcr *schema.DailyCategoryResult) error {
	if dcr.ID == 0 {
		if err := r.db.WithContext(ctx).Create(dcr).Error; err != nil {
			return fmt.Errorf("创建分类日结果失败: %w", err)
		}
		return nil
	}
	err := r.db.WithContext(ctx).Model(&schema.DailyCategoryResult{}).
		Where("id = ?", dcr.ID).
		Updates(map[string]any{
			"play_count": dcr.PlayCount,
			"xp_earned":  dcr.XPEarned,
			"sp_earned":  dcr.SPEarned,
		}).Error
	if err != nil {
		return fmt.Errorf("更新分类日结果失败: %w", err)
	}
	return nil
}

func (r *DailyResultRepository) ListCategoryResults(ctx context.Context, userID, dayKey string) ([]schema.DailyCategoryResult, error) {
	var out []schema.DailyCategoryResult
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day_key = ?", userID, dayKey).
		Order("category_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询分类日结果失败: %w", err)
	}
	return out, nil
}

// SumSPEarned 指定日期集合内某分类的 SP 合计
func (r *DailyResultRepository) SumSPEarned(ctx context.Context, userID string, categoryID int64, dayKeys []string) (int64, error) {
	if len(dayKeys) == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.WithContext(ctx).Model(&schema.DailyCategoryResult{}).
		Select("COALESCE(SUM(sp_earned), 0)").
		Where("user_id = ? AND category_id = ? AND day_key IN ?", userID, categoryID, dayKeys).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("汇总窗口 SP 失败: %w", err)
	}
	return total, nil
}
