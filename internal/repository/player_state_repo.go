package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/QuestLog/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlayerStateRepository 分类累计状态仓储
type PlayerStateRepository struct {
	db *gorm.DB
}

func NewPlayerStateRepository(db *gorm.DB) *PlayerStateRepository {
	return &PlayerStateRepository{db: db}
}

// Get 不存在时返回 (nil, nil)
func (r *PlayerStateRepository) Get(ctx context.Context, userID string, categoryID int64) (*schema.PlayerCategoryState, error) {
	var s schema.PlayerCategoryState
	err := r.db.WithContext(ctx).Where("user_id = ? AND category_id = ?", userID, categoryID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分类状态失败: %w", err)
	}
	return &s, nil
}

// AddEarned 累加 XP/SP，行不存在时从 0 创建
func (r *PlayerStateRepository) AddEarned(ctx context.Context, userID string, categoryID, xp, sp int64) error {
	if xp < 0 || sp < 0 {
		return fmt.Errorf("累加值不能为负: xp=%d sp=%d", xp, sp)
	}
	row := &schema.PlayerCategoryState{UserID: userID, CategoryID: categoryID, XPTotal: xp, SPUnspent: sp}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "category_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"xp_total":   gorm.Expr("xp_total + ?", xp),
			"sp_unspent": gorm.Expr("sp_unspent + ?", sp),
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("累加分类状态失败: %w", err)
	}
	return nil
}

// Spend 条件扣减，余额不足时不修改并返回 false
func (r *PlayerStateRepository) Spend(ctx context.Context, userID string, categoryID, cost int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&schema.PlayerCategoryState{}).
		Where("user_id = ? AND category_id = ? AND sp_unspent >= ?", userID, categoryID, cost).
		Update("sp_unspent", gorm.Expr("sp_unspent - ?", cost))
	if res.Error != nil {
		return false, fmt.Errorf("扣减 SP 失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *PlayerStateRepository) ListByUser(ctx context.Context, userID string) ([]schema.PlayerCategoryState, error) {
	var out []schema.PlayerCategoryState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("category_id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询分类状态失败: %w", err)
	}
	return out, nil
}
