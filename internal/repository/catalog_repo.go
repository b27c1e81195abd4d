package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/QuestLog/internal/schema"
	"gorm.io/gorm"
)

// CategoryRepository 分类仓储
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Create(ctx context.Context, c *schema.Category) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("创建分类失败: %w", err)
	}
	return nil
}

// GetByID 不存在时返回 (nil, nil)
func (r *CategoryRepository) GetByID(ctx context.Context, userID string, id int64) (*schema.Category, error) {
	var c schema.Category
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分类失败: %w", err)
	}
	return &c, nil
}

func (r *CategoryRepository) GetByName(ctx context.Context, userID, name string) (*schema.Category, error) {
	var c schema.Category
	err := r.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分类失败: %w", err)
	}
	return &c, nil
}

// List 按显示顺序
func (r *CategoryRepository) List(ctx context.Context, userID string) ([]schema.Category, error) {
	var out []schema.Category
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sort_order ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询分类失败: %w", err)
	}
	return out, nil
}

// ActionRepository 行为仓储
type ActionRepository struct {
	db *gorm.DB
}

func NewActionRepository(db *gorm.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

func (r *ActionRepository) Create(ctx context.Context, a *schema.Action) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("创建行为失败: %w", err)
	}
	return nil
}

func (r *ActionRepository) GetByID(ctx context.Context, userID string, id int64) (*schema.Action, error) {
	var a schema.Action
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询行为失败: %w", err)
	}
	return &a, nil
}

func (r *ActionRepository) ListByCategory(ctx context.Context, userID string, categoryID int64) ([]schema.Action, error) {
	var out []schema.Action
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND category_id = ?", userID, categoryID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询行为失败: %w", err)
	}
	return out, nil
}

// SeasonalTitleRepository 赛季称号仓储
type SeasonalTitleRepository struct {
	db *gorm.DB
}

func NewSeasonalTitleRepository(db *gorm.DB) *SeasonalTitleRepository {
	return &SeasonalTitleRepository{db: db}
}

func (r *SeasonalTitleRepository) Create(ctx context.Context, t *schema.SeasonalTitle) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("创建称号失败: %w", err)
	}
	return nil
}

// ListByCategory 阈值从高到低
func (r *SeasonalTitleRepository) ListByCategory(ctx context.Context, userID string, categoryID int64) ([]schema.SeasonalTitle, error) {
	var out []schema.SeasonalTitle
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND category_id = ?", userID, categoryID).
		Order("min_sp_earned DESC, sort_order DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询称号失败: %w", err)
	}
	return out, nil
}
