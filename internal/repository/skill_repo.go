package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/QuestLog/internal/schema"
	"gorm.io/gorm"
)

// SkillRepository 技能树/节点/解锁记录仓储
type SkillRepository struct {
	db *gorm.DB
}

// NewSkillRepository 创建仓储
func NewSkillRepository(db *gorm.DB) *SkillRepository {
	return &SkillRepository{db: db}
}

func (r *SkillRepository) CreateTree(ctx context.Context, t *schema.SkillTree) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("创建技能树失败: %w", err)
	}
	return nil
}

// GetTree 不存在时返回 (nil, nil)
func (r *SkillRepository) GetTree(ctx context.Context, userID string, id int64) (*schema.SkillTree, error) {
	var t schema.SkillTree
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询技能树失败: %w", err)
	}
	return &t, nil
}

// ListTrees categoryID 为 0 时返回全部
func (r *SkillRepository) ListTrees(ctx context.Context, userID string, categoryID int64) ([]schema.SkillTree, error) {
	var out []schema.SkillTree
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if categoryID > 0 {
		q = q.Where("category_id = ?", categoryID)
	}
	if err := q.Order("sort_order ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询技能树失败: %w", err)
	}
	return out, nil
}

func (r *SkillRepository) CreateNode(ctx context.Context, n *schema.SkillNode) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("创建技能节点失败: %w", err)
	}
	return nil
}

// GetNode 不存在时返回 (nil, nil)
func (r *SkillRepository) GetNode(ctx context.Context, userID string, id int64) (*schema.SkillNode, error) {
	var n schema.SkillNode
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询技能节点失败: %w", err)
	}
	return &n, nil
}

// GetNodeByOrder 树内按序号定位
func (r *SkillRepository) GetNodeByOrder(ctx context.Context, treeID int64, order int) (*schema.SkillNode, error) {
	var n schema.SkillNode
	err := r.db.WithContext(ctx).Where("tree_id = ? AND sort_order = ?", treeID, order).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询前置节点失败: %w", err)
	}
	return &n, nil
}

func (r *SkillRepository) ListNodes(ctx context.Context, treeID int64) ([]schema.SkillNode, error) {
	var out []schema.SkillNode
	err := r.db.WithContext(ctx).Where("tree_id = ?", treeID).Order("sort_order ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("查询技能节点失败: %w", err)
	}
	return out, nil
}

// MaxNodeOrder 空树返回 0
func (r *SkillRepository) MaxNodeOrder(ctx context.Context, treeID int64) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&schema.SkillNode{}).
		Select("COALESCE(MAX(sort_order), 0)").
		Where("tree_id = ?", treeID).
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("查询节点序号失败: %w", err)
	}
	return max, nil
}

// GetUnlocked 不存在时返回 (nil, nil)
func (r *SkillRepository) GetUnlocked(ctx context.Context, userID string, nodeID int64) (*schema.UnlockedNode, error) {
	var u schema.UnlockedNode
	err := r.db.WithContext(ctx).Where("user_id = ? AND node_id = ?", userID, nodeID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询解锁记录失败: %w", err)
	}
	return &u, nil
}

// CreateUnlocked 唯一约束冲突原样返回，由调用方判定
func (r *SkillRepository) CreateUnlocked(ctx context.Context, u *schema.UnlockedNode) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("写入解锁记录失败: %w", err)
	}
	return nil
}

// ListUnlocked 返回 nodeID → 解锁记录
func (r *SkillRepository) ListUnlocked(ctx context.Context, userID string, nodeIDs []int64) (map[int64]schema.UnlockedNode, error) {
	out := make(map[int64]schema.UnlockedNode, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return out, nil
	}
	var rows []schema.UnlockedNode
	err := r.db.WithContext(ctx).Where("user_id = ? AND node_id IN ?", userID, nodeIDs).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询解锁记录失败: %w", err)
	}
	for _, u := range rows {
		out[u.NodeID] = u
	}
	return out, nil
}

// CountUnlocked 统计用户某节点的解锁行数（用于校验唯一性）
func (r *SkillRepository) CountUnlocked(ctx context.Context, userID string, nodeID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&schema.UnlockedNode{}).
		Where("user_id = ? AND node_id = ?", userID, nodeID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计解锁记录失败: %w", err)
	}
	return n, nil
}
