package schema

import (
	"time"
)

// SkillTree 分类下的技能树
type SkillTree struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"size:64;not null;index" json:"user_id"`
	CategoryID int64     `gorm:"not null;index" json:"category_id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	SortOrder  int       `gorm:"column:sort_order;not null" json:"order"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SkillTree) TableName() string {
	return "skill_trees"
}

// SkillNode 技能树节点
// SortOrder 从 1 开始连续递增，构成线性前置链
type SkillNode struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	TreeID    int64     `gorm:"not null;uniqueIndex:uniq_skill_node_order,priority:1" json:"tree_id"`
	SortOrder int       `gorm:"column:sort_order;not null;uniqueIndex:uniq_skill_node_order,priority:2" json:"order"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	CostSP    int64     `gorm:"column:cost_sp;not null" json:"cost_sp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SkillNode) TableName() string {
	return "skill_nodes"
}

// UnlockedNode 已解锁记录，(user, node) 唯一
type UnlockedNode struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:uniq_unlocked_node,priority:1" json:"user_id"`
	NodeID     int64     `gorm:"not null;uniqueIndex:uniq_unlocked_node,priority:2" json:"node_id"`
	UnlockedAt time.Time `gorm:"not null" json:"unlocked_at"`
}

func (UnlockedNode) TableName() string {
	return "unlocked_nodes"
}

const SpendTypeUnlockNode = "unlock_node"

// SpendLog SP 支出流水（只追加）
type SpendLog struct {
	ID     string    `gorm:"primaryKey;size:36" json:"id"`
	UserID string    `gorm:"size:64;not null;index:idx_spend_user_at,priority:1" json:"user_id"`
	Type   string    `gorm:"size:32;not null" json:"type"`
	CostSP int64     `gorm:"column:cost_sp;not null" json:"cost_sp"`
	RefID  int64     `gorm:"not null" json:"ref_id"`
	At     time.Time `gorm:"not null;index:idx_spend_user_at,priority:2" json:"at"`
	DayKey string    `gorm:"size:10;not null" json:"day_key"`
}

func (SpendLog) TableName() string {
	return "spend_logs"
}
