package schema

import "time"

// Category 习惯分类（参考数据）
// 数据量级：十级
type Category struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string    `gorm:"size:64;not null;uniqueIndex:uniq_category_user_name,priority:1" json:"user_id"`
	Name           string    `gorm:"size:100;not null;uniqueIndex:uniq_category_user_name,priority:2" json:"name"`
	Visible        bool      `gorm:"not null" json:"visible"`
	SortOrder      int       `gorm:"column:sort_order;not null" json:"order"` // order 是 SQL 保留字
	RankWindowDays int       `gorm:"column:rank_window_days;not null" json:"rank_window_days"`
	XPPerPlay      int64     `gorm:"column:xp_per_play;not null" json:"xp_per_play"`
	XPPerSP        int64     `gorm:"column:xp_per_sp;not null" json:"xp_per_sp"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

// Action 可记录的行为；Unit 非空时记录需要数量
type Action struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"size:64;not null;index" json:"user_id"`
	CategoryID int64     `gorm:"not null;index" json:"category_id"`
	Label      string    `gorm:"size:200;not null" json:"label"`
	Unit       *string   `gorm:"size:32" json:"unit,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Action) TableName() string {
	return "actions"
}

// HasUnit 是否需要数量
func (a *Action) HasUnit() bool {
	return a.Unit != nil && *a.Unit != ""
}

// SeasonalTitle 赛季称号阈值
type SeasonalTitle struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string `gorm:"size:64;not null;index" json:"user_id"`
	CategoryID  int64  `gorm:"not null;index" json:"category_id"`
	Label       string `gorm:"size:100;not null" json:"label"`
	MinSPEarned int64  `gorm:"column:min_sp_earned;not null" json:"min_sp_earned"`
	SortOrder   int    `gorm:"column:sort_order;not null" json:"order"`
}

func (SeasonalTitle) TableName() string {
	return "seasonal_titles"
}
