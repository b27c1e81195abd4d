package schema

import "time"

const (
	DayStatusDraft     = "draft"
	DayStatusConfirmed = "confirmed"
)

// PlayLog 单次行为记录，创建后只允许删除
// 数据量级：万级
type PlayLog struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"size:64;not null;index:idx_play_user_day,priority:1" json:"user_id"`
	DayKey     string    `gorm:"size:10;not null;index:idx_play_user_day,priority:2" json:"day_key"`
	At         time.Time `gorm:"not null" json:"at"`
	ActionID   int64     `gorm:"not null;index" json:"action_id"`
	CategoryID int64     `gorm:"not null" json:"category_id"`
	Note       *string   `gorm:"size:500" json:"note,omitempty"`
	Quantity   *int64    `json:"quantity,omitempty"`
}

func (PlayLog) TableName() string {
	return "play_logs"
}

// DailyResult 用户某天的结算状态（draft → confirmed）
type DailyResult struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string     `gorm:"size:64;not null;uniqueIndex:uniq_daily_result,priority:1" json:"user_id"`
	DayKey      string     `gorm:"size:10;not null;uniqueIndex:uniq_daily_result,priority:2" json:"day_key"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyResult) TableName() string {
	return "daily_results"
}

func (d *DailyResult) IsConfirmed() bool {
	return d != nil && d.Status == DayStatusConfirmed
}

// DailyCategoryResult 某天某分类的暂定统计；XP/SP 总是由 PlayCount 重新推导
type DailyCategoryResult struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:uniq_daily_category,priority:1" json:"user_id"`
	DayKey     string    `gorm:"size:10;not null;uniqueIndex:uniq_daily_category,priority:2" json:"day_key"`
	CategoryID int64     `gorm:"not null;uniqueIndex:uniq_daily_category,priority:3" json:"category_id"`
	PlayCount  int64     `gorm:"not null" json:"play_count"`
	XPEarned   int64     `gorm:"column:xp_earned;not null" json:"xp_earned"`
	SPEarned   int64     `gorm:"column:sp_earned;not null" json:"sp_earned"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyCategoryResult) TableName() string {
	return "daily_category_results"
}

// PlayerCategoryState 分类累计状态，SP 余额的唯一来源
type PlayerCategoryState struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:uniq_player_category,priority:1" json:"user_id"`
	CategoryID int64     `gorm:"not null;uniqueIndex:uniq_player_category,priority:2" json:"category_id"`
	XPTotal    int64     `gorm:"column:xp_total;not null" json:"xp_total"`
	SPUnspent  int64     `gorm:"column:sp_unspent;not null" json:"sp_unspent"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PlayerCategoryState) TableName() string {
	return "player_category_states"
}
