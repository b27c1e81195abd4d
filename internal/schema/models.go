package schema

import "time"

// AllModels 迁移顺序（SchemaMeta 单独处理）
func AllModels() []any {
	return []any{
		&Category{},
		&Action{},
		&SeasonalTitle{},
		&SkillTree{},
		&SkillNode{},
		&UnlockedNode{},
		&SpendLog{},
		&PlayLog{},
		&DailyResult{},
		&DailyCategoryResult{},
		&PlayerCategoryState{},
	}
}

// SchemaMeta 单行表（ID=1），记录已应用的迁移版本
type SchemaMeta struct {
	ID            int       `gorm:"primaryKey"`
	SchemaVersion int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (SchemaMeta) TableName() string { return "schema_meta" }
