package bootstrap

import (
	"context"
	"time"

	"github.com/yuqie6/QuestLog/internal/dto"
	"github.com/yuqie6/QuestLog/internal/pkg/buildinfo"
)

// Status 运行状态快照，供 /health 与 CLI 诊断使用
func (c *Core) Status(ctx context.Context, startedAt time.Time) *dto.StatusDTO {
	now := time.Now()
	out := &dto.StatusDTO{
		App: dto.AppStatusDTO{
			Name:      c.Cfg.App.Name,
			Version:   buildinfo.Version,
			Commit:    buildinfo.Commit,
			StartedAt: startedAt.Format(time.RFC3339),
			UptimeSec: int64(now.Sub(startedAt).Seconds()),
		},
		Storage: dto.StorageStatusDTO{
			DBPath: c.Cfg.Storage.DBPath,
		},
	}
	if c.Calendar != nil {
		out.Calendar = dto.CalendarStatusDTO{
			Timezone: c.Calendar.Location().String(),
			Today:    c.Calendar.Today(),
		}
	}
	if c.DB == nil {
		return out
	}

	out.App.SafeMode = c.DB.SafeMode
	out.Storage.SchemaVersion = c.DB.SchemaVersion
	out.Storage.SafeModeReason = c.DB.MigrationError

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if sqlDB, err := c.DB.DB.DB(); err == nil && sqlDB.PingContext(pingCtx) == nil {
		out.Storage.Reachable = true
	}
	return out
}
