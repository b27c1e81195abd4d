package bootstrap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yuqie6/QuestLog/internal/eventbus"
	"github.com/yuqie6/QuestLog/internal/pkg/config"
	"github.com/yuqie6/QuestLog/internal/pkg/daykey"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/service"
)

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	Calendar  *daykey.Calendar
	Hub       *eventbus.Hub
	LogCloser io.Closer

	Services struct {
		Progression  *service.ProgressionService
		Confirmation *service.ConfirmationService
		Unlock       *service.UnlockService
		Rank         *service.RankService
		Catalog      *service.CatalogService
		Query        *service.QueryService
	}
}

// NewCore 加载配置、初始化日志并构建核心依赖
func NewCore(cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logCloser, _ := config.SetupLogger(config.LoggerOptions{
		Level:     cfg.App.LogLevel,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})

	db, err := repository.NewDatabase(cfg.Storage.DBPath, repository.Options{
		BusyTimeoutMs: cfg.Storage.BusyTimeoutMs,
		TxMaxAttempts: cfg.Storage.TxMaxAttempts,
	})
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}

	c, err := NewCoreWith(cfg, db, daykey.SystemClock{})
	if err != nil {
		_ = db.Close()
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}
	c.LogCloser = logCloser
	return c, nil
}

// NewCoreWith 用已打开的数据库与时钟组装服务（测试可注入固定时钟）
func NewCoreWith(cfg *config.Config, db *repository.Database, clock daykey.Clock) (*Core, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("cfg 与 db 不能为空")
	}
	cal, err := daykey.New(cfg.Calendar.Timezone, clock)
	if err != nil {
		return nil, err
	}

	c := &Core{Cfg: cfg, DB: db, Calendar: cal, Hub: eventbus.NewHub()}

	policy := service.DefaultExpPolicy{}
	c.Services.Rank = service.NewRankService(db, cal)
	c.Services.Progression = service.NewProgressionService(db, cal, policy, c.Services.Rank, c.Hub)
	c.Services.Confirmation = service.NewConfirmationService(db, cal, policy, c.Hub, cfg.Progression.AutoConfirmConcurrency)
	c.Services.Unlock = service.NewUnlockService(db, cal, c.Hub)
	c.Services.Catalog = service.NewCatalogService(db)
	c.Services.Query = service.NewQueryService(db, cal, c.Services.Rank)
	return c, nil
}

// RequireWritable 安全模式（迁移失败）下拒绝写操作
func (c *Core) RequireWritable() error {
	if c.DB != nil && c.DB.SafeMode {
		return fmt.Errorf("数据库处于安全模式，禁止写入: %v", c.DB.MigrationError)
	}
	return nil
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
