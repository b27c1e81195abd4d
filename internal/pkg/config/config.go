package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/yuqie6/QuestLog/internal/pkg/daykey"
)

// Config 应用配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Calendar    CalendarConfig    `mapstructure:"calendar"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Server      ServerConfig      `mapstructure:"server"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath        string `mapstructure:"db_path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
	TxMaxAttempts int    `mapstructure:"tx_max_attempts"`
}

// CalendarConfig 日界线所在时区
type CalendarConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// ProgressionConfig 结算相关
type ProgressionConfig struct {
	AutoConfirmDays        int `mapstructure:"auto_confirm_days"`
	AutoConfirmConcurrency int `mapstructure:"auto_confirm_concurrency"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v, err := NewViper(configPath)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// NewViper 构建已读取配置的 viper 实例，调用方可继续 WatchConfig
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		slog.Warn("配置文件未找到，使用默认配置")
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}
	return v, nil
}

// Decode 从 viper 解析配置并做后处理
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Storage.DBPath = resolvePath(expandEnv(cfg.Storage.DBPath))
	cfg.App.LogPath = expandEnv(cfg.App.LogPath)
	if cfg.App.LogPath != "" {
		cfg.App.LogPath = resolvePath(cfg.App.LogPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 默认配置（不读文件与环境变量）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 检查数值型配置
func (c *Config) Validate() error {
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path 不能为空")
	}
	if c.Storage.TxMaxAttempts < 1 {
		return fmt.Errorf("storage.tx_max_attempts 必须 >= 1")
	}
	if c.Progression.AutoConfirmDays < 0 || c.Progression.AutoConfirmDays > daykey.MaxRecentDays {
		return fmt.Errorf("progression.auto_confirm_days 必须在 0 到 %d 之间", daykey.MaxRecentDays)
	}
	if c.Progression.AutoConfirmConcurrency < 1 {
		return fmt.Errorf("progression.auto_confirm_concurrency 必须 >= 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "questlog")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Storage
	v.SetDefault("storage.db_path", "./data/questlog.db")
	v.SetDefault("storage.busy_timeout_ms", 5000)
	v.SetDefault("storage.tx_max_attempts", 3)

	v.SetDefault("calendar.timezone", "Asia/Tokyo")

	v.SetDefault("progression.auto_confirm_days", 7)
	v.SetDefault("progression.auto_confirm_concurrency", 4)

	v.SetDefault("server.listen_addr", "127.0.0.1:8420")
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// resolvePath 相对路径以可执行文件目录为基准；内存库原样返回
func resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}
