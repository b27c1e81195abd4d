package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yuqie6/QuestLog/internal/bootstrap"
	"github.com/yuqie6/QuestLog/internal/httpapi"
	"github.com/yuqie6/QuestLog/internal/pkg/config"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径")
	listen := flag.String("listen", "", "监听地址，覆盖 server.listen_addr")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := *cfgPath
	if path == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
				_ = config.WriteFile(p, config.Default())
			}
			path = p
		}
	}

	core, err := bootstrap.NewCore(path)
	if err != nil {
		slog.Error("启动失败", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	if path != "" {
		w, err := config.NewWatcher(path, 0, func(cfg *config.Config) {
			config.SetLogLevel(cfg.App.LogLevel)
		})
		if err != nil {
			slog.Warn("配置热更新不可用", "error", err)
		} else {
			w.Start(ctx)
			defer w.Stop()
		}
	}

	addr := core.Cfg.Server.ListenAddr
	if *listen != "" {
		addr = *listen
	}

	slog.Info("QuestLog 启动中...", "name", core.Cfg.App.Name, "timezone", core.Calendar.Location().String())
	srv, err := httpapi.Start(ctx, core, httpapi.Options{ListenAddr: addr})
	if err != nil {
		slog.Error("启动 HTTP 服务失败", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("正在关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	slog.Info("QuestLog 已退出")
}
