package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuqie6/QuestLog/internal/bootstrap"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
)

// Server HTTP API
type Server struct {
	core      *bootstrap.Core
	startedAt time.Time
}

func NewServer(core *bootstrap.Core) *Server {
	return &Server{core: core, startedAt: time.Now()}
}

// Handler 返回挂载全部路由的 chi router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/events", s.handleSSE)

		r.Group(func(r chi.Router) {
			r.Use(s.writeGuard)

			r.Post("/plays", s.registerPlay)
			r.Delete("/plays/{id}", s.deletePlay)

			r.Post("/days/backfill", s.backfill)
			r.Post("/days/{dayKey}/confirm", s.confirmDay)

			r.Post("/skill-nodes/{id}/unlock", s.unlockNode)

			r.Post("/categories", s.createCategory)
			r.Post("/actions", s.createAction)
			r.Post("/skill-trees", s.createSkillTree)
			r.Post("/skill-nodes", s.createSkillNode)
			r.Post("/seasonal-titles", s.createSeasonalTitle)
		})

		r.Get("/days/{dayKey}", s.getDay)
		r.Get("/categories", s.listCategories)
		r.Get("/categories/{id}/title", s.getTitle)
		r.Get("/progress", s.getProgress)
		r.Get("/trees", s.listTrees)
		r.Get("/trees/{id}", s.getTree)
		r.Get("/spends", s.listSpends)
	})
	return r
}

// writeGuard 数据库处于安全模式时拒绝写请求
func (s *Server) writeGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.core.RequireWritable(); err != nil {
			writeAppError(w, r, apperr.NewInternal("write_guard", err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.core.Status(r.Context(), s.startedAt)
	status := http.StatusOK
	if !st.Storage.Reachable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ok":     status == http.StatusOK,
		"status": st,
	})
}

// LocalServer 监听中的 HTTP 服务
type LocalServer struct {
	ln      net.Listener
	srv     *http.Server
	baseURL string
}

type Options struct {
	ListenAddr string // e.g. "127.0.0.1:8420"
}

// Start 启动 HTTP 服务；ctx 结束时自动关闭
func Start(ctx context.Context, core *bootstrap.Core, opts Options) (*LocalServer, error) {
	if core == nil {
		return nil, fmt.Errorf("core 不能为空")
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("监听失败: %w", err)
	}

	srv := &http.Server{
		Handler:           NewServer(core).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ls := &LocalServer{ln: ln, srv: srv, baseURL: "http://" + ln.Addr().String()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ls.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server 异常退出", "error", err)
		}
	}()

	slog.Info("HTTP 服务已启动", "base_url", ls.baseURL)
	return ls, nil
}

func (s *LocalServer) BaseURL() string {
	if s == nil {
		return ""
	}
	return s.baseURL
}

func (s *LocalServer) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
