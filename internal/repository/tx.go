package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/yuqie6/QuestLog/internal/observability"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"gorm.io/gorm"
)

// Repos 绑定到同一连接（或同一事务）的仓储集合
type Repos struct {
	Categories *CategoryRepository
	Actions    *ActionRepository
	Titles     *SeasonalTitleRepository
	Plays      *PlayLogRepository
	Days       *DailyResultRepository
	States     *PlayerStateRepository
	Skills     *SkillRepository
	Spends     *SpendLogRepository
}

// NewRepos 创建仓储集合
func NewRepos(db *gorm.DB) *Repos {
	return &Repos{
		Categories: NewCategoryRepository(db),
		Actions:    NewActionRepository(db),
		Titles:     NewSeasonalTitleRepository(db),
		Plays:      NewPlayLogRepository(db),
		Days:       NewDailyResultRepository(db),
		States:     NewPlayerStateRepository(db),
		Skills:     NewSkillRepository(db),
		Spends:     NewSpendLogRepository(db),
	}
}

// Repos 非事务仓储（只读路径使用）
func (d *Database) Repos() *Repos {
	return NewRepos(d.DB)
}

// InTx 在单个事务中执行 fn，失败整体回滚。
// fn 内只能使用传入的 Repos，否则单连接池下会互相等待。
// 领域错误原样返回；SQLite 忙/锁冲突有限次重试后归类为 retryable，其余归类为 internal。
func (d *Database) InTx(ctx context.Context, op string, fn func(r *Repos) error) error {
	attempts := d.opts.withDefaults().TxMaxAttempts
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(NewRepos(tx))
		})
		if err == nil {
			return nil
		}

		var domainErr *apperr.Error
		if errors.As(err, &domainErr) && !(domainErr.Kind == apperr.KindRetryable && IsBusy(err)) {
			return err
		}
		if isContextErr(err) || ctx.Err() != nil {
			return apperr.NewRetryable(op, err)
		}
		if !IsBusy(err) {
			slog.Error("事务执行失败", "op", op, "error", err)
			return apperr.NewInternal(op, err)
		}

		observability.IncTxRetry(op)
		slog.Warn("数据库忙，重试事务", "op", op, "attempt", attempt, "error", err)
		if attempt < attempts {
			if werr := sleepCtx(ctx, backoff(attempt)); werr != nil {
				return apperr.NewRetryable(op, werr)
			}
		}
	}
	return apperr.NewRetryable(op, err)
}

// ClassifyStoreError 非事务路径的存储错误归类：领域错误原样返回，忙/超时归为 retryable，其余归为 internal
func ClassifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if isContextErr(err) || IsBusy(err) {
		return apperr.NewRetryable(op, err)
	}
	return apperr.NewInternal(op, err)
}

// IsBusy SQLite 写锁冲突
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// IsUniqueViolation 唯一约束冲突
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 20 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
