package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yuqie6/QuestLog/internal/eventbus"
	"github.com/yuqie6/QuestLog/internal/observability"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/pkg/daykey"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ConfirmationService 日结算状态机（draft → confirmed）
type ConfirmationService struct {
	store       Store
	cal         Calendar
	expPolicy   ExpPolicy
	events      EventPublisher
	concurrency int
}

// NewConfirmationService concurrency 为补确认的并发上限
func NewConfirmationService(store Store, cal Calendar, expPolicy ExpPolicy, events EventPublisher, concurrency int) *ConfirmationService {
	if expPolicy == nil {
		expPolicy = DefaultExpPolicy{}
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ConfirmationService{
		store:       store,
		cal:         cal,
		expPolicy:   expPolicy,
		events:      publisherOrNoop(events),
		concurrency: concurrency,
	}
}

// ConfirmOptions 确认选项
type ConfirmOptions struct {
	// AllowAlreadyConfirmed 已确认时返回现有记录而不是报错
	AllowAlreadyConfirmed bool
}

// ConfirmResult 确认结果
type ConfirmResult struct {
	Day        schema.DailyResult           `json:"day"`
	Categories []schema.DailyCategoryResult `json:"categories"`
	// AlreadyConfirmed 为 true 表示本次调用没有发生折算
	AlreadyConfirmed bool `json:"already_confirmed"`
}

// ConfirmDay 确认某天并把分类 XP/SP 折算进累计状态
func (s *ConfirmationService) ConfirmDay(ctx context.Context, userID, dayKey string, opts ConfirmOptions) (res *ConfirmResult, err error) {
	ctx, op := observability.StartOp(ctx, "confirm_day", userID, attribute.String("day.key", dayKey))
	defer func() { op.End(err) }()

	if _, err := s.cal.Parse(dayKey); err != nil {
		return nil, err
	}
	// 未来日期在访问存储之前拒绝
	if s.cal.IsFuture(dayKey) {
		return nil, apperr.NewFutureDate(dayKey)
	}

	var (
		out      ConfirmResult
		spFolded int64
	)
	err = s.store.InTx(ctx, "confirm_day", func(r *repository.Repos) error {
		dr, err := r.Days.EnsureDraft(ctx, userID, dayKey)
		if err != nil {
			return err
		}
		if dr.IsConfirmed() {
			if !opts.AllowAlreadyConfirmed {
				return apperr.NewAlreadyConfirmed(dayKey)
			}
			cats, err := r.Days.ListCategoryResults(ctx, userID, dayKey)
			if err != nil {
				return err
			}
			out = ConfirmResult{Day: *dr, Categories: cats, AlreadyConfirmed: true}
			return nil
		}

		cats, err := r.Days.ListCategoryResults(ctx, userID, dayKey)
		if err != nil {
			return err
		}
		for i := range cats {
			dcr := &cats[i]
			cat, err := r.Categories.GetByID(ctx, userID, dcr.CategoryID)
			if err != nil {
				return err
			}
			if cat == nil {
				return apperr.NewNotFound("category", dcr.CategoryID)
			}
			// 确认前最后一次由次数推导，不信任之前写入的值
			if dcr.XPEarned, dcr.SPEarned, err = recomputeEarned(s.expPolicy, dcr.PlayCount, cat.XPPerPlay, cat.XPPerSP); err != nil {
				return err
			}
			if err := r.Days.SaveCategoryResult(ctx, dcr); err != nil {
				return err
			}
			if err := r.States.AddEarned(ctx, userID, dcr.CategoryID, dcr.XPEarned, dcr.SPEarned); err != nil {
				return err
			}
			spFolded += dcr.SPEarned
		}

		ok, err := r.Days.MarkConfirmed(ctx, userID, dayKey, s.cal.Now())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NewRetryable("confirm_day", errors.New("day status changed during confirmation"))
		}
		confirmed, err := r.Days.Get(ctx, userID, dayKey)
		if err != nil {
			return err
		}
		out = ConfirmResult{Day: *confirmed, Categories: cats}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !out.AlreadyConfirmed {
		observability.AddSPFolded(spFolded)
		s.events.Publish(eventbus.Event{
			Type:   eventbus.TypeDayConfirmed,
			UserID: userID,
			Data:   map[string]any{"day_key": dayKey, "sp_folded": spFolded, "categories": len(out.Categories)},
		})
	}
	return &out, nil
}

// DayOutcome 补确认中单日的结果
type DayOutcome struct {
	DayKey string         `json:"day_key"`
	Result *ConfirmResult `json:"result,omitempty"`
	Err    error          `json:"-"`
}

// AutoConfirmRecentDays 补确认今天之前的 n-1 天（今天不自动确认）。
// 各天互不影响，单日失败记录在对应 DayOutcome 中。
func (s *ConfirmationService) AutoConfirmRecentDays(ctx context.Context, userID string, n int) (outcomes []DayOutcome, err error) {
	ctx, op := observability.StartOp(ctx, "auto_confirm_recent_days", userID, attribute.Int("days", n))
	defer func() { op.End(err) }()

	if n < 0 || n > daykey.MaxRecentDays {
		return nil, apperr.NewInvalidArgument("days", fmt.Sprintf("must be within [0, %d]", daykey.MaxRecentDays))
	}
	keys, err := s.cal.Recent(n)
	if err != nil {
		return nil, err
	}
	today := s.cal.Today()
	past := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != today {
			past = append(past, k)
		}
	}

	outcomes = make([]DayOutcome, len(past))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, key := range past {
		g.Go(func() error {
			res, err := s.ConfirmDay(gctx, userID, key, ConfirmOptions{AllowAlreadyConfirmed: true})
			outcomes[i] = DayOutcome{DayKey: key, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].DayKey > outcomes[j].DayKey })

	var newly, failed int
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
		case o.Result != nil && !o.Result.AlreadyConfirmed:
			newly++
		}
	}
	if failed > 0 {
		slog.Warn("补确认部分失败", "user_id", userID, "days", len(outcomes), "confirmed", newly, "failed", failed)
	} else {
		slog.Info("补确认完成", "user_id", userID, "days", len(outcomes), "confirmed", newly)
	}
	return outcomes, nil
}
