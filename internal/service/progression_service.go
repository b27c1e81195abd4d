package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yuqie6/QuestLog/internal/eventbus"
	"github.com/yuqie6/QuestLog/internal/observability"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
	"go.opentelemetry.io/otel/attribute"
)

// ProgressionService 行为记录与分类日统计
type ProgressionService struct {
	store     Store
	cal       Calendar
	expPolicy ExpPolicy
	rank      *RankService
	events    EventPublisher
}

// NewProgressionService 创建服务
func NewProgressionService(store Store, cal Calendar, expPolicy ExpPolicy, rank *RankService, events EventPublisher) *ProgressionService {
	if expPolicy == nil {
		expPolicy = DefaultExpPolicy{}
	}
	if rank == nil {
		rank = NewRankService(store, cal)
	}
	return &ProgressionService{
		store:     store,
		cal:       cal,
		expPolicy: expPolicy,
		rank:      rank,
		events:    publisherOrNoop(events),
	}
}

// RegisterPlayInput 记录一次行为
type RegisterPlayInput struct {
	ActionID int64   `json:"action_id"`
	Quantity *int64  `json:"quantity,omitempty"`
	Note     *string `json:"note,omitempty"`
}

// RegisterPlayResult 记录结果
type RegisterPlayResult struct {
	Play           schema.PlayLog             `json:"play"`
	CategoryResult schema.DailyCategoryResult `json:"category_result"`
	RankChange     *RankChange                `json:"rank_change,omitempty"`
}

// validateQuantity 有单位必须给正数，无单位必须不给
func validateQuantity(action *schema.Action, quantity *int64) error {
	if action.HasUnit() {
		if quantity == nil {
			return apperr.NewValidation("quantity", "required for actions with a unit")
		}
		if *quantity <= 0 {
			return apperr.NewValidation("quantity", "must be positive")
		}
		return nil
	}
	if quantity != nil {
		return apperr.NewValidation("quantity", "not allowed for actions without a unit")
	}
	return nil
}

// RegisterPlay 记录行为并重算当天分类统计。
// 今天已确认时记到明天。
func (s *ProgressionService) RegisterPlay(ctx context.Context, userID string, in RegisterPlayInput) (res *RegisterPlayResult, err error) {
	ctx, op := observability.StartOp(ctx, "register_play", userID, attribute.Int64("action.id", in.ActionID))
	defer func() { op.End(err) }()

	if userID == "" {
		return nil, apperr.NewValidation("user_id", "required")
	}

	var (
		out      RegisterPlayResult
		category schema.Category
		spBefore int64
	)
	err = s.store.InTx(ctx, "register_play", func(r *repository.Repos) error {
		action, err := r.Actions.GetByID(ctx, userID, in.ActionID)
		if err != nil {
			return err
		}
		if action == nil {
			return apperr.NewNotFound("action", in.ActionID)
		}
		if err := validateQuantity(action, in.Quantity); err != nil {
			return err
		}
		cat, err := r.Categories.GetByID(ctx, userID, action.CategoryID)
		if err != nil {
			return err
		}
		if cat == nil {
			return apperr.NewNotFound("category", action.CategoryID)
		}
		category = *cat

		target := s.cal.Today()
		todayDR, err := r.Days.Get(ctx, userID, target)
		if err != nil {
			return err
		}
		if todayDR.IsConfirmed() {
			if target, err = s.cal.Next(target); err != nil {
				return err
			}
		}

		dr, err := r.Days.EnsureDraft(ctx, userID, target)
		if err != nil {
			return err
		}
		if dr.IsConfirmed() {
			return apperr.NewInvalidOperation("register_play", "target day already confirmed")
		}

		play := schema.PlayLog{
			ID:         uuid.NewString(),
			UserID:     userID,
			DayKey:     target,
			At:         s.cal.Now(),
			ActionID:   action.ID,
			CategoryID: cat.ID,
			Note:       in.Note,
			Quantity:   in.Quantity,
		}
		if err := r.Plays.Create(ctx, &play); err != nil {
			return err
		}

		dcr, err := r.Days.GetCategoryResult(ctx, userID, target, cat.ID)
		if err != nil {
			return err
		}
		if dcr == nil {
			dcr = &schema.DailyCategoryResult{UserID: userID, DayKey: target, CategoryID: cat.ID}
		}
		spBefore = dcr.SPEarned
		dcr.PlayCount++
		if dcr.XPEarned, dcr.SPEarned, err = recomputeEarned(s.expPolicy, dcr.PlayCount, cat.XPPerPlay, cat.XPPerSP); err != nil {
			return err
		}
		if err := r.Days.SaveCategoryResult(ctx, dcr); err != nil {
			return err
		}

		out.Play = play
		out.CategoryResult = *dcr
		return nil
	})
	if err != nil {
		return nil, err
	}

	op.SetAttributes(attribute.String("day.key", out.Play.DayKey))
	s.events.Publish(eventbus.Event{
		Type:   eventbus.TypePlayRegistered,
		UserID: userID,
		Data: map[string]any{
			"play_id":     out.Play.ID,
			"day_key":     out.Play.DayKey,
			"category_id": category.ID,
			"play_count":  out.CategoryResult.PlayCount,
		},
	})

	if delta := out.CategoryResult.SPEarned - spBefore; delta != 0 {
		out.RankChange = s.notifyRankChange(ctx, userID, &category, out.Play.DayKey, delta)
	}
	return &out, nil
}

// notifyRankChange 提交后比较窗口前后称号；失败只记日志，不影响已提交的记录
func (s *ProgressionService) notifyRankChange(ctx context.Context, userID string, cat *schema.Category, dayKey string, spDelta int64) *RankChange {
	in, err := s.rank.inWindow(cat, dayKey)
	if err != nil || !in {
		return nil
	}
	current, err := s.rank.windowSum(ctx, s.store.Repos(), userID, cat)
	if err != nil {
		slog.Warn("计算称号窗口失败", "user_id", userID, "category_id", cat.ID, "error", err)
		return nil
	}
	change, err := s.rank.RankDelta(ctx, userID, cat.ID, current, current-spDelta)
	if err != nil {
		slog.Warn("计算称号变化失败", "user_id", userID, "category_id", cat.ID, "error", err)
		return nil
	}
	if !change.Changed {
		return nil
	}

	observability.IncRankChange()
	data := map[string]any{"category_id": cat.ID, "window_sp": current}
	if label, ok := titleLabel(change.Current); ok {
		data["current"] = label
	}
	if label, ok := titleLabel(change.Previous); ok {
		data["previous"] = label
	}
	s.events.Publish(eventbus.Event{Type: eventbus.TypeRankChanged, UserID: userID, Data: data})
	return change
}

// DeletePlay 删除草稿日的行为记录并重算统计
func (s *ProgressionService) DeletePlay(ctx context.Context, userID, playID string) (err error) {
	ctx, op := observability.StartOp(ctx, "delete_play", userID, attribute.String("play.id", playID))
	defer func() { op.End(err) }()

	var play *schema.PlayLog
	err = s.store.InTx(ctx, "delete_play", func(r *repository.Repos) error {
		var err error
		play, err = r.Plays.GetByID(ctx, userID, playID)
		if err != nil {
			return err
		}
		if play == nil {
			return apperr.NewNotFound("play_log", playID)
		}
		dr, err := r.Days.Get(ctx, userID, play.DayKey)
		if err != nil {
			return err
		}
		if dr.IsConfirmed() {
			return apperr.NewInvalidOperation("delete_play", "day already confirmed")
		}

		cat, err := r.Categories.GetByID(ctx, userID, play.CategoryID)
		if err != nil {
			return err
		}
		if cat == nil {
			return apperr.NewNotFound("category", play.CategoryID)
		}
		dcr, err := r.Days.GetCategoryResult(ctx, userID, play.DayKey, play.CategoryID)
		if err != nil {
			return err
		}
		if dcr != nil {
			dcr.PlayCount--
			if dcr.PlayCount < 0 {
				dcr.PlayCount = 0
			}
			if dcr.XPEarned, dcr.SPEarned, err = recomputeEarned(s.expPolicy, dcr.PlayCount, cat.XPPerPlay, cat.XPPerSP); err != nil {
				return err
			}
			if err := r.Days.SaveCategoryResult(ctx, dcr); err != nil {
				return err
			}
		}
		return r.Plays.Delete(ctx, userID, playID)
	})
	if err != nil {
		return err
	}

	s.events.Publish(eventbus.Event{
		Type:   eventbus.TypePlayDeleted,
		UserID: userID,
		Data:   map[string]any{"play_id": playID, "day_key": play.DayKey, "category_id": play.CategoryID},
	})
	return nil
}
