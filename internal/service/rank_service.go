package service

import (
	"context"

	"github.com/yuqie6/QuestLog/internal/observability"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
	"go.opentelemetry.io/otel/attribute"
)

// RankService 赛季称号计算（只读）
type RankService struct {
	store Store
	cal   Calendar
}

func NewRankService(store Store, cal Calendar) *RankService {
	return &RankService{store: store, cal: cal}
}

// RankStanding 某分类当前窗口的 SP 合计与称号
type RankStanding struct {
	CategoryID int64                 `json:"category_id"`
	WindowDays int                   `json:"window_days"`
	WindowSP   int64                 `json:"window_sp"`
	Title      *schema.SeasonalTitle `json:"title"`
}

// RankChange 两个窗口合计对应称号的比较结果
type RankChange struct {
	CategoryID int64                 `json:"category_id"`
	Previous   *schema.SeasonalTitle `json:"previous"`
	Current    *schema.SeasonalTitle `json:"current"`
	Changed    bool                  `json:"changed"`
}

// SelectTitle 取 minSpEarned ≤ sum 中阈值最高者，阈值相同取 order 最大；都不满足返回 nil
func SelectTitle(titles []schema.SeasonalTitle, sum int64) *schema.SeasonalTitle {
	var best *schema.SeasonalTitle
	for i := range titles {
		t := &titles[i]
		if t.MinSPEarned > sum {
			continue
		}
		if best == nil ||
			t.MinSPEarned > best.MinSPEarned ||
			(t.MinSPEarned == best.MinSPEarned && t.SortOrder > best.SortOrder) {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func titleLabel(t *schema.SeasonalTitle) (string, bool) {
	if t == nil {
		return "", false
	}
	return t.Label, true
}

// CurrentTitle 当前窗口称号
func (s *RankService) CurrentTitle(ctx context.Context, userID string, categoryID int64) (res *RankStanding, err error) {
	ctx, op := observability.StartOp(ctx, "current_title", userID, attribute.Int64("category.id", categoryID))
	defer func() { op.End(err) }()

	repos := s.store.Repos()
	cat, err := repos.Categories.GetByID(ctx, userID, categoryID)
	if err != nil {
		return nil, repository.ClassifyStoreError("current_title", err)
	}
	if cat == nil {
		return nil, apperr.NewNotFound("category", categoryID)
	}

	sum, err := s.windowSum(ctx, repos, userID, cat)
	if err != nil {
		return nil, err
	}
	titles, err := repos.Titles.ListByCategory(ctx, userID, categoryID)
	if err != nil {
		return nil, repository.ClassifyStoreError("current_title", err)
	}
	return &RankStanding{
		CategoryID: categoryID,
		WindowDays: cat.RankWindowDays,
		WindowSP:   sum,
		Title:      SelectTitle(titles, sum),
	}, nil
}

// RankDelta 比较两个合计对应的称号，仅当标签不同才算变化
func (s *RankService) RankDelta(ctx context.Context, userID string, categoryID, currentSum, previousSum int64) (*RankChange, error) {
	titles, err := s.store.Repos().Titles.ListByCategory(ctx, userID, categoryID)
	if err != nil {
		return nil, repository.ClassifyStoreError("rank_delta", err)
	}
	return CompareTitles(categoryID, titles, currentSum, previousSum), nil
}

// CompareTitles RankDelta 的纯计算部分
func CompareTitles(categoryID int64, titles []schema.SeasonalTitle, currentSum, previousSum int64) *RankChange {
	cur := SelectTitle(titles, currentSum)
	prev := SelectTitle(titles, previousSum)
	curLabel, curOK := titleLabel(cur)
	prevLabel, prevOK := titleLabel(prev)
	return &RankChange{
		CategoryID: categoryID,
		Previous:   prev,
		Current:    cur,
		Changed:    curOK != prevOK || curLabel != prevLabel,
	}
}

// windowSum 今天起往前 rankWindowDays 天的 SP 合计
func (s *RankService) windowSum(ctx context.Context, repos *repository.Repos, userID string, cat *schema.Category) (int64, error) {
	keys, err := s.cal.Recent(cat.RankWindowDays)
	if err != nil {
		return 0, err
	}
	sum, err := repos.Days.SumSPEarned(ctx, userID, cat.ID, keys)
	if err != nil {
		return 0, repository.ClassifyStoreError("rank_window_sum", err)
	}
	return sum, nil
}

// inWindow 日期键是否落在分类的当前窗口内
func (s *RankService) inWindow(cat *schema.Category, dayKey string) (bool, error) {
	keys, err := s.cal.Recent(cat.RankWindowDays)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == dayKey {
			return true, nil
		}
	}
	return false, nil
}
