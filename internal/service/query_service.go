package service

import (
	"context"
	"time"

	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
)

// QueryService 只读视图
type QueryService struct {
	store Store
	cal   Calendar
	rank  *RankService
}

func NewQueryService(store Store, cal Calendar, rank *RankService) *QueryService {
	if rank == nil {
		rank = NewRankService(store, cal)
	}
	return &QueryService{store: store, cal: cal, rank: rank}
}

// DaySummary 某天的结算状态、分类统计与行为记录
type DaySummary struct {
	Day        schema.DailyResult           `json:"day"`
	Categories []schema.DailyCategoryResult `json:"categories"`
	Plays      []schema.PlayLog             `json:"plays"`
}

func (s *QueryService) DaySummary(ctx context.Context, userID, dayKey string) (*DaySummary, error) {
	if _, err := s.cal.Parse(dayKey); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	dr, err := repos.Days.Get(ctx, userID, dayKey)
	if err != nil {
		return nil, repository.ClassifyStoreError("day_summary", err)
	}
	if dr == nil {
		// 尚未产生记录的日期视为空草稿，不落库
		dr = &schema.DailyResult{UserID: userID, DayKey: dayKey, Status: schema.DayStatusDraft}
	}
	cats, err := repos.Days.ListCategoryResults(ctx, userID, dayKey)
	if err != nil {
		return nil, repository.ClassifyStoreError("day_summary", err)
	}
	plays, err := repos.Plays.ListByDay(ctx, userID, dayKey)
	if err != nil {
		return nil, repository.ClassifyStoreError("day_summary", err)
	}
	return &DaySummary{Day: *dr, Categories: cats, Plays: plays}, nil
}

// CategoryProgress 分类累计进度
type CategoryProgress struct {
	Category          schema.Category       `json:"category"`
	XPTotal           int64                 `json:"xp_total"`
	SPUnspent         int64                 `json:"sp_unspent"`
	XPUntilNextSP     int64                 `json:"xp_until_next_sp"`
	XPProgressPercent int                   `json:"xp_progress_percent"`
	WindowSP          int64                 `json:"window_sp"`
	Title             *schema.SeasonalTitle `json:"title"`
}

// CategoryProgress 所有分类的进度（无累计状态的分类按 0 计）
func (s *QueryService) CategoryProgress(ctx context.Context, userID string) ([]CategoryProgress, error) {
	repos := s.store.Repos()
	cats, err := repos.Categories.List(ctx, userID)
	if err != nil {
		return nil, repository.ClassifyStoreError("category_progress", err)
	}
	states, err := repos.States.ListByUser(ctx, userID)
	if err != nil {
		return nil, repository.ClassifyStoreError("category_progress", err)
	}
	byCat := make(map[int64]schema.PlayerCategoryState, len(states))
	for _, st := range states {
		byCat[st.CategoryID] = st
	}

	out := make([]CategoryProgress, 0, len(cats))
	for i := range cats {
		cat := &cats[i]
		st := byCat[cat.ID]
		untilNext, err := XPUntilNextSP(st.XPTotal, cat.XPPerSP)
		if err != nil {
			return nil, err
		}
		pct, err := XPProgressPercent(st.XPTotal, cat.XPPerSP)
		if err != nil {
			return nil, err
		}
		windowSP, err := s.rank.windowSum(ctx, repos, userID, cat)
		if err != nil {
			return nil, err
		}
		titles, err := repos.Titles.ListByCategory(ctx, userID, cat.ID)
		if err != nil {
			return nil, repository.ClassifyStoreError("category_progress", err)
		}
		out = append(out, CategoryProgress{
			Category:          *cat,
			XPTotal:           st.XPTotal,
			SPUnspent:         st.SPUnspent,
			XPUntilNextSP:     untilNext,
			XPProgressPercent: pct,
			WindowSP:          windowSP,
			Title:             SelectTitle(titles, windowSP),
		})
	}
	return out, nil
}

// NodeView 技能节点展示状态
type NodeView struct {
	Node       schema.SkillNode `json:"node"`
	Unlocked   bool             `json:"unlocked"`
	UnlockedAt *time.Time       `json:"unlocked_at,omitempty"`
	CanUnlock  bool             `json:"can_unlock"`
}

// TreeView 技能树与解锁进度
type TreeView struct {
	Tree      schema.SkillTree `json:"tree"`
	SPUnspent int64            `json:"sp_unspent"`
	Nodes     []NodeView       `json:"nodes"`
}

func (s *QueryService) TreeView(ctx context.Context, userID string, treeID int64) (*TreeView, error) {
	repos := s.store.Repos()
	tree, err := repos.Skills.GetTree(ctx, userID, treeID)
	if err != nil {
		return nil, repository.ClassifyStoreError("tree_view", err)
	}
	if tree == nil {
		return nil, apperr.NewNotFound("skill_tree", treeID)
	}
	nodes, err := repos.Skills.ListNodes(ctx, treeID)
	if err != nil {
		return nil, repository.ClassifyStoreError("tree_view", err)
	}
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	unlocked, err := repos.Skills.ListUnlocked(ctx, userID, ids)
	if err != nil {
		return nil, repository.ClassifyStoreError("tree_view", err)
	}
	st, err := repos.States.Get(ctx, userID, tree.CategoryID)
	if err != nil {
		return nil, repository.ClassifyStoreError("tree_view", err)
	}
	var balance int64
	if st != nil {
		balance = st.SPUnspent
	}

	view := &TreeView{Tree: *tree, SPUnspent: balance, Nodes: make([]NodeView, 0, len(nodes))}
	prevUnlocked := true // order=1 没有前置
	for _, n := range nodes {
		nv := NodeView{Node: n}
		if u, ok := unlocked[n.ID]; ok {
			at := u.UnlockedAt
			nv.Unlocked = true
			nv.UnlockedAt = &at
		}
		enough, _ := HasEnoughSP(balance, n.CostSP)
		nv.CanUnlock = st != nil && !nv.Unlocked && prevUnlocked && enough
		prevUnlocked = nv.Unlocked
		view.Nodes = append(view.Nodes, nv)
	}
	return view, nil
}

// SpendHistory 支出流水，最新在前
func (s *QueryService) SpendHistory(ctx context.Context, userID string, limit int) ([]schema.SpendLog, error) {
	out, err := s.store.Repos().Spends.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, repository.ClassifyStoreError("spend_history", err)
	}
	return out, nil
}
