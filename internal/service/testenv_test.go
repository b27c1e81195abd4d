package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yuqie6/QuestLog/internal/eventbus"
	"github.com/yuqie6/QuestLog/internal/pkg/daykey"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
	"github.com/yuqie6/QuestLog/internal/testutil"
)

const testUser = "u1"

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(evt eventbus.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) ofType(typ string) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []eventbus.Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db     *repository.Database
	clock  *daykey.FixedClock
	cal    *daykey.Calendar
	events *recordingPublisher

	progression *ProgressionService
	confirm     *ConfirmationService
	unlock      *UnlockService
	rank        *RankService
	catalog     *CatalogService
	query       *QueryService
}

// jst 2025-06-10 12:00 (Asia/Tokyo)
var testNow = time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.Wrap(testutil.OpenTestDB(t), repository.Options{TxMaxAttempts: 3})
	require.NoError(t, err)

	clock := daykey.NewFixedClock(testNow)
	cal, err := daykey.New("Asia/Tokyo", clock)
	require.NoError(t, err)

	events := &recordingPublisher{}
	rank := NewRankService(db, cal)
	return &testEnv{
		db:          db,
		clock:       clock,
		cal:         cal,
		events:      events,
		progression: NewProgressionService(db, cal, nil, rank, events),
		confirm:     NewConfirmationService(db, cal, nil, events, 4),
		unlock:      NewUnlockService(db, cal, events),
		rank:        rank,
		catalog:     NewCatalogService(db),
		query:       NewQueryService(db, cal, rank),
	}
}

// fixture 一个分类（10 XP/次，20 XP/SP，7 天窗口）+ 两个行为 + 三节点技能树
type fixture struct {
	category *schema.Category
	plain    *schema.Action
	counted  *schema.Action
	tree     *schema.SkillTree
	nodes    []*schema.SkillNode
}

func (e *testEnv) seed(t *testing.T, costs ...int64) *fixture {
	t.Helper()
	ctx := context.Background()
	if len(costs) == 0 {
		costs = []int64{1, 1, 1}
	}

	cat, err := e.catalog.CreateCategory(ctx, testUser, CategoryInput{
		Name: "筋トレ", RankWindowDays: 7, XPPerPlay: 10, XPPerSP: 20,
	})
	require.NoError(t, err)

	plain, err := e.catalog.CreateAction(ctx, testUser, ActionInput{CategoryID: cat.ID, Label: "ストレッチ"})
	require.NoError(t, err)
	unit := "回"
	counted, err := e.catalog.CreateAction(ctx, testUser, ActionInput{CategoryID: cat.ID, Label: "腕立て", Unit: &unit})
	require.NoError(t, err)

	tree, err := e.catalog.CreateSkillTree(ctx, testUser, SkillTreeInput{CategoryID: cat.ID, Name: "基礎"})
	require.NoError(t, err)
	f := &fixture{category: cat, plain: plain, counted: counted, tree: tree}
	for i, c := range costs {
		n, err := e.catalog.CreateSkillNode(ctx, testUser, SkillNodeInput{TreeID: tree.ID, Title: "node", CostSP: c})
		require.NoError(t, err)
		require.Equal(t, i+1, n.SortOrder)
		f.nodes = append(f.nodes, n)
	}
	return f
}

// play 在当前时钟下记录 n 次无单位行为
func (e *testEnv) play(t *testing.T, f *fixture, n int) []*RegisterPlayResult {
	t.Helper()
	out := make([]*RegisterPlayResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := e.progression.RegisterPlay(context.Background(), testUser, RegisterPlayInput{ActionID: f.plain.ID})
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

// at 把时钟拨到 testNow 之前/之后 days 天执行 fn
func (e *testEnv) at(days int, fn func()) {
	e.clock.Set(testNow.AddDate(0, 0, days))
	defer e.clock.Set(testNow)
	fn()
}

func (e *testEnv) state(t *testing.T, categoryID int64) *schema.PlayerCategoryState {
	t.Helper()
	st, err := e.db.Repos().States.Get(context.Background(), testUser, categoryID)
	require.NoError(t, err)
	return st
}

// grant 直接确认一天以获得 SP：在 days 天前记录 plays 次并确认
func (e *testEnv) grant(t *testing.T, f *fixture, days, plays int) {
	t.Helper()
	e.at(-days, func() {
		e.play(t, f, plays)
	})
	key := testNow.AddDate(0, 0, -days).In(e.cal.Location()).Format(daykey.Layout)
	_, err := e.confirm.ConfirmDay(context.Background(), testUser, key, ConfirmOptions{})
	require.NoError(t, err)
}
