package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuqie6/QuestLog/internal/eventbus"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/schema"
)

func TestRegisterPlayRecomputesFromCount(t *testing.T) {
	env := newTestEnv(t)
	f := env.seed(t)

	results := env.play(t, f, 3)
	last := results[2].CategoryResult
	assert.Equal(t, "2025-06-10", results[0].Play.DayKey)
	assert.EqualValues(t, 3, last.PlayCount)
	assert.EqualValues(t, 30, last.XPEarned)
	assert.EqualValues(t, 1, last.SPEarned)

	ctx := context.Background()
	require.NoError(t, env.progression.DeletePlay(ctx, testUser, results[0].Play.ID))
	dcr, err := env.db.Repos().Days.GetCategoryResult(ctx, testUser, "2025-06-10", f.category.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, dcr.PlayCount)
	assert.EqualValues(t, 20, dcr.XPEarned)
	assert.EqualValues(t, 1, dcr.SPEarned)

	require.NoError(t, env.progression.DeletePlay(ctx, testUser, results[1].Play.ID))
	dcr, _ = env.db.Repos().Days.GetCategoryResult(ctx, testUser, "2025-06-10", f.category.ID)
	assert.EqualValues(t, 1, dcr.PlayCount)
	assert.EqualValues(t, 10, dcr.XPEarned)
	assert.EqualValues(t, 0, dcr.SPEarned)

	gone, err := env.db.Repos().Plays.GetByID(ctx, testUser, results[0].Play.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.Len(t, env.events.ofType(eventbus.TypePlayRegistered), 3)
	assert.Len(t, env.events.ofType(eventbus.TypePlayDeleted), 2)
}

func TestRegisterPlayQuantityRules(t *testing.T) {
	env := newTestEnv(t)
	f := env.seed(t)
	ctx := context.Background()
	zero, two := int64(0), int64(2)

	cases := []struct {
		name     string
		actionID int64
		quantity *int64
	}{
		{"unit action without quantity", f.counted.ID, nil},
		{"unit action with zero", f.counted.ID, &zero},
		{"plain action with quantity", f.plain.ID, &two},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.progression.RegisterPlay(ctx, testUser, RegisterPlayInput{ActionID: tc.actionID, Quantity: tc.quantity})
			d, ok := apperr.DetailOf[apperr.Validation](err)
			require.True(t, ok, "err=%v", err)
			assert.Equal(t, "quantity", d.Field)
		})
	}

	res, err := env.progression.RegisterPlay(ctx, testUser, RegisterPlayInput{ActionID: f.counted.ID, Quantity: &two})
	require.NoError(t, err)
	require.NotNil(t, res.Play.Quantity)
	assert.EqualValues(t, 2, *res.Play.Quantity)

	// 校验失败不应留下任何行
	sum, err := env.query.DaySummary(ctx, testUser, "2025-06-10")
	require.NoError(t, err)
	assert.Len(t, sum.Plays, 1)
}

func TestRegisterPlayUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	f := env.seed(t)
	_, err := env.progression.RegisterPlay(context.Background(), testUser, RegisterPlayInput{ActionID: 999})
	d, ok := apperr.DetailOf[apperr.NotFound](err)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, "action", d.Resource)

	// 其他用户看不到该行为
	_, err = env.progression.RegisterPlay(context.Background(), "someone-else", RegisterPlayInput{ActionID: f.plain.ID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "err=%v", err)
}

func TestRegisterPlayRollsOverWhenTodayConfirmed(t *testing.T) {
	env := newTestEnv(t)
	f := env.seed(t)
	ctx := context.Background()

	_, err := env.confirm.ConfirmDay(ctx, testUser, "2025-06-10", ConfirmOptions{})
	require.NoError(t, err)

	res, err := env.progression.RegisterPlay(ctx, testUser, RegisterPlayInput{ActionID: f.plain.ID})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-11", res.Play.DayKey)
	assert.Equal(t, "2025-06-11", res.CategoryResult.DayKey)

	tomorrow, err := env.db.Repos().Days.Get(ctx, testUser, "2025-06-11")
	require.NoError(t, err)
	require.NotNil(t, tomorrow)
	assert.Equal(t, schema.DayStatusDraft, tomorrow.Status)

	today, err := env.query.DaySummary(ctx, testUser, "2025-06-10")
	require.NoError(t, err)
	assert.Empty(t, today.Plays)
}

func TestDeletePlayGuards(t *testing.T) {
	env := newTestEnv(t)
	f := env.seed(t)
	ctx := context.Background()

	err := env.progression.DeletePlay(ctx, testUser, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "err=%v", err)

	res := env.play(t, f, 1)[0]
	_, err = env.confirm.ConfirmDay(ctx, testUser, "2025-06-10", ConfirmOptions{})
	require.NoError(t, err)

	err = env.progression.DeletePlay(ctx, testUser, res.Play.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidOperation), "err=%v", err)

	still, err := env.db.Repos().Plays.GetByID(ctx, testUser, res.Play.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestRegisterPlayConcurrentNoLostUpdate(t *testing.T) {
	env := newTestEnv(t)
	f := env.seed(t)
	ctx := context.Background()

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.progression.RegisterPlay(ctx, testUser, RegisterPlayInput{ActionID: f.plain.ID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	dcr, err := env.db.Repos().Days.GetCategoryResult(ctx, testUser, "2025-06-10", f.category.ID)
	require.NoError(t, err)
	assert.EqualValues(t, workers, dcr.PlayCount)
	assert.EqualValues(t, workers*10, dcr.XPEarned)
	assert.EqualValues(t, workers*10/20, dcr.SPEarned)
}

func TestRegisterPlayPublishesRankChange(t *testing.T) {
	env := newTestEnv(t)
	f := env.seed(t)
	ctx := context.Background()

	for _, in := range []SeasonalTitleInput{
		{CategoryID: f.category.ID, Label: "ルーキー", MinSPEarned: 0, Order: 1},
		{CategoryID: f.category.ID, Label: "アクティブ", MinSPEarned: 1, Order: 2},
	} {
		_, err := env.catalog.CreateSeasonalTitle(ctx, testUser, in)
		require.NoError(t, err)
	}

	first := env.play(t, f, 1)[0]
	assert.Nil(t, first.RankChange)

	second := env.play(t, f, 1)[0]
	require.NotNil(t, second.RankChange)
	assert.True(t, second.RankChange.Changed)
	assert.Equal(t, "ルーキー", second.RankChange.Previous.Label)
	assert.Equal(t, "アクティブ", second.RankChange.Current.Label)

	changed := env.events.ofType(eventbus.TypeRankChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "アクティブ", changed[0].Data["current"])
}
