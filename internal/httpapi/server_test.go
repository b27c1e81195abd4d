package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuqie6/QuestLog/internal/bootstrap"
	"github.com/yuqie6/QuestLog/internal/dto"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/pkg/config"
	"github.com/yuqie6/QuestLog/internal/pkg/daykey"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
	"github.com/yuqie6/QuestLog/internal/service"
	"github.com/yuqie6/QuestLog/internal/testutil"
)

const testUser = "u1"

type apiEnv struct {
	t     *testing.T
	core  *bootstrap.Core
	clock *daykey.FixedClock
	h     http.Handler
}

// 2025-06-10 12:00 JST
var testNow = time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db, err := repository.Wrap(testutil.OpenTestDB(t), repository.Options{})
	require.NoError(t, err)
	clock := daykey.NewFixedClock(testNow)
	core, err := bootstrap.NewCoreWith(config.Default(), db, clock)
	require.NoError(t, err)
	return &apiEnv{t: t, core: core, clock: clock, h: NewServer(core).Handler()}
}

func (e *apiEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(HeaderUserID, testUser)
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[dto.ErrorResponse](t, rec).Error.Kind
}

type catalogIDs struct {
	category int64
	action   int64
	tree     int64
	nodes    []int64
}

// seedCatalog 1 次行为 = 1 SP；两个各 1 SP 的节点
func (e *apiEnv) seedCatalog() catalogIDs {
	e.t.Helper()
	var ids catalogIDs

	rec := e.do(http.MethodPost, "/api/categories", service.CategoryInput{Name: "瞑想", RankWindowDays: 7, XPPerPlay: 10, XPPerSP: 10})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	ids.category = decode[schema.Category](e.t, rec).ID

	rec = e.do(http.MethodPost, "/api/actions", service.ActionInput{CategoryID: ids.category, Label: "座禅"})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	ids.action = decode[schema.Action](e.t, rec).ID

	rec = e.do(http.MethodPost, "/api/skill-trees", service.SkillTreeInput{CategoryID: ids.category, Name: "集中"})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	ids.tree = decode[schema.SkillTree](e.t, rec).ID

	for i := 0; i < 2; i++ {
		rec = e.do(http.MethodPost, "/api/skill-nodes", service.SkillNodeInput{TreeID: ids.tree, Title: "呼吸", CostSP: 1})
		require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
		ids.nodes = append(ids.nodes, decode[schema.SkillNode](e.t, rec).ID)
	}
	return ids
}

func TestStatusForKindCoversEveryKind(t *testing.T) {
	for _, k := range apperr.Kinds {
		status := statusForKind(k)
		if k == apperr.KindInternal {
			assert.Equal(t, http.StatusInternalServerError, status)
			continue
		}
		assert.NotEqual(t, http.StatusInternalServerError, status, "kind %s falls through to 500", k)
	}
	assert.Equal(t, http.StatusUnprocessableEntity, statusForKind(apperr.KindFutureDate))
	assert.Equal(t, http.StatusServiceUnavailable, statusForKind(apperr.KindRetryable))
}

func TestRequiresUserHeader(t *testing.T) {
	env := newAPIEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[dto.ErrorResponse](t, rec)
	assert.Equal(t, "validation", body.Error.Kind)
}

func TestPlayConfirmUnlockFlow(t *testing.T) {
	env := newAPIEnv(t)
	ids := env.seedCatalog()

	rec := env.do(http.MethodPost, "/api/plays", dto.RegisterPlayRequest{ActionID: ids.action})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	played := decode[service.RegisterPlayResult](t, rec)
	assert.Equal(t, "2025-06-10", played.Play.DayKey)
	assert.EqualValues(t, 1, played.CategoryResult.SPEarned)

	rec = env.do(http.MethodPost, "/api/days/2025-06-11/confirm", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "future_date", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/days/2025-06-10/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, schema.DayStatusConfirmed, decode[service.ConfirmResult](t, rec).Day.Status)

	rec = env.do(http.MethodPost, "/api/days/2025-06-10/confirm", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_confirmed", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/days/2025-06-10/confirm?allow_confirmed=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[service.ConfirmResult](t, rec).AlreadyConfirmed)

	rec = env.do(http.MethodDelete, "/api/plays/"+played.Play.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_operation", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/skill-nodes/"+itoa(ids.nodes[1])+"/unlock", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "prerequisite_not_met", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/skill-nodes/"+itoa(ids.nodes[0])+"/unlock", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 0, decode[service.UnlockResult](t, rec).State.SPUnspent)

	rec = env.do(http.MethodPost, "/api/skill-nodes/"+itoa(ids.nodes[0])+"/unlock", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_unlocked", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/skill-nodes/"+itoa(ids.nodes[1])+"/unlock", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[struct {
		Error struct {
			Kind   string                `json:"kind"`
			Detail apperr.InsufficientSP `json:"detail"`
		} `json:"error"`
	}](t, rec)
	assert.Equal(t, "insufficient_sp", body.Error.Kind)
	assert.EqualValues(t, 1, body.Error.Detail.Required)
	assert.EqualValues(t, 0, body.Error.Detail.Available)

	rec = env.do(http.MethodGet, "/api/trees/"+itoa(ids.tree), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[service.TreeView](t, rec)
	require.Len(t, view.Nodes, 2)
	assert.True(t, view.Nodes[0].Unlocked)

	rec = env.do(http.MethodGet, "/api/spends?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]schema.SpendLog](t, rec), 1)

	// 今天已确认，新行为落到明天
	rec = env.do(http.MethodPost, "/api/plays", dto.RegisterPlayRequest{ActionID: ids.action})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2025-06-11", decode[service.RegisterPlayResult](t, rec).Play.DayKey)
}

func TestProgressBackfillsPastDays(t *testing.T) {
	env := newAPIEnv(t)
	ids := env.seedCatalog()

	env.clock.Set(testNow.AddDate(0, 0, -2))
	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodPost, "/api/plays", dto.RegisterPlayRequest{ActionID: ids.action})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	env.clock.Set(testNow)

	rec := env.do(http.MethodGet, "/api/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	progress := decode[[]service.CategoryProgress](t, rec)
	require.Len(t, progress, 1)
	assert.EqualValues(t, 30, progress[0].XPTotal)
	assert.EqualValues(t, 3, progress[0].SPUnspent)

	rec = env.do(http.MethodGet, "/api/days/2025-06-08", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.DayStatusConfirmed, decode[service.DaySummary](t, rec).Day.Status)

	rec = env.do(http.MethodPost, "/api/days/backfill", dto.BackfillRequest{Days: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bf := decode[dto.BackfillResponse](t, rec)
	require.Len(t, bf.Days, 2)
	for _, d := range bf.Days {
		assert.Nil(t, d.Error)
		assert.True(t, d.AlreadyConfirmed)
	}

	rec = env.do(http.MethodPost, "/api/days/backfill", dto.BackfillRequest{Days: -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/days/backfill", dto.BackfillRequest{Days: 1 << 62})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorKind(t, rec))
}

func TestBadInputs(t *testing.T) {
	env := newAPIEnv(t)
	ids := env.seedCatalog()

	rec := env.do(http.MethodGet, "/api/days/2025-13-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/trees/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/categories/999/title", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/plays", map[string]any{"action_id": ids.action, "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	qty := int64(3)
	rec = env.do(http.MethodPost, "/api/plays", dto.RegisterPlayRequest{ActionID: ids.action, Quantity: &qty})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errorKind(t, rec))

	rec = env.do(http.MethodPost, "/api/categories", service.CategoryInput{Name: "瞑想", RankWindowDays: 7, XPPerPlay: 1, XPPerSP: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var health struct {
		OK     bool          `json:"ok"`
		Status dto.StatusDTO `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.OK)
	assert.Equal(t, "2025-06-10", health.Status.Calendar.Today)

	ids := env.seedCatalog()
	rec = env.do(http.MethodPost, "/api/plays", dto.RegisterPlayRequest{ActionID: ids.action})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `questlog_core_operations_total{op="register_play",outcome="ok"}`)
}

func TestEventStream(t *testing.T) {
	env := newAPIEnv(t)
	ids := env.seedCatalog()

	srv := httptest.NewServer(env.h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderUserID, testUser)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q: %v", prefix, lines.Err())
		return ""
	}
	waitFor("event: ready")

	rec := env.do(http.MethodPost, "/api/plays", dto.RegisterPlayRequest{ActionID: ids.action})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "event: play_registered", waitFor("event: play_registered"))
	assert.Contains(t, waitFor("data: "), `"user_id":"u1"`)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
