package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/schema"
	"github.com/yuqie6/QuestLog/internal/testutil"
)

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	d, err := Wrap(testutil.OpenTestDB(t), Options{TxMaxAttempts: 2, BusyTimeoutMs: 100})
	if err != nil {
		t.Fatalf("Wrap error: %v", err)
	}
	return d
}

func TestInTxRollsBackOnDomainError(t *testing.T) {
	d := openTestDatabase(t)
	ctx := context.Background()

	err := d.InTx(ctx, "test", func(r *Repos) error {
		if _, err := r.Days.EnsureDraft(ctx, "u1", "2025-01-01"); err != nil {
			return err
		}
		return apperr.NewInvalidOperation("test", "abort")
	})
	if !apperr.Is(err, apperr.KindInvalidOperation) {
		t.Fatalf("err=%v, want invalid_operation passthrough", err)
	}

	got, err := d.Repos().Days.Get(ctx, "u1", "2025-01-01")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Fatalf("draft should have been rolled back, got %+v", got)
	}
}

func TestInTxClassifiesPlainErrorsAsInternal(t *testing.T) {
	d := openTestDatabase(t)
	err := d.InTx(context.Background(), "test", func(r *Repos) error {
		return fmt.Errorf("写入失败: %w", errors.New("disk I/O error"))
	})
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("kind=%s, want internal", apperr.KindOf(err))
	}
}

func TestInTxRetriesBusyThenGivesUp(t *testing.T) {
	d := openTestDatabase(t)
	calls := 0
	err := d.InTx(context.Background(), "test", func(r *Repos) error {
		calls++
		return errors.New("database is locked (5) (SQLITE_BUSY)")
	})
	if calls != 2 {
		t.Fatalf("calls=%d, want 2 attempts", calls)
	}
	if !apperr.Is(err, apperr.KindRetryable) {
		t.Fatalf("err=%v, want retryable", err)
	}
}

func TestInTxBusyThenSuccess(t *testing.T) {
	d := openTestDatabase(t)
	calls := 0
	err := d.InTx(context.Background(), "test", func(r *Repos) error {
		calls++
		if calls == 1 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d, want success on second attempt", err, calls)
	}
}

func TestInTxCanceledContextIsRetryable(t *testing.T) {
	d := openTestDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.InTx(ctx, "test", func(r *Repos) error {
		return r.Categories.Create(ctx, &schema.Category{UserID: "u1", Name: "x", RankWindowDays: 7, XPPerPlay: 1, XPPerSP: 1})
	})
	if !apperr.Is(err, apperr.KindRetryable) {
		t.Fatalf("err=%v, want retryable", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewSkillRepository(db)
	ctx := context.Background()
	if err := repo.CreateUnlocked(ctx, &schema.UnlockedNode{UserID: "u1", NodeID: 1}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := repo.CreateUnlocked(ctx, &schema.UnlockedNode{UserID: "u1", NodeID: 1})
	if !IsUniqueViolation(err) {
		t.Fatalf("second insert err=%v, want unique violation", err)
	}
}

func TestClassifyStoreError(t *testing.T) {
	if ClassifyStoreError("read", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	cases := []struct {
		err  error
		want apperr.Kind
	}{
		{errors.New("database is locked (5) (SQLITE_BUSY)"), apperr.KindRetryable},
		{fmt.Errorf("查询失败: %w", context.DeadlineExceeded), apperr.KindRetryable},
		{errors.New("no such table: play_logs"), apperr.KindInternal},
		{apperr.NewNotFound("category", 1), apperr.KindNotFound},
	}
	for _, c := range cases {
		if got := apperr.KindOf(ClassifyStoreError("read", c.err)); got != c.want {
			t.Fatalf("ClassifyStoreError(%v) kind=%s, want %s", c.err, got, c.want)
		}
	}
}

func TestInTxRetriesClassifiedBusy(t *testing.T) {
	d := openTestDatabase(t)
	calls := 0
	err := d.InTx(context.Background(), "test", func(r *Repos) error {
		calls++
		if calls == 1 {
			return ClassifyStoreError("read", errors.New("database is locked"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls=%d, want retry after classified busy", calls)
	}
}
