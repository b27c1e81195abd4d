package service

import (
	"context"
	"time"

	"github.com/yuqie6/QuestLog/internal/eventbus"
	"github.com/yuqie6/QuestLog/internal/repository"
)

// 存储/外部依赖的最小接口集合（ISP）

// Store 事务入口；InTx 的回调内只能使用传入的 Repos
type Store interface {
	InTx(ctx context.Context, op string, fn func(r *repository.Repos) error) error
	Repos() *repository.Repos
}

// Calendar 固定时区日期运算
type Calendar interface {
	Now() time.Time
	Today() string
	Next(dayKey string) (string, error)
	Parse(dayKey string) (time.Time, error)
	Recent(n int) ([]string, error)
	IsFuture(dayKey string) bool
}

// EventPublisher 事件发布
type EventPublisher interface {
	Publish(evt eventbus.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(eventbus.Event) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
