package eventbus

import (
	"context"
	"sync"
	"time"
)

// 事件类型
const (
	TypePlayRegistered = "play_registered"
	TypePlayDeleted    = "play_deleted"
	TypeDayConfirmed   = "day_confirmed"
	TypeNodeUnlocked   = "node_unlocked"
	TypeRankChanged    = "rank_changed"
)

type Event struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher 服务层只依赖发布能力
type Publisher interface {
	Publish(evt Event)
}

type subscriber struct {
	userID string // 空表示接收全部
	ch     chan Event
}

type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if s.userID != "" && s.userID != evt.UserID {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// 慢消费者直接丢弃，不阻塞写路径
		}
	}
}

// Subscribe 订阅某用户的事件；ctx 结束后通道关闭
func (h *Hub) Subscribe(ctx context.Context, userID string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	s := &subscriber{userID: userID, ch: make(chan Event, buffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		close(s.ch)
	}()

	return s.ch
}
