// Package daykey 提供固定时区下的日期键（YYYY-MM-DD）运算。
//
// 所有"今天"的判断都锚定在配置的运营时区，而不是服务器本地时区。
package daykey

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // 容器内可能没有系统时区库

	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
)

// Layout 日期键格式
const Layout = "2006-01-02"

// DefaultTimezone 产品运营时区
const DefaultTimezone = "Asia/Tokyo"

// MaxRecentDays Recent 单次最多覆盖的天数（一年）
const MaxRecentDays = 366

// Clock 时间源
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统时间
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock 可控时间源（测试用）
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Calendar 日期键计算器
type Calendar struct {
	loc   *time.Location
	clock Clock
}

// New 创建日历；tz 为空时使用 DefaultTimezone
func New(tz string, clock Clock) (*Calendar, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Calendar{loc: loc, clock: clock}, nil
}

// Location 运营时区
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now 当前时刻
func (c *Calendar) Now() time.Time {
	return c.clock.Now()
}

// Today 今天的日期键
func (c *Calendar) Today() string {
	return c.Format(c.clock.Now())
}

// Format 将时刻转换为运营时区下的日期键
func (c *Calendar) Format(t time.Time) string {
	return t.In(c.loc).Format(Layout)
}

// Parse 返回日期键当天零点（运营时区）
func (c *Calendar) Parse(key string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, key, c.loc)
	if err != nil || t.Format(Layout) != key {
		return time.Time{}, apperr.NewValidation("day_key", "must be YYYY-MM-DD")
	}
	return t, nil
}

// Next 下一天
func (c *Calendar) Next(key string) (string, error) {
	return c.shift(key, 1)
}

// Previous 前一天
func (c *Calendar) Previous(key string) (string, error) {
	return c.shift(key, -1)
}

func (c *Calendar) shift(key string, days int) (string, error) {
	t, err := c.Parse(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(Layout), nil
}

// Recent 今天及之前 n-1 天，按日期降序（今天在前）
func (c *Calendar) Recent(n int) ([]string, error) {
	if n < 0 {
		return nil, apperr.NewInvalidArgument("n", "must be >= 0")
	}
	if n > MaxRecentDays {
		return nil, apperr.NewInvalidArgument("n", fmt.Sprintf("must be <= %d", MaxRecentDays))
	}
	keys := make([]string, 0, n)
	if n == 0 {
		return keys, nil
	}
	today, _ := c.Parse(c.Today())
	for i := 0; i < n; i++ {
		keys = append(keys, today.AddDate(0, 0, -i).Format(Layout))
	}
	return keys, nil
}

// IsFuture 日期键是否晚于今天
func (c *Calendar) IsFuture(key string) bool {
	// 固定宽度格式，字典序即日期序
	return key > c.Today()
}

// DayRange 日期键对应的 [start, end] 毫秒区间（闭区间）
func (c *Calendar) DayRange(key string) (startMs int64, endMs int64, err error) {
	t, err := c.Parse(key)
	if err != nil {
		return 0, 0, err
	}
	start := t.UnixMilli()
	end := t.AddDate(0, 0, 1).UnixMilli() - 1
	return start, end, nil
}
