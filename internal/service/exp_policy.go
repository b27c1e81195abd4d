package service

import (
	"math"

	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
)

// ExpPolicy 经验/技能点换算策略（可替换）
type ExpPolicy interface {
	XPEarned(playCount, xpPerPlay int64) (int64, error)
	SPFromXP(xpEarned, xpPerSP int64) (int64, error)
}

// DefaultExpPolicy 默认策略：XP 按次数线性累加，SP 向下取整
type DefaultExpPolicy struct{}

func (DefaultExpPolicy) XPEarned(playCount, xpPerPlay int64) (int64, error) {
	return XPEarned(playCount, xpPerPlay)
}

func (DefaultExpPolicy) SPFromXP(xpEarned, xpPerSP int64) (int64, error) {
	return SPFromXP(xpEarned, xpPerSP)
}

// XPEarned 次数 × 单次经验
func XPEarned(playCount, xpPerPlay int64) (int64, error) {
	if playCount < 0 {
		return 0, apperr.NewInvalidArgument("playCount", "must be >= 0")
	}
	if xpPerPlay <= 0 {
		return 0, apperr.NewInvalidArgument("xpPerPlay", "must be > 0")
	}
	return playCount * xpPerPlay, nil
}

// SPFromXP floor(xp / xpPerSP)
func SPFromXP(xpEarned, xpPerSP int64) (int64, error) {
	if xpEarned < 0 {
		return 0, apperr.NewInvalidArgument("xpEarned", "must be >= 0")
	}
	if xpPerSP <= 0 {
		return 0, apperr.NewInvalidArgument("xpPerSp", "must be > 0")
	}
	return xpEarned / xpPerSP, nil
}

// XPUntilNextSP 距离下一个 SP 还差多少 XP；恰好在边界上时返回一整轮
func XPUntilNextSP(currentXP, xpPerSP int64) (int64, error) {
	if currentXP < 0 {
		return 0, apperr.NewInvalidArgument("currentXp", "must be >= 0")
	}
	if xpPerSP <= 0 {
		return 0, apperr.NewInvalidArgument("xpPerSp", "must be > 0")
	}
	return xpPerSP - currentXP%xpPerSP, nil
}

// XPProgressPercent 当前 SP 周期内的进度百分比
func XPProgressPercent(currentXP, xpPerSP int64) (int, error) {
	if currentXP < 0 {
		return 0, apperr.NewInvalidArgument("currentXp", "must be >= 0")
	}
	if xpPerSP <= 0 {
		return 0, apperr.NewInvalidArgument("xpPerSp", "must be > 0")
	}
	pct := int(math.Round(100 * float64(currentXP%xpPerSP) / float64(xpPerSP)))
	// 余数最大为 xpPerSP-1，四舍五入可能到 100
	return clampInt(pct, 0, 99), nil
}

// HasEnoughSP 余额是否足以支付
func HasEnoughSP(spUnspent, costSP int64) (bool, error) {
	if spUnspent < 0 {
		return false, apperr.NewInvalidArgument("spUnspent", "must be >= 0")
	}
	if costSP < 0 {
		return false, apperr.NewInvalidArgument("costSp", "must be >= 0")
	}
	return spUnspent >= costSP, nil
}

// recomputeEarned 由次数重新推导 XP/SP（不做增量累加）
func recomputeEarned(p ExpPolicy, playCount, xpPerPlay, xpPerSP int64) (xp int64, sp int64, err error) {
	xp, err = p.XPEarned(playCount, xpPerPlay)
	if err != nil {
		return 0, 0, err
	}
	sp, err = p.SPFromXP(xp, xpPerSP)
	if err != nil {
		return 0, 0, err
	}
	return xp, sp, nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
