package loyalty

import "math"

// Standing 汇总了某个积分数对应的等级进度，供读取接口直接返回
type Standing struct {
	Points       int     `json:"points"`
	Tier         Tier    `json:"tier"`
	NextTier     *Tier   `json:"nextTier,omitempty"`
	PointsToNext int     `json:"pointsToNext"`
	Progress     float64 `json:"progress"`
}

// TierFor 返回 MinPoints ≤ points 的最后一个等级。负数积分按0处理。
func (t *Table) TierFor(points int) Tier {
	current := t.tiers[0]
	for _, tier := range t.tiers[1:] {
		if tier.MinPoints > points {
			break
		}
		current = tier
	}
	return current
}

// NextTierFor 返回第一个 MinPoints > points 的等级；已在最高级时返回 false
func (t *Table) NextTierFor(points int) (Tier, bool) {
	for _, tier := range t.tiers {
		if tier.MinPoints > points {
			return tier, true
		}
	}
	return Tier{}, false
}

// PointsToNext 返回距离下一等级还差的积分，最高级时为0
func (t *Table) PointsToNext(points int) int {
	next, ok := t.NextTierFor(points)
	if !ok {
		return 0
	}
	return next.MinPoints - points
}

// ProgressPercent 计算 points / nextTierPoints * 100，并限制在 [0, 100]。
// nextTierPoints ≤ 0 表示没有下一级，定义为100。
func ProgressPercent(points, nextTierPoints int) float64 {
	if nextTierPoints <= 0 {
		return 100
	}
	p := float64(points) / float64(nextTierPoints) * 100
	return math.Max(0, math.Min(100, p))
}

// Progress 是 ProgressPercent 针对本等级表的便捷版本
func (t *Table) Progress(points int) float64 {
	next, ok := t.NextTierFor(points)
	if !ok {
		return 100
	}
	return ProgressPercent(points, next.MinPoints)
}

// StandingFor 一次性计算某个积分数的完整等级信息
func (t *Table) StandingFor(points int) Standing {
	s := Standing{
		Points:       points,
		Tier:         t.TierFor(points),
		PointsToNext: t.PointsToNext(points),
		Progress:     t.Progress(points),
	}
	if next, ok := t.NextTierFor(points); ok {
		s.NextTier = &next
	}
	return s
}
