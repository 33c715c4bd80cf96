package pickup

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DateLayout 是取货日期在接口和快照中的格式
	DateLayout = "2006-01-02"
	// DefaultWindowDays 是可预约的最远天数（含）
	DefaultWindowDays = 14
)

var ErrInvalidDate = errors.New("日期格式无效")

// civil 把时间截断为所在时区的日历日，并转为UTC午夜，便于按天相减
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween 返回 from 到 to 相差的日历天数
func daysBetween(from, to time.Time) int {
	return int(civil(to).Sub(civil(from)).Hours() / 24)
}

// IsWithinOrderWindow 判断 date 是否在 [明天, 今天+windowDays] 之内。
// "今天"取 now 所在时区的日历日，date 也按它自己的日历日计算。
func IsWithinOrderWindow(date, now time.Time, windowDays int) bool {
	diff := daysBetween(now, date)
	return diff >= 1 && diff <= windowDays
}

// ParseDate 在给定时区解析 YYYY-MM-DD
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Slots 返回13:00到19:00之间每半小时一个的取货时段
func Slots() []string {
	slots := make([]string, 0, 13)
	for minutes := 13 * 60; minutes <= 19*60; minutes += 30 {
		slots = append(slots, fmt.Sprintf("%02d:%02d", minutes/60, minutes%60))
	}
	return slots
}

// IsSlot 判断是否为公布的取货时段
func IsSlot(slot string) bool {
	for _, s := range Slots() {
		if s == slot {
			return true
		}
	}
	return false
}
