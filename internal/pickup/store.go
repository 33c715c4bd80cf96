package pickup

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Store 是一个可以取货的门店。
// OpenMonths 非空时只看营业月份，否则看休息日和休息月份。
type Store struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Address        string         `json:"address" yaml:"address"`
	Lat            float64        `json:"lat" yaml:"lat"`
	Lng            float64        `json:"lng" yaml:"lng"`
	OpenMonths     []time.Month   `json:"openMonths,omitempty" yaml:"openMonths"`
	ClosedWeekdays []time.Weekday `json:"closedWeekdays,omitempty" yaml:"closedWeekdays"`
	ClosedMonths   []time.Month   `json:"closedMonths,omitempty" yaml:"closedMonths"`
}

// IsAvailable 判断门店在某天是否可以取货，只使用 date 的年月日
func IsAvailable(store Store, date time.Time) bool {
	if len(store.OpenMonths) > 0 {
		return slices.Contains(store.OpenMonths, date.Month())
	}
	if slices.Contains(store.ClosedMonths, date.Month()) {
		return false
	}
	return !slices.Contains(store.ClosedWeekdays, date.Weekday())
}

func (s Store) validate() error {
	if s.ID == "" {
		return fmt.Errorf("门店 %q 缺少ID", s.Name)
	}
	for _, m := range append(slices.Clone(s.OpenMonths), s.ClosedMonths...) {
		if m < time.January || m > time.December {
			return fmt.Errorf("门店 %s 的月份 %d 无效", s.ID, m)
		}
	}
	for _, d := range s.ClosedWeekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("门店 %s 的星期 %d 无效", s.ID, d)
		}
	}
	return nil
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

var frenchWeekdaysPlural = [...]string{
	"dimanches", "lundis", "mardis", "mercredis", "jeudis", "vendredis", "samedis",
}

func monthName(m time.Month) string { return frenchMonths[m-1] }

// joinFrench 用法语的方式连接列表: "a", "a et b", "a, b et c"
func joinFrench(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " et " + parts[len(parts)-1]
}

func contiguous(months []time.Month) bool {
	sorted := slices.Clone(months)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return false
		}
	}
	return true
}

// AvailabilityMessage 生成展示给顾客的营业说明
func AvailabilityMessage(store Store) string {
	if len(store.OpenMonths) > 0 {
		months := slices.Clone(store.OpenMonths)
		slices.Sort(months)
		if len(months) > 1 && contiguous(months) {
			return fmt.Sprintf("Ouvert de %s à %s", monthName(months[0]), monthName(months[len(months)-1]))
		}
		names := make([]string, len(months))
		for i, m := range months {
			names[i] = monthName(m)
		}
		return "Ouvert en " + joinFrench(names)
	}

	var clauses []string
	if len(store.ClosedWeekdays) > 0 {
		days := slices.Clone(store.ClosedWeekdays)
		slices.Sort(days)
		names := make([]string, len(days))
		for i, d := range days {
			names[i] = frenchWeekdaysPlural[d]
		}
		clauses = append(clauses, "les "+joinFrench(names))
	}
	if len(store.ClosedMonths) > 0 {
		months := slices.Clone(store.ClosedMonths)
		slices.Sort(months)
		names := make([]string, len(months))
		for i, m := range months {
			names[i] = monthName(m)
		}
		clauses = append(clauses, "en "+joinFrench(names))
	}
	if len(clauses) == 0 {
		return "Ouvert tous les jours"
	}
	return "Fermé " + strings.Join(clauses, ", et ")
}
