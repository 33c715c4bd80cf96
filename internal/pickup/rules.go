package pickup

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrIncomplete    = errors.New("取货信息不完整")
	ErrUnknownStore  = errors.New("未知的门店")
	ErrStoreClosed   = errors.New("门店当天不营业")
	ErrOutsideWindow = errors.New("取货日期不在可预约范围内")
	ErrUnknownSlot   = errors.New("未知的取货时段")
)

// Selection 是用户当前的取货选择，三个字段都可能为空
type Selection struct {
	StoreID string `json:"storeId"`
	Date    string `json:"date"`
	Slot    string `json:"slot"`
}

// Complete 三个字段都已填写
func (s Selection) Complete() bool {
	return s.StoreID != "" && s.Date != "" && s.Slot != ""
}

// SetStore 切换门店。已选日期对新门店不可用时清空日期，返回是否清空。
// 无法解析的日期同样被清空。
func (s *Selection) SetStore(store Store, loc *time.Location) bool {
	s.StoreID = store.ID
	if s.Date == "" {
		return false
	}
	date, err := ParseDate(s.Date, loc)
	if err != nil || !IsAvailable(store, date) {
		s.Date = ""
		return true
	}
	return false
}

// Rules 持有门店列表和预约窗口，所有日期按 loc 的日历日计算
type Rules struct {
	stores     []Store
	byID       map[string]Store
	windowDays int
	loc        *time.Location
}

func NewRules(stores []Store, windowDays int, loc *time.Location) (*Rules, error) {
	if windowDays < 1 {
		return nil, fmt.Errorf("预约窗口必须至少1天，当前为 %d", windowDays)
	}
	if loc == nil {
		loc = time.UTC
	}
	r := &Rules{byID: make(map[string]Store, len(stores)), windowDays: windowDays, loc: loc}
	for _, s := range stores {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("门店ID重复: %s", s.ID)
		}
		r.byID[s.ID] = s
		r.stores = append(r.stores, s)
	}
	return r, nil
}

func (r *Rules) Location() *time.Location { return r.loc }

func (r *Rules) WindowDays() int { return r.windowDays }

// Stores 返回门店列表的副本
func (r *Rules) Stores() []Store {
	return append([]Store(nil), r.stores...)
}

func (r *Rules) Store(id string) (Store, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Today 返回门店时区的今天
func (r *Rules) Today(now time.Time) string {
	return now.In(r.loc).Format(DateLayout)
}

// WithinWindow 是 IsWithinOrderWindow 在门店时区下的版本
func (r *Rules) WithinWindow(date, now time.Time) bool {
	return IsWithinOrderWindow(date.In(r.loc), now.In(r.loc), r.windowDays)
}

// OpenDates 列出下单窗口内门店可以取货的日期
func (r *Rules) OpenDates(store Store, now time.Time) []string {
	now = now.In(r.loc)
	dates := []string{}
	for d := 1; d <= r.windowDays; d++ {
		day := now.AddDate(0, 0, d)
		if IsAvailable(store, day) {
			dates = append(dates, day.Format(DateLayout))
		}
	}
	return dates
}

// CheckDate 校验某门店在某天是否可以预约
func (r *Rules) CheckDate(storeID, date string, now time.Time) error {
	store, ok := r.byID[storeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStore, storeID)
	}
	d, err := ParseDate(date, r.loc)
	if err != nil {
		return err
	}
	if !IsAvailable(store, d) {
		return fmt.Errorf("%w: %s %s", ErrStoreClosed, store.Name, date)
	}
	if !r.WithinWindow(d, now) {
		return fmt.Errorf("%w: %s", ErrOutsideWindow, date)
	}
	return nil
}

// Submittable 判断一个取货选择此刻能否提交
func (r *Rules) Submittable(sel Selection, now time.Time) error {
	if !sel.Complete() {
		return ErrIncomplete
	}
	if err := r.CheckDate(sel.StoreID, sel.Date, now); err != nil {
		return err
	}
	if !IsSlot(sel.Slot) {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, sel.Slot)
	}
	return nil
}

// Change 是对取货选择的一次局部修改，nil 字段保持不变
type Change struct {
	StoreID *string `json:"storeId"`
	Date    *string `json:"date"`
	Slot    *string `json:"slot"`
}

// Apply 按 门店 → 日期 → 时段 的顺序应用修改，返回新的选择和日期是否被清空。
// 任何一步校验失败都返回原选择。空字符串表示取消该项。
func (r *Rules) Apply(sel Selection, ch Change, now time.Time) (Selection, bool, error) {
	next := sel
	cleared := false

	if ch.StoreID != nil {
		if *ch.StoreID == "" {
			next.StoreID = ""
		} else {
			store, ok := r.byID[*ch.StoreID]
			if !ok {
				return sel, false, fmt.Errorf("%w: %s", ErrUnknownStore, *ch.StoreID)
			}
			cleared = next.SetStore(store, r.loc)
		}
	}

	if ch.Date != nil {
		if *ch.Date != "" {
			if next.StoreID == "" {
				return sel, false, fmt.Errorf("%w: 请先选择门店", ErrIncomplete)
			}
			if err := r.CheckDate(next.StoreID, *ch.Date, now); err != nil {
				return sel, false, err
			}
			cleared = false
		}
		next.Date = *ch.Date
	}

	if ch.Slot != nil {
		if *ch.Slot != "" && !IsSlot(*ch.Slot) {
			return sel, false, fmt.Errorf("%w: %s", ErrUnknownSlot, *ch.Slot)
		}
		next.Slot = *ch.Slot
	}

	return next, cleared, nil
}
