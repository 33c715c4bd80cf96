package loyalty

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// VisitDateLayout 是访问记录日期的存储格式
const VisitDateLayout = "2006-01-02"

const (
	// MaxReceiptAmount 是单张小票可接受的最大金额（欧元），达到或超过即视为无效
	MaxReceiptAmount = 1_000_000
	// MaxPoints 是账户积分的上限，累加时到此为止
	MaxPoints = math.MaxInt32
	// 与 user.ScanRecord 的列宽一致
	maxCodeLength = 64
	maxDateLength = 32
)

// Payload 是小票二维码解码后的内容
type Payload struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
}

// Visit 是一次获得积分的到店记录，创建后不再修改
type Visit struct {
	Date   string `json:"date"`
	Points int    `json:"points"`
}

// Account 是用户身上与积分相关的部分
type Account struct {
	Points   int     `json:"points"`
	Tier     string  `json:"tier"`
	Progress float64 `json:"progress"`
	Visits   []Visit `json:"visits"`
}

// rawPayload 用指针区分“字段缺失”和“零值”
type rawPayload struct {
	Code   *string  `json:"code"`
	Amount *float64 `json:"amount"`
	Date   *string  `json:"date"`
}

// ParsePayload 解析扫描到的文本。格式不对或缺少任何字段都返回 false，
// 调用方应当继续扫描而不是报错。
func ParsePayload(text string) (Payload, bool) {
	var raw rawPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return Payload{}, false
	}
	if raw.Code == nil || raw.Amount == nil || raw.Date == nil {
		return Payload{}, false
	}
	code := strings.TrimSpace(*raw.Code)
	date := strings.TrimSpace(*raw.Date)
	amount := *raw.Amount
	if code == "" || date == "" || len(code) > maxCodeLength || len(date) > maxDateLength {
		return Payload{}, false
	}
	if math.IsNaN(amount) || amount <= 0 || amount >= MaxReceiptAmount {
		return Payload{}, false
	}
	return Payload{Code: code, Amount: amount, Date: date}, true
}

// PointsFor 每消费一欧元得一分，向下取整，结果不超过 MaxPoints
func PointsFor(amount float64) int {
	if !(amount > 0) {
		return 0
	}
	if amount >= MaxPoints {
		return MaxPoints
	}
	return int(math.Floor(amount))
}

// addPoints 饱和加法，结果落在 [0, MaxPoints]
func addPoints(current, awarded int) int {
	if current < 0 {
		current = 0
	}
	if awarded <= 0 {
		return min(current, MaxPoints)
	}
	if current >= MaxPoints-awarded {
		return MaxPoints
	}
	return current + awarded
}

// Award 把一次扫描记入账户，返回新的账户和本次获得的积分。
// 入参不会被修改，新访问记录插在最前面。
func (t *Table) Award(acc Account, p Payload, today time.Time) (Account, int) {
	awarded := PointsFor(p.Amount)

	visits := make([]Visit, 0, len(acc.Visits)+1)
	visits = append(visits, Visit{Date: today.Format(VisitDateLayout), Points: awarded})
	visits = append(visits, acc.Visits...)

	points := addPoints(acc.Points, awarded)
	return Account{
		Points:   points,
		Tier:     t.TierFor(points).Label,
		Progress: t.Progress(points),
		Visits:   visits,
	}, awarded
}
