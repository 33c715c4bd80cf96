// catalogcheck 校验一份门店目录文件，并打印每家门店在下单窗口内的可取货日期。
//
//	catalogcheck -f catalog.yaml --days 14 --tz Europe/Paris
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/catalog"
	"github.com/angelo-gelato/loyalty-backend/internal/pickup"
	flag "github.com/spf13/pflag"
)

func main() {
	file := flag.StringP("file", "f", "", "目录文件路径，留空检查内置目录")
	days := flag.Int("days", pickup.DefaultWindowDays, "下单窗口天数")
	tz := flag.String("tz", "Europe/Paris", "门店时区")
	flag.Parse()

	if err := check(os.Stdout, *file, *days, *tz, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "目录无效: %v\n", err)
		os.Exit(1)
	}
}

func check(w io.Writer, file string, days int, tz string, now time.Time) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("未知时区 %q: %w", tz, err)
	}
	cat, err := catalog.Open(file)
	if err != nil {
		return err
	}
	rules, err := cat.PickupRules(days, loc)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "商品 %d 种，口味 %d 种，等级 %d 个\n", len(cat.Products), len(cat.Flavors), len(cat.Tiers))
	for _, p := range cat.Products {
		fmt.Fprintf(w, "  %-12s %6.2f €  最多 %d 种口味\n", p.Label, float64(p.PriceCents)/100, p.MaxFlavors)
	}
	for _, s := range rules.Stores() {
		dates := rules.OpenDates(s, now)
		fmt.Fprintf(w, "[%s] %s: %s\n", s.ID, s.Name, pickup.AvailabilityMessage(s))
		if len(dates) == 0 {
			fmt.Fprintf(w, "  未来 %d 天不可取货\n", days)
			continue
		}
		fmt.Fprintf(w, "  可取货: %s\n", strings.Join(dates, ", "))
	}
	return nil
}
