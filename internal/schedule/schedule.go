// Package schedule は掲載スケジュールに基づく鮮度判定を提供する。
// エントリの自由記述day_infoを一度だけ構造化し、再フェッチの要否を決める。
package schedule

import (
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/toonman/internal/model"
)

// CompletedSentinel は連載終了を示すセンチネル値。
// day_infoまたはdayフィルタがこの値に一致した場合、
// エントリは完結扱いとなり30日閾値で再フェッチされる。
const CompletedSentinel = "COMPLETED"

// completedRefreshDays は完結エントリの再フェッチ閾値（日数）。
const completedRefreshDays = 30

// Kind はスケジュールの種別を表す。
type Kind int

const (
	// KindUnknown は曜日トークンが抽出できなかったスケジュール。
	KindUnknown Kind = iota
	// KindWeekdays は曜日指定の掲載スケジュール。
	KindWeekdays
	// KindCompleted は連載終了を示すスケジュール。
	KindCompleted
)

// Schedule はday_infoから構造化された掲載スケジュール。
type Schedule struct {
	Kind Kind
	// Days はKindWeekdaysの場合の掲載曜日集合。
	Days map[time.Weekday]bool
}

// dayTokens は曜日トークン（短縮形・完全形）からtime.Weekdayへの対応表。
var dayTokens = map[string]time.Weekday{
	"MON": time.Monday, "MONDAY": time.Monday,
	"TUE": time.Tuesday, "TUESDAY": time.Tuesday,
	"WED": time.Wednesday, "WEDNESDAY": time.Wednesday,
	"THU": time.Thursday, "THURSDAY": time.Thursday,
	"FRI": time.Friday, "FRIDAY": time.Friday,
	"SAT": time.Saturday, "SATURDAY": time.Saturday,
	"SUN": time.Sunday, "SUNDAY": time.Sunday,
}

// dayTokenPattern は自由記述から曜日トークンを抽出する。
// スケジュールは複数曜日を列挙しうる（例: "EVERY MONDAY, THURSDAY"）。
var dayTokenPattern = regexp.MustCompile(`MONDAY|TUESDAY|WEDNESDAY|THURSDAY|FRIDAY|SATURDAY|SUNDAY|MON|TUE|WED|THU|FRI|SAT|SUN`)

// Parse はday_infoの自由記述を構造化スケジュールに変換する。
// 完結センチネルとの比較はトリム後の完全一致。曜日トークンが
// 1つも見つからない場合はKindUnknownを返す。
func Parse(dayInfo string) Schedule {
	trimmed := strings.TrimSpace(dayInfo)
	if strings.ToUpper(trimmed) == CompletedSentinel {
		return Schedule{Kind: KindCompleted}
	}

	tokens := dayTokenPattern.FindAllString(strings.ToUpper(trimmed), -1)
	if len(tokens) == 0 {
		return Schedule{Kind: KindUnknown}
	}

	days := make(map[time.Weekday]bool, len(tokens))
	for _, tok := range tokens {
		if d, ok := dayTokens[tok]; ok {
			days[d] = true
		}
	}
	return Schedule{Kind: KindWeekdays, Days: days}
}

// ResolveDay はdayフィルタ文字列を曜日に解決する。
// 解決できない場合はfalseを返す。
func ResolveDay(filter string) (time.Weekday, bool) {
	d, ok := dayTokens[strings.ToUpper(strings.TrimSpace(filter))]
	return d, ok
}

// NeedsRefresh はエントリを再フェッチすべきかを判定する。
// ルールは先勝ちで評価される:
//  1. last_updateが未記録なら常に再フェッチ。
//  2. スケジュールが完結、またはdayフィルタが完結センチネルなら、
//     最終更新から30日を超えた場合のみ再フェッチ。
//  3. dayフィルタが曜日に解決できるなら、今日がその曜日のときだけ再フェッチ
//     （フィルタはエントリ自身のスケジュールより優先される）。
//  4. それ以外は今日がスケジュールの掲載曜日に含まれるとき再フェッチ。
func NeedsRefresh(s Schedule, dayFilter string, lastUpdate string, now time.Time) bool {
	if lastUpdate == "" {
		return true
	}

	filterCompleted := strings.ToUpper(strings.TrimSpace(dayFilter)) == CompletedSentinel
	if s.Kind == KindCompleted || filterCompleted {
		last, err := time.Parse(model.DateLayout, datePart(lastUpdate))
		if err != nil {
			// 解釈できないスタンプは未記録扱いで再フェッチする
			return true
		}
		return int(now.Sub(last).Hours()/24) > completedRefreshDays
	}

	if d, ok := ResolveDay(dayFilter); ok {
		return now.Weekday() == d
	}

	if s.Kind == KindWeekdays {
		return s.Days[now.Weekday()]
	}

	return false
}

// HandledToday はエントリが今日すでに処理済みかを判定する。
// last_updateが今日の日付なら、スケジュール評価に関係なく
// この実行ウィンドウ内では処理済みとして扱う（同一実行内の重複防止）。
// 完結エントリの30日判定より先に評価されるため、同じ暦日内では
// ルール評価が実質無効になる点は既知の挙動として維持している。
func HandledToday(lastUpdate string, now time.Time) bool {
	if lastUpdate == "" {
		return false
	}
	return datePart(lastUpdate) == now.Format(model.DateLayout)
}

// datePart はlast_updateスタンプの日付部分を返す。
// 日粒度（カタログ）と秒粒度（コメント）の両レイアウトに対応する。
func datePart(stamp string) string {
	if len(stamp) > len(model.DateLayout) {
		return stamp[:len(model.DateLayout)]
	}
	return stamp
}
