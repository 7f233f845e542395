package types

import "strings"

// MinThreshold is the lowest volume threshold, in USDT, an alert may carry.
const MinThreshold int64 = 1000

// QuoteAsset is the only quote currency the bot tracks.
const QuoteAsset = "USDT"

// Interval is the candle timeframe over which volume is measured.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval8h  Interval = "8h"
	Interval1d  Interval = "1d"
)

// Intervals lists every timeframe an alert can be created for, in menu order.
var Intervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval4h, Interval8h, Interval1d,
}

// DisplayIntervals are the timeframes shown in the volume overview.
var DisplayIntervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d,
}

func (i Interval) String() string {
	return string(i)
}

// Valid reports whether i is one of the supported timeframes.
func (i Interval) Valid() bool {
	for _, v := range Intervals {
		if v == i {
			return true
		}
	}
	return false
}

// ParseInterval converts user or callback input such as "1h" into an Interval.
func ParseInterval(s string) (Interval, bool) {
	i := Interval(strings.ToLower(strings.TrimSpace(s)))
	return i, i.Valid()
}

// Alert is a single volume watch condition owned by a chat.
type Alert struct {
	ID                   string   `json:"id"`
	Symbol               string   `json:"symbol"`
	Interval             Interval `json:"interval"`
	Threshold            int64    `json:"threshold"`
	LastNotified         int64    `json:"last_notified"`
	NotificationsEnabled bool     `json:"notifications_enabled"`
}

// Base returns the base asset of the alert symbol, e.g. BTC for BTCUSDT.
func (a Alert) Base() string {
	return strings.TrimSuffix(a.Symbol, QuoteAsset)
}

// Matches reports whether the alert watches the given symbol and interval.
func (a Alert) Matches(symbol string, interval Interval) bool {
	return a.Symbol == symbol && a.Interval == interval
}

// Notification is a journaled firing of an alert.
type Notification struct {
	ID        int64    `json:"id"`
	ChatID    int64    `json:"chat_id"`
	AlertID   string   `json:"alert_id"`
	Symbol    string   `json:"symbol"`
	Interval  Interval `json:"interval"`
	Threshold int64    `json:"threshold"`
	Volume    int64    `json:"volume"`
	CreatedAt string   `json:"created_at"`
}
