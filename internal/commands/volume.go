package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mexc-volume-bot/internal/mexc"
	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

const (
	highVolume   = 10_000_000
	mediumVolume = 1_000_000

	// fetchLimit caps concurrent kline requests of one overview.
	fetchLimit = 3
)

type VolumeFetcher interface {
	FetchVolume(ctx context.Context, symbol string, interval types.Interval) mexc.Reading
}

// Overview holds the latest volume of a symbol on several intervals.
type Overview struct {
	Symbol    string
	Intervals []types.Interval
	Readings  map[types.Interval]mexc.Reading
	FetchedAt time.Time
}

// Volume returns the reading of interval, zero when unavailable.
func (o Overview) Volume(interval types.Interval) int64 {
	return o.Readings[interval].Volume
}

// FetchOverview queries every interval of symbol concurrently.
func FetchOverview(ctx context.Context, f VolumeFetcher, symbol string, intervals []types.Interval) Overview {
	log.Debugf("fetching volume overview for %s", symbol)

	var (
		mu       sync.Mutex
		readings = make(map[types.Interval]mexc.Reading, len(intervals))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for _, interval := range intervals {
		interval := interval
		g.Go(func() error {
			r := f.FetchVolume(gctx, symbol, interval)
			mu.Lock()
			readings[interval] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return Overview{
		Symbol:    symbol,
		Intervals: intervals,
		Readings:  readings,
		FetchedAt: time.Now(),
	}
}

// VolumeEmoji grades a volume: green above 10M, yellow above 1M, red otherwise.
func VolumeEmoji(volume int64) string {
	switch {
	case volume > highVolume:
		return "🟢"
	case volume > mediumVolume:
		return "🟡"
	default:
		return "🔴"
	}
}

// FormatVolumes renders one MarkdownV2 line per interval.
func FormatVolumes(o Overview) string {
	var sb strings.Builder
	for _, interval := range o.Intervals {
		r := o.Readings[interval]
		if !r.OK {
			sb.WriteString(fmt.Sprintf("⚪️ `%3s` → %s\n", interval, helpers.EscapeMarkdownV2(translation.Translate("volume_unavailable"))))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s `%3s` → *%s USDT*\n", VolumeEmoji(r.Volume), interval, helpers.FormatVolumeEscaped(r.Volume)))
	}
	return sb.String()
}

// FormatAlertDetails renders the settings of an alert followed by its
// volume overview.
func FormatAlertDetails(a types.Alert, o Overview) string {
	status := translation.Translate("notifications_on")
	if !a.NotificationsEnabled {
		status = translation.Translate("notifications_off")
	}

	return fmt.Sprintf(
		translation.Translate("alert_details_format"),
		helpers.EscapeMarkdownV2(a.Symbol),
		a.Interval,
		helpers.FormatVolumeEscaped(a.Threshold),
		helpers.EscapeMarkdownV2(status),
		helpers.EscapeMarkdownV2(o.FetchedAt.Format("15:04:05")),
		FormatVolumes(o),
	)
}

// FormatHistory renders journaled notifications, newest first.
func FormatHistory(notifications []types.Notification) string {
	if len(notifications) == 0 {
		return helpers.EscapeMarkdownV2(translation.Translate("history_empty"))
	}

	var sb strings.Builder
	sb.WriteString(translation.Translate("history_header"))
	for _, n := range notifications {
		sb.WriteString(fmt.Sprintf(
			translation.Translate("history_item_format"),
			helpers.EscapeMarkdownV2(helpers.FormatDate(n.CreatedAt)),
			helpers.EscapeMarkdownV2(n.Symbol),
			n.Interval,
			helpers.FormatVolumeEscaped(n.Volume),
			helpers.FormatVolumeEscaped(n.Threshold),
		))
	}
	return sb.String()
}
