package commands

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

// ChartTTL is how long a rendered chart is served from cache.
const ChartTTL = time.Minute

var ErrNoData = errors.New("no volume data to chart")

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	barColors       = map[string]drawing.Color{
		"🟢": {R: 38, G: 166, B: 91, A: 255},
		"🟡": {R: 241, G: 196, B: 15, A: 255},
		"🔴": {R: 231, G: 76, B: 60, A: 255},
	}

	fontOnce sync.Once
	font     *truetype.Font
)

func chartFont() *truetype.Font {
	fontOnce.Do(func() {
		f, err := chart.GetDefaultFont()
		if err != nil {
			log.WithError(err).Warn("could not load chart font")
			return
		}
		font = f
	})
	return font
}

// Charter renders volume bar charts and caches them per symbol.
type Charter struct {
	fetcher VolumeFetcher
	cache   *ChartCache
}

func NewCharter(fetcher VolumeFetcher, cache *ChartCache) *Charter {
	return &Charter{fetcher: fetcher, cache: cache}
}

// VolumeChart returns a PNG chart of symbol across the display intervals
// with a MarkdownV2 caption.
func (c *Charter) VolumeChart(ctx context.Context, symbol string) ([]byte, string, error) {
	if cachedItem, found := c.cache.Get(symbol); found {
		log.Debugf("returning cached chart for %s", symbol)
		return cachedItem.ChartData, cachedItem.Caption, nil
	}

	overview := FetchOverview(ctx, c.fetcher, symbol, types.DisplayIntervals)
	chartData, err := RenderVolumeChart(overview)
	if err != nil {
		return nil, "", errors.Wrapf(err, "could not render chart for %s", symbol)
	}

	caption := fmt.Sprintf(
		translation.Translate("chart_caption_format"),
		helpers.EscapeMarkdownV2(symbol),
		helpers.EscapeMarkdownV2(overview.FetchedAt.Format("15:04:05")),
	)
	c.cache.Set(symbol, chartData, caption)
	return chartData, caption, nil
}

// RenderVolumeChart draws one bar per interval. Unavailable readings are
// drawn as empty bars.
func RenderVolumeChart(o Overview) ([]byte, error) {
	var (
		bars []chart.Value
		max  int64
	)
	for _, interval := range o.Intervals {
		volume := o.Volume(interval)
		if volume > max {
			max = volume
		}
		bars = append(bars, chart.Value{
			Label: interval.String(),
			Value: float64(volume),
			Style: chart.Style{
				FillColor:   barColors[VolumeEmoji(volume)],
				StrokeColor: barColors[VolumeEmoji(volume)],
				StrokeWidth: 1,
			},
		})
	}
	if max == 0 {
		return nil, ErrNoData
	}

	bc := chart.BarChart{
		Title: fmt.Sprintf("%s volume, USDT", o.Symbol),
		TitleStyle: chart.Style{
			FontColor: textColor,
			FontSize:  14,
		},
		Font:     chartFont(),
		Width:    900,
		Height:   500,
		BarWidth: 80,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{
			FillColor: backgroundColor,
		},
		XAxis: chart.Style{
			FontColor: textColor,
			FontSize:  12,
		},
		YAxis: chart.YAxis{
			Style: chart.Style{
				FontColor: textColor,
				FontSize:  10,
			},
			Range: &chart.ContinuousRange{Min: 0, Max: float64(max) * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return helpers.FormatVolume(int64(f))
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "could not render bar chart")
	}
	return buf.Bytes(), nil
}
