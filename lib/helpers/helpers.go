package helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const futuresURL = "https://www.mexc.com/futures/%s_USDT"

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatVolume renders an integer volume with comma thousand separators.
func FormatVolume(volume int64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d", volume)
}

// FormatVolumeEscaped is FormatVolume made safe for MarkdownV2 bodies.
func FormatVolumeEscaped(volume int64) string {
	return EscapeMarkdownV2(FormatVolume(volume))
}

// FormatUptime renders the time elapsed since start, e.g. "3 hours".
func FormatUptime(start, now time.Time) string {
	return strings.TrimSpace(humanize.RelTime(start, now, "", ""))
}

func FormatDate(date string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("02 Jan 15:04")
		}
	}
	return date
}

// FuturesURL links to the MEXC futures page of the base asset.
func FuturesURL(base string) string {
	return fmt.Sprintf(futuresURL, strings.ToUpper(base))
}
