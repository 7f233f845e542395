package telegram

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

// Callback data. Values carrying an argument are prefixes.
const (
	cbAdd          = "add"
	cbBulk         = "bulk"
	cbList         = "list"
	cbDelete       = "delete"
	cbHistory      = "history"
	cbClearHistory = "clear_history"
	cbBack         = "back"
	cbRefreshAll   = "refresh_all"
	cbVolCustom    = "vol_custom"

	cbInterval  = "int_"
	cbThreshold = "volbtn_"
	cbDel       = "del_"
	cbAlert     = "alert_"
	cbToggle    = "toggle_"
	cbEdit      = "edit_"
	cbRefresh   = "ref_"
	cbChart     = "chart_"
)

// PresetThresholds are offered as one-tap buttons.
var PresetThresholds = []int64{2000, 3000, 4000, 5000}

var intervalIcons = map[types.Interval]string{
	types.Interval1h: "🕐",
	types.Interval4h: "🕓",
	types.Interval8h: "🕗",
	types.Interval1d: "📅",
}

func button(textKey, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(translation.Translate(textKey), data)
}

func backRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(button("button_back", cbBack))
}

func MainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("button_add", cbAdd)),
		tgbotapi.NewInlineKeyboardRow(button("button_bulk_add", cbBulk)),
		tgbotapi.NewInlineKeyboardRow(button("button_list", cbList)),
		tgbotapi.NewInlineKeyboardRow(button("button_delete", cbDelete)),
		tgbotapi.NewInlineKeyboardRow(button("button_history", cbHistory)),
	)
}

func CancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("button_cancel", cbBack)),
	)
}

// IntervalsKeyboard lays the intervals out in rows of three.
func IntervalsKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, chunk := range lo.Chunk(types.Intervals, 3) {
		row := lo.Map(chunk, func(i types.Interval, _ int) tgbotapi.InlineKeyboardButton {
			icon, ok := intervalIcons[i]
			if !ok {
				icon = "⏱"
			}
			return tgbotapi.NewInlineKeyboardButtonData(icon+" "+i.String(), cbInterval+i.String())
		})
		rows = append(rows, row)
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ThresholdKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, chunk := range lo.Chunk(PresetThresholds, 2) {
		row := lo.Map(chunk, func(v int64, _ int) tgbotapi.InlineKeyboardButton {
			return tgbotapi.NewInlineKeyboardButtonData(helpers.FormatVolume(v), cbThreshold+strconv.FormatInt(v, 10))
		})
		rows = append(rows, row)
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(button("button_custom_threshold", cbVolCustom)),
		backRow(),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func alertLabel(a types.Alert) string {
	return fmt.Sprintf("%s %s ≥%s USDT", a.Symbol, a.Interval, helpers.FormatVolume(a.Threshold))
}

func statusIcon(a types.Alert) string {
	if a.NotificationsEnabled {
		return "🔔"
	}
	return "🔕"
}

// AlertListKeyboard has one button per alert opening its details.
func AlertListKeyboard(alerts []types.Alert) tgbotapi.InlineKeyboardMarkup {
	rows := lo.Map(alerts, func(a types.Alert, _ int) []tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(alertLabel(a)+" "+statusIcon(a), cbAlert+a.ID),
		)
	})
	if len(alerts) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("button_refresh_all", cbRefreshAll)))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func DeleteKeyboard(alerts []types.Alert) tgbotapi.InlineKeyboardMarkup {
	rows := lo.Map(alerts, func(a types.Alert, _ int) []tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ "+alertLabel(a), cbDel+a.ID),
		)
	})
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func AlertDetailsKeyboard(a types.Alert) tgbotapi.InlineKeyboardMarkup {
	toggleKey := "button_notifications_on"
	if !a.NotificationsEnabled {
		toggleKey = "button_notifications_off"
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(translation.Translate("button_open_mexc"), helpers.FuturesURL(a.Base())),
			button(toggleKey, cbToggle+a.ID),
		),
		tgbotapi.NewInlineKeyboardRow(
			button("button_edit", cbEdit+a.ID),
			button("button_delete_alert", cbDel+a.ID),
		),
		tgbotapi.NewInlineKeyboardRow(
			button("button_refresh", cbRefresh+a.ID),
			button("button_chart", cbChart+a.ID),
		),
		tgbotapi.NewInlineKeyboardRow(button("button_back", cbList)),
	)
}

// NotificationKeyboard links a fired alert to its futures page.
func NotificationKeyboard(a types.Alert) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(translation.Translate("button_open_mexc"), helpers.FuturesURL(a.Base())),
		),
	)
}

// HistoryKeyboard offers clearing the history when there is any.
func HistoryKeyboard(hasItems bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if hasItems {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("button_clear_history", cbClearHistory)))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
