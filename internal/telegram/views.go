package telegram

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/commands"
	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

func (r *Router) showMainMenu(ctx context.Context, chatID int64, messageID int) {
	r.edit(ctx, chatID, messageID, translation.Translate("main_menu"), markup(MainMenuKeyboard()))
}

func (r *Router) showList(ctx context.Context, chatID int64, messageID int) {
	alerts := r.store.List(chatID)
	if len(alerts) == 0 {
		r.edit(ctx, chatID, messageID, plain("no_alerts"), markup(MainMenuKeyboard()))
		return
	}
	r.edit(ctx, chatID, messageID, fmt.Sprintf(translation.Translate("alert_list_format"), len(alerts)), markup(AlertListKeyboard(alerts)))
}

func (r *Router) showDeleteList(ctx context.Context, chatID int64, messageID int) {
	alerts := r.store.List(chatID)
	if len(alerts) == 0 {
		r.edit(ctx, chatID, messageID, plain("no_alerts"), markup(MainMenuKeyboard()))
		return
	}
	r.edit(ctx, chatID, messageID, plain("choose_alert_to_delete"), markup(DeleteKeyboard(alerts)))
}

func (r *Router) showHistory(ctx context.Context, chatID int64, messageID int) {
	notifications, err := r.history.RecentNotifications(chatID, HistoryLimit)
	if err != nil {
		log.WithError(err).Error("could not load notification history")
		r.edit(ctx, chatID, messageID, plain("operation_failed"), markup(MainMenuKeyboard()))
		return
	}
	r.edit(ctx, chatID, messageID, commands.FormatHistory(notifications), markup(HistoryKeyboard(len(notifications) > 0)))
}

func (r *Router) showAlertDetails(ctx context.Context, chatID int64, messageID int, id string) {
	alert, err := r.store.Get(chatID, id)
	if err != nil {
		r.alertGone(ctx, chatID, messageID)
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, detailsTimeout)
	defer cancel()
	overview := commands.FetchOverview(fetchCtx, r.fetcher, alert.Symbol, types.DisplayIntervals)

	r.edit(ctx, chatID, messageID, commands.FormatAlertDetails(alert, overview), markup(AlertDetailsKeyboard(alert)))
}

func formatEditPrompt(a types.Alert) string {
	return fmt.Sprintf(
		translation.Translate("edit_alert_format"),
		helpers.EscapeMarkdownV2(a.Symbol),
		a.Interval,
		helpers.FormatVolumeEscaped(a.Threshold),
	)
}

func formatDuplicate(symbol string, interval types.Interval) string {
	return fmt.Sprintf(translation.Translate("alert_duplicate_format"), helpers.EscapeMarkdownV2(symbol), interval)
}

func formatAlertSaved(key string, a types.Alert) string {
	return fmt.Sprintf(
		translation.Translate(key),
		helpers.EscapeMarkdownV2(a.Symbol),
		a.Interval,
		helpers.FormatVolumeEscaped(a.Threshold),
	)
}

func formatBulkAdded(added []types.Alert, skipped []string, interval types.Interval, threshold int64) string {
	symbols := lo.Map(added, func(a types.Alert, _ int) string { return a.Symbol })

	body := fmt.Sprintf(
		translation.Translate("alerts_added_format"),
		len(added),
		interval,
		helpers.FormatVolumeEscaped(threshold),
	)
	if len(symbols) > 0 {
		body += "\n" + escapeList(symbols)
	}
	if len(skipped) > 0 {
		body += "\n\n" + fmt.Sprintf(translation.Translate("alerts_skipped_format"), escapeList(skipped))
	}
	return body
}
