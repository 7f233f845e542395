package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/conversation"
	"mexc-volume-bot/internal/store"
	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

func (r *Router) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil {
		r.answer(ctx, q.ID, "")
		return
	}
	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID
	data := q.Data

	if !r.authorized(q.From) {
		log.WithField("chat_id", chatID).Warn("rejected callback from unauthorized user")
		r.answer(ctx, q.ID, translation.Translate("access_denied"))
		return
	}

	r.observer.ObserveCallback(chatID, chatName(q.Message.Chat))
	log.WithFields(log.Fields{"chat_id": chatID, "data": data}).Debug("received callback")

	// every callback is answered exactly once, notice is shown as a toast
	notice := ""
	defer func() { r.answer(ctx, q.ID, notice) }()

	switch data {
	case cbAdd:
		r.startAdd(ctx, chatID, messageID)
		return
	case cbBulk:
		r.startBulkAdd(ctx, chatID, messageID)
		return
	case cbList:
		r.sessions.Reset(chatID)
		r.showList(ctx, chatID, messageID)
		return
	case cbDelete:
		r.sessions.Reset(chatID)
		r.showDeleteList(ctx, chatID, messageID)
		return
	case cbHistory:
		r.sessions.Reset(chatID)
		r.showHistory(ctx, chatID, messageID)
		return
	case cbClearHistory:
		notice = r.clearHistory(ctx, chatID, messageID)
		return
	case cbBack:
		_, _ = r.sessions.Apply(chatID, conversation.Cancel, nil)
		r.showMainMenu(ctx, chatID, messageID)
		return
	case cbRefreshAll:
		count := r.universe.Refresh(ctx)
		notice = fmt.Sprintf(translation.Translate("symbols_refreshed_format"), count)
		r.showList(ctx, chatID, messageID)
		return
	case cbVolCustom:
		r.askCustomThreshold(ctx, chatID, messageID)
		return
	}

	prefix, arg := splitCallback(data)
	switch prefix {
	case cbInterval:
		r.onInterval(ctx, chatID, messageID, arg)
	case cbThreshold:
		threshold, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || threshold < types.MinThreshold {
			notice = translation.Translate("invalid_data")
			return
		}
		r.finishThreshold(ctx, chatID, messageID, conversation.ThresholdChosen, threshold)
	case cbDel:
		notice = r.deleteAlert(ctx, chatID, messageID, arg)
	case cbAlert, cbRefresh:
		r.showAlertDetails(ctx, chatID, messageID, arg)
	case cbToggle:
		notice = r.toggleAlert(ctx, chatID, messageID, arg)
	case cbEdit:
		r.startEdit(ctx, chatID, messageID, arg)
	case cbChart:
		notice = r.sendChart(ctx, chatID, arg)
	default:
		notice = translation.Translate("unknown_action")
	}
}

var prefixes = []string{cbInterval, cbThreshold, cbDel, cbAlert, cbToggle, cbEdit, cbRefresh, cbChart}

func splitCallback(data string) (prefix, arg string) {
	for _, p := range prefixes {
		if strings.HasPrefix(data, p) {
			return p, strings.TrimPrefix(data, p)
		}
	}
	return "", data
}

func (r *Router) startAdd(ctx context.Context, chatID int64, messageID int) {
	_, _ = r.sessions.Apply(chatID, conversation.StartAdd, nil)
	r.edit(ctx, chatID, messageID, plain("enter_symbol"), markup(CancelKeyboard()))
}

func (r *Router) startBulkAdd(ctx context.Context, chatID int64, messageID int) {
	_, _ = r.sessions.Apply(chatID, conversation.StartBulkAdd, nil)
	r.edit(ctx, chatID, messageID, plain("enter_symbols"), markup(CancelKeyboard()))
}

func (r *Router) startEdit(ctx context.Context, chatID int64, messageID int, id string) {
	alert, err := r.store.Get(chatID, id)
	if err != nil {
		r.alertGone(ctx, chatID, messageID)
		return
	}

	_, _ = r.sessions.Apply(chatID, conversation.StartEdit, func(d *conversation.Draft) {
		d.EditID = alert.ID
		d.Symbols = []string{alert.Symbol}
	})
	r.edit(ctx, chatID, messageID, formatEditPrompt(alert), markup(IntervalsKeyboard()))
}

func (r *Router) onInterval(ctx context.Context, chatID int64, messageID int, arg string) {
	interval, ok := types.ParseInterval(arg)
	if !ok {
		r.sessionExpired(ctx, chatID, messageID)
		return
	}

	session, err := r.sessions.Apply(chatID, conversation.IntervalChosen, func(d *conversation.Draft) {
		d.Interval = interval
	})
	if err != nil {
		r.sessionExpired(ctx, chatID, messageID)
		return
	}

	key := "interval_chosen_format"
	if session.State.Editing() {
		key = "interval_changed_format"
	}
	r.edit(ctx, chatID, messageID, fmt.Sprintf(translation.Translate(key), interval), markup(ThresholdKeyboard()))
}

func (r *Router) askCustomThreshold(ctx context.Context, chatID int64, messageID int) {
	if _, err := r.sessions.Apply(chatID, conversation.CustomThreshold, nil); err != nil {
		r.sessionExpired(ctx, chatID, messageID)
		return
	}
	r.edit(ctx, chatID, messageID, plain("enter_threshold"), markup(CancelKeyboard()))
}

// finishThreshold closes the add or edit dialogue with the chosen threshold.
func (r *Router) finishThreshold(ctx context.Context, chatID int64, messageID int, e conversation.Event, threshold int64) {
	session, err := r.sessions.Apply(chatID, e, nil)
	if err != nil {
		r.sessionExpired(ctx, chatID, messageID)
		return
	}
	draft := session.Draft

	var body string
	switch {
	case draft.EditID != "":
		body = r.applyEdit(chatID, draft, threshold)
	case draft.Bulk():
		body = r.applyBulkAdd(chatID, draft, threshold)
	default:
		body = r.applyAdd(chatID, draft, threshold)
	}

	r.edit(ctx, chatID, messageID, body, markup(MainMenuKeyboard()))
}

func (r *Router) applyEdit(chatID int64, draft conversation.Draft, threshold int64) string {
	alert, err := r.store.Edit(chatID, draft.EditID, draft.Interval, threshold)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return plain("alert_not_found")
	case errors.Is(err, store.ErrDuplicate):
		return formatDuplicate(draft.Symbols[0], draft.Interval)
	case err != nil:
		log.WithError(err).Error("could not edit alert")
		return plain("operation_failed")
	}
	r.persist()
	return formatAlertSaved("alert_updated_format", alert)
}

func (r *Router) applyAdd(chatID int64, draft conversation.Draft, threshold int64) string {
	alert, err := r.store.Add(chatID, draft.Symbols[0], draft.Interval, threshold)
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return formatDuplicate(draft.Symbols[0], draft.Interval)
	case err != nil:
		log.WithError(err).Error("could not add alert")
		return plain("operation_failed")
	}
	r.persist()
	return formatAlertSaved("alert_added_format", alert)
}

func (r *Router) applyBulkAdd(chatID int64, draft conversation.Draft, threshold int64) string {
	added, skipped, err := r.store.AddMany(chatID, draft.Symbols, draft.Interval, threshold)
	if err != nil {
		log.WithError(err).Error("could not add alerts")
		return plain("operation_failed")
	}
	if len(added) > 0 {
		r.persist()
	}
	return formatBulkAdded(added, skipped, draft.Interval, threshold)
}

func (r *Router) deleteAlert(ctx context.Context, chatID int64, messageID int, id string) string {
	removed, err := r.store.Delete(chatID, id)
	if err != nil {
		r.alertGone(ctx, chatID, messageID)
		return ""
	}
	r.persist()
	r.edit(ctx, chatID, messageID, fmt.Sprintf(translation.Translate("alert_deleted_format"), helpers.EscapeMarkdownV2(removed.Symbol), removed.Interval), markup(MainMenuKeyboard()))
	return translation.Translate("alert_deleted")
}

func (r *Router) toggleAlert(ctx context.Context, chatID int64, messageID int, id string) string {
	alert, err := r.store.ToggleNotifications(chatID, id)
	if err != nil {
		r.alertGone(ctx, chatID, messageID)
		return ""
	}
	r.persist()
	r.showAlertDetails(ctx, chatID, messageID, id)

	if alert.NotificationsEnabled {
		return translation.Translate("notifications_enabled")
	}
	return translation.Translate("notifications_disabled")
}

func (r *Router) sendChart(ctx context.Context, chatID int64, id string) string {
	alert, err := r.store.Get(chatID, id)
	if err != nil {
		return translation.Translate("alert_not_found")
	}

	chartData, caption, err := r.charter.VolumeChart(ctx, alert.Symbol)
	if err != nil {
		log.WithError(err).WithField("symbol", alert.Symbol).Warn("could not build chart")
		return translation.Translate("chart_unavailable")
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: chartData,
	})
	photo.Caption = caption
	photo.ParseMode = parseMode
	if _, err := r.sender.Send(ctx, photo); err != nil {
		log.WithError(err).Error("error sending chart")
		return translation.Translate("chart_unavailable")
	}
	return ""
}

func (r *Router) sessionExpired(ctx context.Context, chatID int64, messageID int) {
	r.sessions.Reset(chatID)
	r.edit(ctx, chatID, messageID, plain("session_expired"), markup(MainMenuKeyboard()))
}

func (r *Router) alertGone(ctx context.Context, chatID int64, messageID int) {
	r.edit(ctx, chatID, messageID, plain("alert_not_found"), markup(MainMenuKeyboard()))
}

func (r *Router) clearHistory(ctx context.Context, chatID int64, messageID int) string {
	if err := r.history.ClearNotifications(chatID); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("could not clear notification history")
		return translation.Translate("operation_failed")
	}
	r.showHistory(ctx, chatID, messageID)
	return translation.Translate("history_cleared")
}
