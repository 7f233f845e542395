package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/conversation"
	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

var menuWords = map[string]bool{
	"menu":  true,
	"start": true,
	"меню":  true,
	"старт": true,
}

func (r *Router) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID

	if !r.authorized(m.From) {
		log.WithField("chat_id", chatID).Warn("rejected message from unauthorized user")
		r.reply(ctx, chatID, plain("access_denied"), nil)
		return
	}

	r.observer.ObserveMessage(chatID, chatName(m.Chat))

	if m.IsCommand() {
		log.Debugf("received command: %s", m.Command())
		r.handleCommand(ctx, m)
		return
	}

	input := strings.TrimSpace(m.Text)
	if menuWords[strings.ToLower(input)] {
		r.sessions.Reset(chatID)
		r.showMainMenu(ctx, chatID, 0)
		return
	}

	session := r.sessions.Get(chatID)
	switch {
	case session.State == conversation.Idle:
		r.reply(ctx, chatID, plain("use_menu"), markup(MainMenuKeyboard()))
	case !session.State.AwaitsText():
		r.reply(ctx, chatID, plain("choose_interval_buttons"), markup(IntervalsKeyboard()))
	case session.State == conversation.WaitSymbol:
		r.onSymbol(ctx, chatID, input)
	case session.State == conversation.WaitMultipleSymbols:
		r.onSymbols(ctx, chatID, input)
	default:
		r.onThresholdText(ctx, chatID, input)
	}
}

func (r *Router) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	r.observer.ObserveCommand()

	switch m.Command() {
	case "start", "menu":
		r.sessions.Reset(chatID)
		r.showMainMenu(ctx, chatID, 0)
	case "cancel":
		r.sessions.Reset(chatID)
		r.reply(ctx, chatID, plain("cancelled"), markup(MainMenuKeyboard()))
	case "list":
		r.showList(ctx, chatID, 0)
	case "history":
		r.showHistory(ctx, chatID, 0)
	case "add":
		r.startAdd(ctx, chatID, 0)
	default:
		r.reply(ctx, chatID, translation.Translate("help_message"), markup(MainMenuKeyboard()))
	}
}

func (r *Router) onSymbol(ctx context.Context, chatID int64, input string) {
	symbol, err := conversation.ParseSymbol(input, r.universe.Contains)
	switch {
	case errors.Is(err, conversation.ErrNoSymbols):
		r.reply(ctx, chatID, plain("enter_symbol"), markup(CancelKeyboard()))
		return
	case errors.Is(err, conversation.ErrUnknownSymbol):
		r.reply(ctx, chatID, fmt.Sprintf(translation.Translate("symbol_not_found_format"), helpers.EscapeMarkdownV2(symbol)), markup(CancelKeyboard()))
		return
	}

	if _, err := r.sessions.Apply(chatID, conversation.SymbolEntered, func(d *conversation.Draft) {
		d.Symbols = []string{symbol}
	}); err != nil {
		r.sessionExpired(ctx, chatID, 0)
		return
	}

	r.reply(ctx, chatID, fmt.Sprintf(translation.Translate("symbol_chosen_format"), helpers.EscapeMarkdownV2(symbol)), markup(IntervalsKeyboard()))
}

func (r *Router) onSymbols(ctx context.Context, chatID int64, input string) {
	symbols, err := conversation.ParseSymbolList(input)
	if err != nil {
		r.reply(ctx, chatID, plain("enter_symbols"), markup(CancelKeyboard()))
		return
	}

	valid, unknown := conversation.SplitKnown(symbols, r.universe.Contains)
	if len(valid) == 0 {
		r.reply(ctx, chatID, fmt.Sprintf(translation.Translate("symbols_not_found_format"), escapeList(unknown)), markup(CancelKeyboard()))
		return
	}

	if _, err := r.sessions.Apply(chatID, conversation.SymbolsEntered, func(d *conversation.Draft) {
		d.Symbols = valid
	}); err != nil {
		r.sessionExpired(ctx, chatID, 0)
		return
	}

	body := fmt.Sprintf(translation.Translate("symbols_chosen_format"), len(valid), escapeList(valid))
	if len(unknown) > 0 {
		body += "\n" + fmt.Sprintf(translation.Translate("symbols_skipped_unknown_format"), escapeList(unknown))
	}
	r.reply(ctx, chatID, body, markup(IntervalsKeyboard()))
}

func (r *Router) onThresholdText(ctx context.Context, chatID int64, input string) {
	threshold, err := conversation.ParseThreshold(input)
	switch {
	case errors.Is(err, conversation.ErrThresholdTooLow):
		r.reply(ctx, chatID, fmt.Sprintf(translation.Translate("threshold_too_low_format"), helpers.FormatVolumeEscaped(types.MinThreshold)), markup(CancelKeyboard()))
		return
	case err != nil:
		r.reply(ctx, chatID, plain("threshold_not_a_number"), markup(CancelKeyboard()))
		return
	}

	r.finishThreshold(ctx, chatID, 0, conversation.ThresholdEntered, threshold)
}

func escapeList(symbols []string) string {
	return helpers.EscapeMarkdownV2(strings.Join(symbols, ", "))
}
