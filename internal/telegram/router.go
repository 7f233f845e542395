package telegram

import (
	"bytes"
	"context"
	"runtime"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/conversation"
	"mexc-volume-bot/internal/mexc"
	"mexc-volume-bot/internal/store"
	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

// HistoryLimit is the number of notifications the history view shows.
const HistoryLimit = 10

// detailsTimeout bounds the volume overview fetched for a details view.
const detailsTimeout = 15 * time.Second

type Universe interface {
	Contains(symbol string) bool
	Len() int
	Refresh(ctx context.Context) int
}

type VolumeFetcher interface {
	FetchVolume(ctx context.Context, symbol string, interval types.Interval) mexc.Reading
}

type Charter interface {
	VolumeChart(ctx context.Context, symbol string) ([]byte, string, error)
}

type History interface {
	RecentNotifications(chatID int64, limit int) ([]types.Notification, error)
	ClearNotifications(chatID int64) error
}

// Observer receives usage metrics.
type Observer interface {
	ObserveMessage(chatID int64, chatName string)
	ObserveCallback(chatID int64, chatName string)
	ObserveCommand()
}

type nopObserver struct{}

func (nopObserver) ObserveMessage(int64, string)  {}
func (nopObserver) ObserveCallback(int64, string) {}
func (nopObserver) ObserveCommand()               {}

type RouterConfig struct {
	AllowedUserID int64
	Sender        Sender
	Store         *store.Store
	Universe      Universe
	Fetcher       VolumeFetcher
	Charter       Charter
	History       History
	Observer      Observer
}

// Router turns updates from the single allowed operator into store
// mutations and replies.
type Router struct {
	allowedUserID int64
	sender        Sender
	store         *store.Store
	universe      Universe
	fetcher       VolumeFetcher
	charter       Charter
	history       History
	observer      Observer
	sessions      *conversation.Sessions
}

func NewRouter(c RouterConfig) *Router {
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return &Router{
		allowedUserID: c.AllowedUserID,
		sender:        c.Sender,
		store:         c.Store,
		universe:      c.Universe,
		fetcher:       c.Fetcher,
		charter:       c.Charter,
		history:       c.History,
		observer:      c.Observer,
		sessions:      conversation.NewSessions(),
	}
}

// HandleUpdates consumes updates until the channel closes or ctx ends.
func (r *Router) HandleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			r.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches a single update. Panics are logged, never fatal.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", rec, stackTrace)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	default:
		log.Debug("Received non-message or non-callback update")
	}
}

func (r *Router) authorized(from *tgbotapi.User) bool {
	return from != nil && from.ID == r.allowedUserID
}

func chatName(chat *tgbotapi.Chat) string {
	if chat == nil {
		return ""
	}
	if chat.Title != "" {
		return chat.Title
	}
	if chat.UserName != "" {
		return chat.UserName
	}
	return "PrivateChat"
}

func (r *Router) reply(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := r.sender.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("could not send message")
	}
}

// edit replaces the text of a menu message in place, falling back to a new
// message when the original cannot be edited.
func (r *Router) edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		r.reply(ctx, chatID, text, markup)
		return
	}

	var cfg tgbotapi.EditMessageTextConfig
	if markup != nil {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	cfg.ParseMode = parseMode
	cfg.DisableWebPagePreview = true

	if _, err := r.sender.Request(ctx, cfg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("could not edit message, sending a new one")
		r.reply(ctx, chatID, text, markup)
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if _, err := r.sender.Request(ctx, tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.WithError(err).Warn("could not answer callback")
	}
}

func (r *Router) persist() {
	if err := r.store.Save(); err != nil {
		log.WithError(err).Error("could not persist alerts")
	}
}

func plain(key string) string {
	return helpers.EscapeMarkdownV2(translation.Translate(key))
}

func markup(m tgbotapi.InlineKeyboardMarkup) *tgbotapi.InlineKeyboardMarkup {
	return &m
}
