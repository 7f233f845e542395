package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexc-volume-bot/internal/mexc"
	"mexc-volume-bot/internal/store"
	"mexc-volume-bot/internal/types"
)

const (
	operatorID = int64(1001)
	chatID     = int64(555)
)

type fakeUniverse struct {
	symbols   map[string]bool
	refreshes int
}

func (u *fakeUniverse) Contains(s string) bool { return u.symbols[s] }
func (u *fakeUniverse) Len() int               { return len(u.symbols) }
func (u *fakeUniverse) Refresh(context.Context) int {
	u.refreshes++
	return len(u.symbols)
}

type fixedFetcher struct{ volume int64 }

func (f fixedFetcher) FetchVolume(context.Context, string, types.Interval) mexc.Reading {
	return mexc.Reading{Volume: f.volume, OK: true}
}

type fakeCharter struct{ symbols []string }

func (c *fakeCharter) VolumeChart(_ context.Context, symbol string) ([]byte, string, error) {
	c.symbols = append(c.symbols, symbol)
	return []byte("\x89PNG"), "caption", nil
}

type fakeHistory struct {
	items   []types.Notification
	cleared []int64
}

func (h *fakeHistory) RecentNotifications(chatID int64, limit int) ([]types.Notification, error) {
	return h.items, nil
}

func (h *fakeHistory) ClearNotifications(chatID int64) error {
	h.cleared = append(h.cleared, chatID)
	h.items = nil
	return nil
}

type harness struct {
	api      *fakeAPI
	store    *store.Store
	universe *fakeUniverse
	charter  *fakeCharter
	history  *fakeHistory
	router   *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		api:      &fakeAPI{},
		store:    store.New(filepath.Join(t.TempDir(), "alerts.json")),
		universe: &fakeUniverse{symbols: map[string]bool{"BTCUSDT": true, "ETHUSDT": true, "SOLUSDT": true}},
		charter:  &fakeCharter{},
		history: &fakeHistory{items: []types.Notification{
			{Symbol: "BTCUSDT", Interval: types.Interval1h, Threshold: 5000, Volume: 7000, CreatedAt: "2024-03-01 10:15:00"},
		}},
	}
	d, _ := newTestDispatcher(h.api)
	h.router = NewRouter(RouterConfig{
		AllowedUserID: operatorID,
		Sender:        d,
		Store:         h.store,
		Universe:      h.universe,
		Fetcher:       fixedFetcher{volume: 2_000_000},
		Charter:       h.charter,
		History:       h.history,
	})
	return h
}

func (h *harness) text(userID int64, text string) {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	}
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (h *harness) press(userID int64, data string) {
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}})
}

func TestRouter_RejectsOtherUsers(t *testing.T) {
	h := newHarness(t)

	h.text(999, "/start")
	assert.Equal(t, "Access denied\\.", h.api.lastText())

	h.press(999, cbAdd)
	assert.Equal(t, []string{"Access denied."}, h.api.callbackAnswers())
	assert.Equal(t, 0, h.universe.refreshes)

	h.text(operatorID, "btc")
	assert.Empty(t, h.store.List(chatID), "the rejected press started no dialogue")
}

func TestRouter_StartShowsMainMenu(t *testing.T) {
	h := newHarness(t)

	h.text(operatorID, "/start")

	require.Len(t, h.api.sent, 1)
	msg := h.api.sent[0].(tgbotapi.MessageConfig)
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Len(t, kb.InlineKeyboard, 5)
	assert.Equal(t, cbAdd, *kb.InlineKeyboard[0][0].CallbackData)
}

func TestRouter_AddAlertWithPreset(t *testing.T) {
	h := newHarness(t)

	h.press(operatorID, cbAdd)
	h.text(operatorID, "btc")
	assert.Contains(t, h.api.lastText(), "BTCUSDT")
	h.press(operatorID, cbInterval+"1h")
	h.press(operatorID, cbThreshold+"5000")

	alerts := h.store.List(chatID)
	require.Len(t, alerts, 1)
	assert.Equal(t, "BTCUSDT", alerts[0].Symbol)
	assert.Equal(t, types.Interval1h, alerts[0].Interval)
	assert.Equal(t, int64(5000), alerts[0].Threshold)
	assert.True(t, alerts[0].NotificationsEnabled)
	assert.Contains(t, h.api.lastText(), "Alert added")

	reloaded := store.New(h.store.Path())
	require.NoError(t, reloaded.Load())
	assert.Len(t, reloaded.List(chatID), 1, "mutations are persisted")
}

func TestRouter_AddAlertWithCustomThreshold(t *testing.T) {
	h := newHarness(t)

	h.press(operatorID, cbAdd)
	h.text(operatorID, "ETHUSDT")
	h.press(operatorID, cbInterval+"5m")
	h.press(operatorID, cbVolCustom)

	h.text(operatorID, "999")
	assert.Contains(t, h.api.lastText(), "minimum threshold")
	h.text(operatorID, "lots")
	assert.Contains(t, h.api.lastText(), "not a number")
	assert.Empty(t, h.store.List(chatID))

	h.text(operatorID, "10,000")
	alerts := h.store.List(chatID)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(10000), alerts[0].Threshold)
}

func TestRouter_UnknownSymbolKeepsAsking(t *testing.T) {
	h := newHarness(t)

	h.press(operatorID, cbAdd)
	h.text(operatorID, "doge")
	assert.Contains(t, h.api.lastText(), "DOGEUSDT")

	h.text(operatorID, "sol")
	assert.Contains(t, h.api.lastText(), "SOLUSDT")
}

func TestRouter_DuplicateIsRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Add(chatID, "BTCUSDT", types.Interval1h, 3000)
	require.NoError(t, err)

	h.press(operatorID, cbAdd)
	h.text(operatorID, "btc")
	h.press(operatorID, cbInterval+"1h")
	h.press(operatorID, cbThreshold+"5000")

	assert.Contains(t, h.api.lastText(), "already exists")
	alerts := h.store.List(chatID)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(3000), alerts[0].Threshold)
}

func TestRouter_BulkAdd(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Add(chatID, "ETHUSDT", types.Interval1m, 3000)
	require.NoError(t, err)

	h.press(operatorID, cbBulk)
	h.text(operatorID, "btc, eth foo")
	assert.Contains(t, h.api.lastText(), "FOOUSDT")
	h.press(operatorID, cbInterval+"1m")
	h.press(operatorID, cbThreshold+"2000")

	alerts := h.store.List(chatID)
	require.Len(t, alerts, 2)
	assert.Equal(t, "BTCUSDT", alerts[1].Symbol)
	assert.Contains(t, h.api.lastText(), "ETHUSDT", "the duplicate is reported as skipped")
}

func TestRouter_BulkAddWithOneKnownSymbolAddsSingleAlert(t *testing.T) {
	h := newHarness(t)

	h.press(operatorID, cbBulk)
	h.text(operatorID, "sol foo")
	h.press(operatorID, cbInterval+"5m")
	h.press(operatorID, cbThreshold+"4000")

	alerts := h.store.List(chatID)
	require.Len(t, alerts, 1)
	assert.Equal(t, "SOLUSDT", alerts[0].Symbol)
	assert.Equal(t, types.Interval5m, alerts[0].Interval)
}

func TestRouter_TextOutsideTextSteps(t *testing.T) {
	h := newHarness(t)

	h.text(operatorID, "hello")
	assert.Equal(t, "Use the menu below\\.", h.api.lastText())

	h.press(operatorID, cbAdd)
	h.text(operatorID, "eth")
	h.text(operatorID, "5000")
	assert.Equal(t, "Please choose a timeframe with the buttons\\.", h.api.lastText())
	assert.Empty(t, h.store.List(chatID), "free text cannot skip the interval step")

	h.press(operatorID, cbInterval+"15m")
	h.text(operatorID, "5000")
	require.Len(t, h.store.List(chatID), 1)
	assert.Equal(t, int64(5000), h.store.List(chatID)[0].Threshold)
}

func TestRouter_ClearHistory(t *testing.T) {
	h := newHarness(t)

	h.press(operatorID, cbHistory)
	assert.Equal(t, []string{cbClearHistory, cbBack}, h.api.lastKeyboard())

	h.press(operatorID, cbClearHistory)
	assert.Equal(t, []int64{chatID}, h.history.cleared)
	assert.Contains(t, h.api.callbackAnswers(), "History cleared")
	assert.Equal(t, "No notifications yet\\.", h.api.lastText())
	assert.Equal(t, []string{cbBack}, h.api.lastKeyboard())
}

func TestRouter_EditAlert(t *testing.T) {
	h := newHarness(t)
	alert, err := h.store.Add(chatID, "BTCUSDT", types.Interval1h, 3000)
	require.NoError(t, err)

	h.press(operatorID, cbEdit+alert.ID)
	h.press(operatorID, cbInterval+"4h")
	assert.Contains(t, h.api.lastText(), "New timeframe")
	h.press(operatorID, cbVolCustom)
	h.text(operatorID, "8000")

	got, err := h.store.Get(chatID, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Interval4h, got.Interval)
	assert.Equal(t, int64(8000), got.Threshold)
	assert.Contains(t, h.api.lastText(), "Alert updated")
}

func TestRouter_DeleteAndToggle(t *testing.T) {
	h := newHarness(t)
	alert, err := h.store.Add(chatID, "BTCUSDT", types.Interval1h, 3000)
	require.NoError(t, err)

	h.press(operatorID, cbToggle+alert.ID)
	got, _ := h.store.Get(chatID, alert.ID)
	assert.False(t, got.NotificationsEnabled)
	assert.Contains(t, h.api.callbackAnswers(), "Notifications disabled")

	h.press(operatorID, cbDel+alert.ID)
	assert.Empty(t, h.store.List(chatID))

	h.api.reset()
	h.press(operatorID, cbDel+alert.ID)
	assert.Contains(t, h.api.lastText(), "no longer exists")
}

func TestRouter_AlertDetails(t *testing.T) {
	h := newHarness(t)
	alert, err := h.store.Add(chatID, "SOLUSDT", types.Interval15m, 3000)
	require.NoError(t, err)

	h.press(operatorID, cbAlert+alert.ID)

	body := h.api.lastText()
	assert.Contains(t, body, "SOLUSDT")
	assert.Contains(t, body, "🟡")
	assert.Contains(t, body, "2,000,000")
}

func TestRouter_ChartHistoryAndRefresh(t *testing.T) {
	h := newHarness(t)
	alert, err := h.store.Add(chatID, "BTCUSDT", types.Interval1h, 3000)
	require.NoError(t, err)

	h.press(operatorID, cbChart+alert.ID)
	assert.Equal(t, []string{"BTCUSDT"}, h.charter.symbols)
	_, isPhoto := h.api.sent[len(h.api.sent)-1].(tgbotapi.PhotoConfig)
	assert.True(t, isPhoto)

	h.press(operatorID, cbHistory)
	assert.Contains(t, h.api.lastText(), "7,000")

	h.press(operatorID, cbRefreshAll)
	assert.Equal(t, 1, h.universe.refreshes)
	assert.Contains(t, h.api.callbackAnswers(), "3 pairs loaded")
}

func TestRouter_StaleButtonsExpireTheDialogue(t *testing.T) {
	h := newHarness(t)

	h.press(operatorID, cbThreshold+"5000")
	assert.Contains(t, h.api.lastText(), "expired")
	assert.Empty(t, h.store.List(chatID))
}

func TestRouter_BackCancelsDialogue(t *testing.T) {
	h := newHarness(t)

	h.press(operatorID, cbAdd)
	h.press(operatorID, cbBack)
	h.text(operatorID, "btc")

	assert.Contains(t, h.api.lastText(), "Use the menu")
}

type panickyUniverse struct{ *fakeUniverse }

func (panickyUniverse) Contains(string) bool { panic("boom") }

func TestRouter_RecoversFromPanics(t *testing.T) {
	h := newHarness(t)
	h.router.universe = panickyUniverse{&fakeUniverse{}}

	h.press(operatorID, cbAdd)
	assert.NotPanics(t, func() { h.text(operatorID, "btc") })
}
