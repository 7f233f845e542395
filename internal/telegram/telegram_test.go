package telegram

import (
	"os"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mexc-volume-bot/lib/translation"
)

func TestMain(m *testing.M) {
	translation.Configure("../../locales", "en")
	os.Exit(m.Run())
}

// fakeAPI records outbound calls and replays queued errors.
type fakeAPI struct {
	mu          sync.Mutex
	sent        []tgbotapi.Chattable
	requested   []tgbotapi.Chattable
	log         []tgbotapi.Chattable
	sendErrs    []error
	requestErrs []error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, c)
	f.log = append(f.log, c)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requested = append(f.requested, c)
	f.log = append(f.log, c)
	if len(f.requestErrs) > 0 {
		err := f.requestErrs[0]
		f.requestErrs = f.requestErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the bodies of every message sent or edited, in order.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.log {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, v.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, v.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// lastKeyboard returns the callback data of the inline keyboard attached
// to the last message sent or edited.
func (f *fakeAPI) lastKeyboard() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.log) - 1; i >= 0; i-- {
		var kb *tgbotapi.InlineKeyboardMarkup
		switch v := f.log[i].(type) {
		case tgbotapi.MessageConfig:
			if m, ok := v.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
				kb = &m
			}
		case tgbotapi.EditMessageTextConfig:
			kb = v.ReplyMarkup
		default:
			continue
		}
		if kb == nil {
			return nil
		}
		var data []string
		for _, row := range kb.InlineKeyboard {
			for _, b := range row {
				if b.CallbackData != nil {
					data = append(data, *b.CallbackData)
				}
			}
		}
		return data
	}
	return nil
}

func (f *fakeAPI) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.requested {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = nil
	f.requested = nil
	f.log = nil
}
