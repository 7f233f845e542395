package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultRate keeps outbound calls under the platform flood limit.
	DefaultRate  = rate.Limit(2)
	DefaultBurst = 1

	parseMode = "MarkdownV2"
)

// API is the part of tgbotapi.BotAPI used for outbound calls.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Sender is what handlers use to talk to the chat platform.
type Sender interface {
	Send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(ctx context.Context, c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Dispatcher funnels every outbound call through one rate limiter and
// retries once when the platform asks to slow down.
type Dispatcher struct {
	api     API
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(api API, limit rate.Limit, burst int) *Dispatcher {
	return &Dispatcher{
		api:     api,
		limiter: rate.NewLimiter(limit, burst),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send delivers a message-producing call.
func (d *Dispatcher) Send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var msg tgbotapi.Message
	err := d.do(ctx, func() error {
		var err error
		msg, err = d.api.Send(c)
		return err
	})
	return msg, err
}

// Request delivers calls whose result is not a message, such as callback
// answers, edits and deletions.
func (d *Dispatcher) Request(ctx context.Context, c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	var resp *tgbotapi.APIResponse
	err := d.do(ctx, func() error {
		var err error
		resp, err = d.api.Request(c)
		return err
	})
	return resp, err
}

func (d *Dispatcher) do(ctx context.Context, call func() error) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	err := call()
	if wait, limited := RetryAfter(err); limited {
		log.Warnf("telegram rate limit hit, retrying in %s", wait)
		if err := d.sleep(ctx, wait); err != nil {
			return errors.Wrap(err, "interrupted while rate limited")
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter")
		}
		err = call()
	}

	if IsNotModified(err) {
		log.Debug("message not modified, ignoring")
		return nil
	}
	return errors.Wrap(err, "telegram call failed")
}

// RetryAfter extracts the back-off requested by a flood-control error.
func RetryAfter(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if err == nil || !errors.As(err, &tgErr) {
		return 0, false
	}
	if tgErr.RetryAfter <= 0 {
		return 0, false
	}
	return time.Duration(tgErr.RetryAfter) * time.Second, true
}

// IsNotModified reports the harmless error of an edit that changes nothing.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
