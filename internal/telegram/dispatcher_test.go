package telegram

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestDispatcher(api API) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(api, rate.Inf, 1)
	var slept []time.Duration
	d.sleep = func(_ context.Context, wait time.Duration) error {
		slept = append(slept, wait)
		return nil
	}
	return d, &slept
}

func floodError(seconds int) error {
	return &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 3",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: seconds},
	}
}

func TestDispatcher_RetriesOnceAfterFloodControl(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{floodError(3), nil}}
	d, slept := newTestDispatcher(api)

	_, err := d.Send(context.Background(), tgbotapi.NewMessage(1, "hi"))

	require.NoError(t, err)
	assert.Len(t, api.sent, 2)
	assert.Equal(t, []time.Duration{3 * time.Second}, *slept)
}

func TestDispatcher_SecondFloodErrorIsReturned(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{floodError(1), floodError(1)}}
	d, _ := newTestDispatcher(api)

	_, err := d.Send(context.Background(), tgbotapi.NewMessage(1, "hi"))

	assert.Error(t, err)
	assert.Len(t, api.sent, 2)
}

func TestDispatcher_NotModifiedIsSuccess(t *testing.T) {
	api := &fakeAPI{requestErrs: []error{&tgbotapi.Error{
		Code:    400,
		Message: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same",
	}}}
	d, _ := newTestDispatcher(api)

	_, err := d.Request(context.Background(), tgbotapi.NewEditMessageText(1, 2, "same"))
	assert.NoError(t, err)
}

func TestDispatcher_OtherErrorsPropagate(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{errors.New("Forbidden: bot was blocked by the user")}}
	d, slept := newTestDispatcher(api)

	_, err := d.Send(context.Background(), tgbotapi.NewMessage(1, "hi"))

	assert.Error(t, err)
	assert.Len(t, api.sent, 1)
	assert.Empty(t, *slept)
}

func TestDispatcher_Throttles(t *testing.T) {
	api := &fakeAPI{}
	d := NewDispatcher(api, rate.Limit(20), 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := d.Send(context.Background(), tgbotapi.NewMessage(1, "hi"))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDispatcher_CancelledWhileWaiting(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{floodError(30)}}
	d := NewDispatcher(api, rate.Inf, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Send(ctx, tgbotapi.NewMessage(1, "hi"))
	assert.Error(t, err)
	assert.Len(t, api.sent, 1)
}

func TestRetryAfter(t *testing.T) {
	wait, ok := RetryAfter(errors.Wrap(floodError(5), "wrapped"))
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, wait)

	_, ok = RetryAfter(errors.New("plain"))
	assert.False(t, ok)
	_, ok = RetryAfter(nil)
	assert.False(t, ok)
}
