package mexc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexc-volume-bot/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:   srv.URL,
		APIKey:    "key",
		SecretKey: "secret",
		Timeout:   2 * time.Second,
	})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	c.retry = func() *backoff.Backoff {
		return &backoff.Backoff{Min: time.Millisecond, Max: 4 * time.Millisecond, Factor: 2}
	}
	return c
}

func TestSign(t *testing.T) {
	got := Sign("secret", "symbol=BTC_USDT&interval=Min60&limit=1")
	assert.Equal(t, "6f01528eda39f10ec28b838004273aaec2a5384a01cee7fa688b03759c5a9b2f", got)
	assert.NotEqual(t, got, Sign("other", "symbol=BTC_USDT&interval=Min60&limit=1"))
}

func TestContractSymbol(t *testing.T) {
	assert.Equal(t, "BTC_USDT", ContractSymbol("BTCUSDT"))
	assert.Equal(t, "BTC_USDT", ContractSymbol("BTC_USDT"))
	assert.Equal(t, "1000PEPE_USDT", ContractSymbol("1000PEPEUSDT"))
}

func TestIntervalCode(t *testing.T) {
	for _, interval := range types.Intervals {
		_, ok := IntervalCode(interval)
		assert.True(t, ok, interval)
	}
	code, _ := IntervalCode(types.Interval1h)
	assert.Equal(t, "Min60", code)

	_, ok := IntervalCode("2h")
	assert.False(t, ok)
}

func TestClient_FetchVolume(t *testing.T) {
	var gotQuery, gotSignature, gotKey, gotTime, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotSignature = r.Header.Get("Signature")
		gotKey = r.Header.Get("ApiKey")
		gotTime = r.Header.Get("Request-Time")
		w.Write([]byte(`{"success":true,"code":0,"data":{"amount":["123456.78"],"vol":[1]}}`))
	})

	reading := c.FetchVolume(context.Background(), "BTCUSDT", types.Interval1h)

	assert.Equal(t, Reading{Volume: 123456, OK: true}, reading)
	assert.Equal(t, "/api/v1/contract/kline/BTC_USDT", gotPath)
	assert.Equal(t, "symbol=BTC_USDT&interval=Min60&limit=1", gotQuery)
	assert.Equal(t, Sign("secret", gotQuery), gotSignature)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "1700000000000", gotTime)
}

func TestClient_FetchVolume_NumericAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"amount":[9999.99]}}`))
	})

	assert.Equal(t, Reading{Volume: 9999, OK: true}, c.FetchVolume(context.Background(), "ETHUSDT", types.Interval1m))
}

func TestClient_FetchVolume_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "not success", status: http.StatusOK, body: `{"success":false,"code":1001}`},
		{name: "empty amount", status: http.StatusOK, body: `{"success":true,"data":{"amount":[]}}`},
		{name: "missing data", status: http.StatusOK, body: `{"success":true}`},
		{name: "malformed", status: http.StatusOK, body: `{"success":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			reading := c.FetchVolume(context.Background(), "BTCUSDT", types.Interval5m)
			assert.False(t, reading.OK)
			assert.Zero(t, reading.Volume)
		})
	}
}

func TestClient_FetchVolume_UnsupportedInterval(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	assert.False(t, c.FetchVolume(context.Background(), "BTCUSDT", "3h").OK)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_FetchVolume_RetriesWhenRateLimited(t *testing.T) {
	tests := []struct {
		name      string
		limited   int32
		wantOK    bool
		wantCalls int32
	}{
		{"succeeds first time", 0, true, 1},
		{"one rate limit", 1, true, 2},
		{"two rate limits", 2, true, 3},
		{"gives up after the last retry", 3, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) <= tt.limited {
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				w.Write([]byte(`{"success":true,"data":{"amount":["5000"]}}`))
			})

			reading := c.FetchVolume(context.Background(), "BTCUSDT", types.Interval1m)

			assert.Equal(t, tt.wantOK, reading.OK)
			if tt.wantOK {
				assert.EqualValues(t, 5000, reading.Volume)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_FetchVolume_RetryStopsOnCancel(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c.retry = func() *backoff.Backoff {
		return &backoff.Backoff{Min: time.Hour, Max: time.Hour}
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	assert.False(t, c.FetchVolume(ctx, "BTCUSDT", types.Interval1m).OK)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSetupBackoffRetry(t *testing.T) {
	b := setupBackoffRetry()
	assert.True(t, b.Jitter)
	assert.Equal(t, 500*time.Millisecond, b.Min)
	assert.LessOrEqual(t, b.Duration(), b.Max)
}

func TestClient_ContractSymbols(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/contract/detail", r.URL.Path)
		w.Write([]byte(`{"success":true,"code":0,"data":[
			{"symbol":"BTC_USDT"},{"symbol":"ETH_USDT"},{"symbol":"BTC_USD"},{"symbol":"ETH_USDT"}
		]}`))
	})

	symbols, err := c.ContractSymbols(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)
}

func TestClient_ContractSymbols_Errors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	})
	_, err := c.ContractSymbols(context.Background())
	assert.Error(t, err)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err = c.ContractSymbols(context.Background())
	assert.Error(t, err)
}
