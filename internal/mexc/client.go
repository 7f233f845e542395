package mexc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL = "https://contract.mexc.com"
	DefaultTimeout = 10 * time.Second

	// RateLimitRetries is how many times a rate-limited kline request is
	// retried before the reading is reported unavailable.
	RateLimitRetries = 2

	contractSuffix = "_" + types.QuoteAsset
	detailPath     = "/api/v1/contract/detail"
	klinePath      = "/api/v1/contract/kline/"
)

var intervalCodes = map[types.Interval]string{
	types.Interval1m:  "Min1",
	types.Interval5m:  "Min5",
	types.Interval15m: "Min15",
	types.Interval30m: "Min30",
	types.Interval1h:  "Min60",
	types.Interval4h:  "Hour4",
	types.Interval8h:  "Hour8",
	types.Interval1d:  "Day1",
}

// Reading is the outcome of a volume fetch. OK is false when no reading
// could be obtained, which is distinct from a legitimate zero volume.
type Reading struct {
	Volume int64
	OK     bool
}

// Unavailable is the reading returned for any failed fetch.
func Unavailable() Reading {
	return Reading{}
}

// Config holds the credentials and endpoint of the contract API.
type Config struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// Client talks to the MEXC futures (contract) REST API.
type Client struct {
	cfg   Config
	http  *http.Client
	now   func() time.Time
	retry func() *backoff.Backoff
}

type contract struct {
	Symbol string `json:"symbol"`
}

type detailResponse struct {
	Success bool       `json:"success"`
	Code    int        `json:"code"`
	Data    []contract `json:"data"`
}

type klineResponse struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Data    *struct {
		Amount []decimal.Decimal `json:"amount"`
	} `json:"data"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		now:   time.Now,
		retry: setupBackoffRetry,
	}
}

// setupBackoffRetry paces retries of rate-limited requests.
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    4 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// IntervalCode maps an alert interval onto the exchange kline code.
func IntervalCode(i types.Interval) (string, bool) {
	code, ok := intervalCodes[i]
	return code, ok
}

// ContractSymbol converts BTCUSDT into the exchange form BTC_USDT.
func ContractSymbol(symbol string) string {
	if strings.HasSuffix(symbol, contractSuffix) {
		return symbol
	}
	return strings.TrimSuffix(symbol, types.QuoteAsset) + contractSuffix
}

// Sign returns the hex HMAC-SHA256 of query keyed by secret.
func Sign(secret, query string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// ContractSymbols lists the USDT-margined perpetual contracts, normalised
// to the BTCUSDT form.
func (c *Client) ContractSymbols(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+detailPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build contract detail request")
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "contract detail request failed")
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("contract detail returned status %d", status)
	}

	var resp detailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "could not decode contract detail")
	}
	if !resp.Success || len(resp.Data) == 0 {
		return nil, errors.Errorf("contract detail returned no data (code %d)", resp.Code)
	}

	symbols := lo.FilterMap(resp.Data, func(item contract, _ int) (string, bool) {
		if !strings.HasSuffix(item.Symbol, contractSuffix) {
			return "", false
		}
		return strings.ReplaceAll(item.Symbol, contractSuffix, types.QuoteAsset), true
	})

	return lo.Uniq(symbols), nil
}

// FetchVolume returns the traded amount of the latest candle of symbol on
// interval. Every failure is logged and reported as Unavailable.
func (c *Client) FetchVolume(ctx context.Context, symbol string, interval types.Interval) Reading {
	logger := log.WithFields(log.Fields{"symbol": symbol, "interval": interval})

	code, ok := IntervalCode(interval)
	if !ok {
		logger.Warn("unsupported interval")
		return Unavailable()
	}

	sym := ContractSymbol(symbol)
	query := fmt.Sprintf("symbol=%s&interval=%s&limit=1", sym, code)

	retry := c.retry()
	for {
		reading, status, err := c.fetchKline(ctx, sym, query)
		if err == nil {
			return reading
		}
		if status != http.StatusTooManyRequests || retry.Attempt() >= RateLimitRetries {
			logger.WithError(err).Warn("could not fetch volume")
			return Unavailable()
		}

		wait := retry.Duration()
		logger.Warnf("rate limited, retry %d in %s", int(retry.Attempt()), wait)
		select {
		case <-ctx.Done():
			return Unavailable()
		case <-time.After(wait):
		}
	}
}

func (c *Client) fetchKline(ctx context.Context, sym, query string) (Reading, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+klinePath+sym, nil)
	if err != nil {
		return Unavailable(), 0, errors.Wrap(err, "could not build kline request")
	}
	req.URL.RawQuery = query
	req.Header.Set("ApiKey", c.cfg.APIKey)
	req.Header.Set("Request-Time", strconv.FormatInt(c.now().UnixMilli(), 10))
	req.Header.Set("Signature", Sign(c.cfg.SecretKey, query))

	body, status, err := c.do(req)
	if err != nil {
		return Unavailable(), status, errors.Wrap(err, "kline request failed")
	}
	if status != http.StatusOK {
		return Unavailable(), status, errors.Errorf("kline returned status %d", status)
	}

	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Unavailable(), status, errors.Wrap(err, "could not decode kline")
	}
	if !resp.Success || resp.Data == nil || len(resp.Data.Amount) == 0 {
		return Unavailable(), status, errors.Errorf("invalid kline payload (code %d)", resp.Code)
	}

	return Reading{Volume: resp.Data.Amount[0].Floor().IntPart(), OK: true}, status, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "could not read response body")
	}
	return body, resp.StatusCode, nil
}
