package conversation

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"mexc-volume-bot/internal/types"
)

var (
	ErrThresholdTooLow = errors.New("threshold below minimum")
	ErrNotANumber      = errors.New("not a number")
	ErrNoSymbols       = errors.New("no symbols given")
	ErrUnknownSymbol   = errors.New("unknown symbol")
)

// NormalizeSymbol turns operator input such as "btc", "BTC/USDT" or
// "btc_usdt" into the canonical BTCUSDT form. It is idempotent.
func NormalizeSymbol(input string) string {
	sym := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, input)

	if sym == "" {
		return ""
	}
	if !strings.HasSuffix(sym, types.QuoteAsset) {
		sym += types.QuoteAsset
	}
	return sym
}

// ParseSymbol normalises a single symbol and checks it against known.
func ParseSymbol(input string, known func(string) bool) (string, error) {
	sym := NormalizeSymbol(input)
	if sym == "" {
		return "", ErrNoSymbols
	}
	if !known(sym) {
		return sym, errors.Wrap(ErrUnknownSymbol, sym)
	}
	return sym, nil
}

// ParseSymbolList splits a list separated by commas, semicolons or
// whitespace and normalises every entry, dropping repeats.
func ParseSymbolList(input string) ([]string, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})

	symbols := lo.Uniq(lo.FilterMap(fields, func(f string, _ int) (string, bool) {
		sym := NormalizeSymbol(f)
		return sym, sym != ""
	}))
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	return symbols, nil
}

// SplitKnown partitions symbols into those accepted by known and the rest.
func SplitKnown(symbols []string, known func(string) bool) (valid, unknown []string) {
	return lo.FilterReject(symbols, func(s string, _ int) bool {
		return known(s)
	})
}

// ParseThreshold reads a volume threshold. Thousands separators (commas,
// spaces, apostrophes, underscores) and a trailing USDT or $ are accepted;
// fractional parts are truncated.
func ParseThreshold(input string) (int64, error) {
	text := strings.ToUpper(strings.TrimSpace(input))
	text = strings.TrimSuffix(text, types.QuoteAsset)
	text = strings.Trim(text, "$ ")

	text = strings.Map(func(r rune) rune {
		switch {
		case r == ',' || r == '\'' || r == '_' || unicode.IsSpace(r):
			return -1
		}
		return r
	}, text)

	if text == "" {
		return 0, ErrNotANumber
	}

	value, err := decimal.NewFromString(text)
	if err != nil {
		return 0, errors.Wrapf(ErrNotANumber, "%q", input)
	}

	threshold := value.Floor()
	if threshold.LessThan(decimal.NewFromInt(types.MinThreshold)) {
		return 0, errors.Wrapf(ErrThresholdTooLow, "%s", threshold)
	}
	if !threshold.LessThanOrEqual(decimal.NewFromInt(1 << 62)) {
		return 0, errors.Wrapf(ErrNotANumber, "%q is too large", input)
	}
	return threshold.IntPart(), nil
}
