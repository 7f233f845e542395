package symbols

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// MinReasonableSize is the size below which a known universe is not
// trusted to survive a failed refresh.
const MinReasonableSize = 10

// Fallback is used when the exchange listing cannot be loaded and nothing
// better is known.
var Fallback = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

// Loader lists the tradable symbols of the exchange.
type Loader interface {
	ContractSymbols(ctx context.Context) ([]string, error)
}

// Universe is the process-wide set of tradable symbols. It is replaced
// wholesale on refresh and never mutated incrementally.
type Universe struct {
	loader Loader

	mu        sync.RWMutex
	set       map[string]struct{}
	updatedAt time.Time
}

func NewUniverse(loader Loader) *Universe {
	return &Universe{
		loader: loader,
		set:    make(map[string]struct{}),
	}
}

// Refresh reloads the universe from the exchange. Failures are absorbed:
// a reasonably sized universe is kept, otherwise the fallback set is used.
// It returns the resulting size.
func (u *Universe) Refresh(ctx context.Context) int {
	symbols, err := u.loader.ContractSymbols(ctx)
	if err == nil && len(symbols) == 0 {
		err = errEmptyListing
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if err != nil {
		if len(u.set) >= MinReasonableSize {
			log.WithError(err).Warnf("could not refresh symbols, keeping %d known symbols", len(u.set))
			return len(u.set)
		}
		log.WithError(err).Errorf("could not load symbols, using fallback %v", Fallback)
		symbols = Fallback
	} else {
		log.Infof("loaded %d symbols", len(symbols))
	}

	u.set = lo.SliceToMap(symbols, func(s string) (string, struct{}) {
		return s, struct{}{}
	})
	u.updatedAt = time.Now()
	return len(u.set)
}

// StartRefresher refreshes the universe every interval until ctx is done.
func (u *Universe) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				u.Refresh(ctx)
			}
		}
	}()
}

func (u *Universe) Contains(symbol string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	_, ok := u.set[symbol]
	return ok
}

func (u *Universe) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return len(u.set)
}

func (u *Universe) UpdatedAt() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.updatedAt
}
