package store

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/types"
)

var (
	ErrNotFound         = errors.New("alert not found")
	ErrDuplicate        = errors.New("alert already exists")
	ErrInvalidThreshold = errors.New("threshold below minimum")
	ErrInvalidInterval  = errors.New("unsupported interval")
)

// Store is the chat to alerts mapping shared by the command router and the
// evaluation loop. Every method is safe for concurrent use; readers always
// receive copies.
type Store struct {
	path  string
	newID func() string

	mu    sync.RWMutex
	chats map[int64][]types.Alert
}

// New returns an empty store persisted to path.
func New(path string) *Store {
	return &Store{
		path:  path,
		newID: uuid.NewString,
		chats: make(map[int64][]types.Alert),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Add creates an alert for chatID. An alert for the same symbol and
// interval in the same chat is rejected with ErrDuplicate.
func (s *Store) Add(chatID int64, symbol string, interval types.Interval, threshold int64) (types.Alert, error) {
	if err := validate(interval, threshold); err != nil {
		return types.Alert{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(chatID, symbol, interval, threshold)
}

// AddMany creates one alert per symbol with a shared interval and threshold.
// Symbols that already have an alert on that interval are skipped and
// returned.
func (s *Store) AddMany(chatID int64, symbols []string, interval types.Interval, threshold int64) ([]types.Alert, []string, error) {
	if err := validate(interval, threshold); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		added   []types.Alert
		skipped []string
	)
	for _, symbol := range lo.Uniq(symbols) {
		alert, err := s.addLocked(chatID, symbol, interval, threshold)
		if err != nil {
			skipped = append(skipped, symbol)
			continue
		}
		added = append(added, alert)
	}
	return added, skipped, nil
}

func (s *Store) addLocked(chatID int64, symbol string, interval types.Interval, threshold int64) (types.Alert, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	for _, a := range s.chats[chatID] {
		if a.Matches(symbol, interval) {
			return types.Alert{}, errors.Wrapf(ErrDuplicate, "%s %s", symbol, interval)
		}
	}

	alert := types.Alert{
		ID:                   s.newID(),
		Symbol:               symbol,
		Interval:             interval,
		Threshold:            threshold,
		NotificationsEnabled: true,
	}
	s.chats[chatID] = append(s.chats[chatID], alert)

	log.WithFields(log.Fields{
		"chat_id":   chatID,
		"alert_id":  alert.ID,
		"symbol":    symbol,
		"interval":  interval,
		"threshold": threshold,
	}).Info("alert added")
	return alert, nil
}

// List returns the alerts of chatID in insertion order.
func (s *Store) List(chatID int64) []types.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]types.Alert(nil), s.chats[chatID]...)
}

func (s *Store) Get(chatID int64, id string) (types.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(chatID, id)
	if i < 0 {
		return types.Alert{}, ErrNotFound
	}
	return s.chats[chatID][i], nil
}

// Delete removes the alert and returns it. Later alerts keep their order.
func (s *Store) Delete(chatID int64, id string) (types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(chatID, id)
	if i < 0 {
		return types.Alert{}, ErrNotFound
	}

	alerts := s.chats[chatID]
	removed := alerts[i]
	s.chats[chatID] = append(alerts[:i:i], alerts[i+1:]...)

	log.WithFields(log.Fields{"chat_id": chatID, "alert_id": id, "symbol": removed.Symbol}).Info("alert deleted")
	return removed, nil
}

// Edit changes interval and threshold of an alert. Moving an alert onto an
// interval already watched for the same symbol is rejected with
// ErrDuplicate. A changed interval resets the last notified volume.
func (s *Store) Edit(chatID int64, id string, interval types.Interval, threshold int64) (types.Alert, error) {
	if err := validate(interval, threshold); err != nil {
		return types.Alert{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(chatID, id)
	if i < 0 {
		return types.Alert{}, ErrNotFound
	}

	alerts := s.chats[chatID]
	for j, a := range alerts {
		if j != i && a.Matches(alerts[i].Symbol, interval) {
			return types.Alert{}, errors.Wrapf(ErrDuplicate, "%s %s", a.Symbol, interval)
		}
	}

	a := &alerts[i]
	if a.Interval != interval {
		a.Interval = interval
		a.LastNotified = 0
	}
	a.Threshold = threshold

	log.WithFields(log.Fields{
		"chat_id":   chatID,
		"alert_id":  id,
		"symbol":    a.Symbol,
		"interval":  interval,
		"threshold": threshold,
	}).Info("alert updated")
	return *a, nil
}

// ToggleNotifications flips the enabled flag of an alert.
func (s *Store) ToggleNotifications(chatID int64, id string) (types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(chatID, id)
	if i < 0 {
		return types.Alert{}, ErrNotFound
	}

	a := &s.chats[chatID][i]
	a.NotificationsEnabled = !a.NotificationsEnabled
	return *a, nil
}

// Update applies fn to the current stored version of the alert under the
// write lock. The change is kept only if fn returns true. It reports false
// when the alert no longer exists or fn declined.
func (s *Store) Update(chatID int64, id string, fn func(a *types.Alert) bool) (types.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(chatID, id)
	if i < 0 {
		return types.Alert{}, false
	}

	candidate := s.chats[chatID][i]
	if !fn(&candidate) {
		return s.chats[chatID][i], false
	}
	candidate.ID = id
	s.chats[chatID][i] = candidate
	return candidate, true
}

// Snapshot returns a point-in-time copy of every chat's alerts.
func (s *Store) Snapshot() map[int64][]types.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[int64][]types.Alert {
	out := make(map[int64][]types.Alert, len(s.chats))
	for chatID, alerts := range s.chats {
		out[chatID] = append([]types.Alert(nil), alerts...)
	}
	return out
}

// Counts returns the number of chats with alerts and the total number of alerts.
func (s *Store) Counts() (chats, alerts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, list := range s.chats {
		if len(list) > 0 {
			chats++
			alerts += len(list)
		}
	}
	return chats, alerts
}

func (s *Store) indexLocked(chatID int64, id string) int {
	_, i, ok := lo.FindIndexOf(s.chats[chatID], func(a types.Alert) bool {
		return a.ID == id
	})
	if !ok {
		return -1
	}
	return i
}

func validate(interval types.Interval, threshold int64) error {
	if !interval.Valid() {
		return errors.Wrapf(ErrInvalidInterval, "%q", interval)
	}
	if threshold < types.MinThreshold {
		return errors.Wrapf(ErrInvalidThreshold, "%d < %d", threshold, types.MinThreshold)
	}
	return nil
}
