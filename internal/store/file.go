package store

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fileAlert is the persisted form of an alert. NotificationsEnabled is a
// pointer so files written before the flag existed load as enabled.
type fileAlert struct {
	ID                   string         `json:"id,omitempty"`
	Symbol               string         `json:"symbol"`
	Interval             types.Interval `json:"interval"`
	Threshold            int64          `json:"threshold"`
	LastNotified         int64          `json:"last_notified"`
	NotificationsEnabled *bool          `json:"notifications_enabled,omitempty"`
}

// Encode serialises the chat mapping with chat ids as string keys.
func Encode(chats map[int64][]types.Alert) ([]byte, error) {
	doc := make(map[string][]fileAlert, len(chats))
	for chatID, alerts := range chats {
		list := make([]fileAlert, 0, len(alerts))
		for _, a := range alerts {
			enabled := a.NotificationsEnabled
			list = append(list, fileAlert{
				ID:                   a.ID,
				Symbol:               a.Symbol,
				Interval:             a.Interval,
				Threshold:            a.Threshold,
				LastNotified:         a.LastNotified,
				NotificationsEnabled: &enabled,
			})
		}
		doc[strconv.FormatInt(chatID, 10)] = list
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "could not encode alerts")
	}
	return data, nil
}

// Decode parses a document produced by Encode. Entries with an unparsable
// chat id or an unknown interval are dropped; missing ids are generated.
func Decode(data []byte, newID func() string) (map[int64][]types.Alert, error) {
	var doc map[string][]fileAlert
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "could not decode alerts")
	}

	chats := make(map[int64][]types.Alert, len(doc))
	for key, list := range doc {
		chatID, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			log.Warnf("skipping alerts of invalid chat id %q", key)
			continue
		}

		alerts := make([]types.Alert, 0, len(list))
		for _, fa := range list {
			if !fa.Interval.Valid() {
				log.Warnf("skipping %s alert with unknown interval %q", fa.Symbol, fa.Interval)
				continue
			}
			a := types.Alert{
				ID:                   fa.ID,
				Symbol:               strings.ToUpper(fa.Symbol),
				Interval:             fa.Interval,
				Threshold:            fa.Threshold,
				LastNotified:         fa.LastNotified,
				NotificationsEnabled: fa.NotificationsEnabled == nil || *fa.NotificationsEnabled,
			}
			if a.ID == "" {
				a.ID = newID()
			}
			alerts = append(alerts, a)
		}
		chats[chatID] = alerts
	}
	return chats, nil
}

// Save writes a snapshot of every chat's alerts to the store file.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := Encode(s.snapshotLocked())
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "could not create temporary alerts file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not write alerts")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "could not write alerts")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "could not replace %s", s.path)
	}

	log.Debugf("alerts saved to %s", s.path)
	return nil
}

// Load replaces the in-memory state with the store file. A missing file
// yields an empty store. A corrupt file also yields an empty store and is
// reported through the returned error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		log.Infof("no alerts file at %s, starting empty", s.path)
		s.replace(make(map[int64][]types.Alert))
		return nil
	}
	if err != nil {
		s.replace(make(map[int64][]types.Alert))
		return errors.Wrapf(err, "could not read %s", s.path)
	}

	chats, err := Decode(data, s.newID)
	if err != nil {
		s.replace(make(map[int64][]types.Alert))
		return errors.Wrapf(err, "corrupt alerts file %s", s.path)
	}

	s.replace(chats)
	chatCount, alertCount := s.Counts()
	log.Infof("loaded %d alerts for %d chats from %s", alertCount, chatCount, s.path)
	return nil
}

func (s *Store) replace(chats map[int64][]types.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = chats
}
