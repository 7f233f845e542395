package monitor

import (
	"bytes"
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/mexc"
	"mexc-volume-bot/internal/types"
)

const (
	DefaultInterval         = 30 * time.Second
	DefaultFailureThreshold = 3
)

type VolumeFetcher interface {
	FetchVolume(ctx context.Context, symbol string, interval types.Interval) mexc.Reading
}

type Notifier interface {
	NotifyVolume(ctx context.Context, chatID int64, alert types.Alert, volume int64) error
}

// AlertStore is the subset of the alert store the loop depends on.
type AlertStore interface {
	Snapshot() map[int64][]types.Alert
	Update(chatID int64, id string, fn func(a *types.Alert) bool) (types.Alert, bool)
	Save() error
}

// Journal records delivered notifications.
type Journal interface {
	RecordNotification(n types.Notification) error
}

// Recorder receives loop metrics.
type Recorder interface {
	PassCompleted(d time.Duration)
	VolumeChecked(ok bool)
	NotificationSent()
	NotificationFailed()
}

type nopRecorder struct{}

func (nopRecorder) PassCompleted(time.Duration) {}
func (nopRecorder) VolumeChecked(bool)          {}
func (nopRecorder) NotificationSent()           {}
func (nopRecorder) NotificationFailed()         {}

type Config struct {
	Interval time.Duration
	// FailureThreshold is the number of consecutive failed passes after
	// which the loop starts backing off.
	FailureThreshold int
	BackoffMin       time.Duration
	BackoffMax       time.Duration
}

// Monitor periodically evaluates every stored alert against live volume.
type Monitor struct {
	cfg      Config
	store    AlertStore
	fetcher  VolumeFetcher
	notifier Notifier
	journal  Journal
	recorder Recorder
	now      func() time.Time
}

type Option func(*Monitor)

func WithJournal(j Journal) Option {
	return func(m *Monitor) { m.journal = j }
}

func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

func New(cfg Config, store AlertStore, fetcher VolumeFetcher, notifier Notifier, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Minute
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = 10 * time.Minute
	}

	m := &Monitor{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldFire reports whether volume triggers the alert: it must reach the
// threshold and differ from the volume of the last notification.
func ShouldFire(a types.Alert, volume int64) bool {
	return a.NotificationsEnabled && volume >= a.Threshold && volume != a.LastNotified
}

// PassResult summarises one evaluation pass.
type PassResult struct {
	Checked     int
	Unavailable int
	Fired       int
	Failed      int
}

// RunPass evaluates every alert once. Alerts are visited chat by chat in
// ascending chat id order. A failure on one alert never aborts the pass.
func (m *Monitor) RunPass(ctx context.Context) (res PassResult, err error) {
	start := m.now()
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("recovered from panic in evaluation pass: %v\nStack trace: %s", r, stackTrace)
			err = errors.Errorf("evaluation pass panicked: %v", r)
		}
		m.recorder.PassCompleted(m.now().Sub(start))
	}()

	snapshot := m.store.Snapshot()
	chatIDs := make([]int64, 0, len(snapshot))
	for chatID := range snapshot {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })

	for _, chatID := range chatIDs {
		for _, alert := range snapshot[chatID] {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if !alert.NotificationsEnabled {
				continue
			}
			m.evaluate(ctx, chatID, alert, &res)
		}
	}

	if res.Fired > 0 {
		if err := m.store.Save(); err != nil {
			log.WithError(err).Error("could not persist alerts after evaluation")
		}
	}

	switch {
	case res.Checked > 0 && res.Unavailable == res.Checked:
		return res, errors.Errorf("no volume available for any of %d alerts", res.Checked)
	case res.Failed > 0 && res.Fired == 0:
		return res, errors.Errorf("all %d notifications of the pass were rejected", res.Failed)
	}
	return res, nil
}

func (m *Monitor) evaluate(ctx context.Context, chatID int64, alert types.Alert, res *PassResult) {
	logger := log.WithFields(log.Fields{
		"chat_id":  chatID,
		"alert_id": alert.ID,
		"symbol":   alert.Symbol,
		"interval": alert.Interval,
	})

	res.Checked++
	reading := m.fetcher.FetchVolume(ctx, alert.Symbol, alert.Interval)
	m.recorder.VolumeChecked(reading.OK)
	if !reading.OK {
		res.Unavailable++
		return
	}
	volume := reading.Volume

	// Decide against the stored alert, it may have been edited, toggled or
	// deleted while the volume was being fetched.
	var previous int64
	current, fire := m.store.Update(chatID, alert.ID, func(a *types.Alert) bool {
		if !ShouldFire(*a, volume) {
			return false
		}
		previous = a.LastNotified
		a.LastNotified = volume
		return true
	})
	if !fire {
		logger.Debugf("volume %d below threshold or already notified", volume)
		return
	}

	if err := m.notifier.NotifyVolume(ctx, chatID, current, volume); err != nil {
		res.Failed++
		m.recorder.NotificationFailed()
		logger.WithError(err).Error("could not deliver notification")
		// roll back so the next pass retries, unless the alert moved on
		m.store.Update(chatID, alert.ID, func(a *types.Alert) bool {
			if a.LastNotified != volume {
				return false
			}
			a.LastNotified = previous
			return true
		})
		return
	}

	res.Fired++
	m.recorder.NotificationSent()
	logger.WithFields(log.Fields{"volume": volume, "threshold": current.Threshold}).Info("volume alert fired")

	if m.journal == nil {
		return
	}
	err := m.journal.RecordNotification(types.Notification{
		ChatID:    chatID,
		AlertID:   current.ID,
		Symbol:    current.Symbol,
		Interval:  current.Interval,
		Threshold: current.Threshold,
		Volume:    volume,
	})
	if err != nil {
		logger.WithError(err).Warn("could not journal notification")
	}
}

// Run evaluates alerts every Interval until ctx is cancelled. After
// FailureThreshold consecutive failed passes the wait grows exponentially
// up to BackoffMax and resets on the first successful pass. The store is
// saved once more on exit.
func (m *Monitor) Run(ctx context.Context) {
	log.Infof("alert monitor started, checking every %s", m.cfg.Interval)
	defer func() {
		if err := m.store.Save(); err != nil {
			log.WithError(err).Error("could not persist alerts on shutdown")
		}
		log.Info("alert monitor stopped")
	}()

	p := newPacer(m.cfg)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res, err := m.RunPass(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			log.Debugf("evaluation pass done: %+v", res)
		}

		timer.Reset(p.next(err))
	}
}

// pacer decides how long the loop waits before the next pass.
type pacer struct {
	interval  time.Duration
	threshold int
	failures  int
	backoff   *backoff.Backoff
}

func newPacer(cfg Config) *pacer {
	return &pacer{
		interval:  cfg.Interval,
		threshold: cfg.FailureThreshold,
		backoff: &backoff.Backoff{
			Min:    cfg.BackoffMin,
			Max:    cfg.BackoffMax,
			Factor: 2,
		},
	}
}

// next returns the wait following a pass that ended with err.
func (p *pacer) next(err error) time.Duration {
	if err == nil {
		if p.failures > 0 {
			log.Infof("evaluation recovered after %d failed passes", p.failures)
		}
		p.failures = 0
		p.backoff.Reset()
		return p.interval
	}

	p.failures++
	log.WithError(err).Warnf("evaluation pass failed (%d in a row)", p.failures)
	if p.failures < p.threshold {
		return p.interval
	}
	wait := p.backoff.Duration()
	log.Warnf("backing off for %s", wait)
	return wait
}
