package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/internal/database"
)

const (
	namespace = "mexc"
	subsystem = "volume_bot"
)

// BotMetrics holds every prometheus collector of the bot. Counters survive
// restarts through LoadFromDB and SaveToDB.
type BotMetrics struct {
	CommandsProcessed   prometheus.Counter
	MessagesHandled     prometheus.Counter
	CallbacksHandled    prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	ChatsCount          prometheus.Gauge
	AlertsCount         prometheus.Gauge
	SymbolsCount        prometheus.Gauge
	ChatNames           *prometheus.CounterVec
	MessagesPerChat     *prometheus.CounterVec
	VolumeChecks        *prometheus.CounterVec
	PassDuration        prometheus.Histogram
	ChatsSet            map[int64]string
	Mutex               sync.Mutex
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewBotMetrics creates the collectors and registers them with reg.
func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		CommandsProcessed:   counter("commands_processed", "The total number of processed commands"),
		MessagesHandled:     counter("messages_handled", "The total number of handled messages"),
		CallbacksHandled:    counter("callbacks_handled", "The total number of handled button presses"),
		NotificationsSent:   counter("notifications_sent", "The total number of volume notifications delivered"),
		NotificationsFailed: counter("notifications_failed", "The total number of volume notifications that could not be delivered"),
		ChatsCount:          gauge("chats_count", "The number of unique chats the bot has talked to"),
		AlertsCount:         gauge("alerts_count", "The number of configured alerts"),
		SymbolsCount:        gauge("symbols_count", "The number of tradable futures symbols"),
		ChatNames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "chat_names",
				Help:      "Tracks chats the bot has interacted with",
			},
			[]string{"chat_id", "chat_name"},
		),
		MessagesPerChat: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_per_chat",
				Help:      "The total number of messages handled per chat",
			},
			[]string{"chat_id", "chat_name"},
		),
		VolumeChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "volume_checks",
				Help:      "Volume fetches by outcome",
			},
			[]string{"result"},
		),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evaluation_pass_seconds",
			Help:      "Duration of one alert evaluation pass",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ChatsSet: make(map[int64]string),
	}

	reg.MustRegister(
		m.CommandsProcessed,
		m.MessagesHandled,
		m.CallbacksHandled,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.ChatsCount,
		m.AlertsCount,
		m.SymbolsCount,
		m.ChatNames,
		m.MessagesPerChat,
		m.VolumeChecks,
		m.PassDuration,
	)
	return m
}

// ObserveMessage counts an incoming message and remembers its chat.
func (m *BotMetrics) ObserveMessage(chatID int64, chatName string) {
	m.MessagesHandled.Inc()
	m.MessagesPerChat.WithLabelValues(strconv.FormatInt(chatID, 10), chatName).Inc()
	m.updateChatsSet(chatID, chatName)
}

func (m *BotMetrics) ObserveCallback(chatID int64, chatName string) {
	m.CallbacksHandled.Inc()
	m.updateChatsSet(chatID, chatName)
}

func (m *BotMetrics) ObserveCommand() {
	m.CommandsProcessed.Inc()
}

// SetInventory publishes the current alert and symbol totals.
func (m *BotMetrics) SetInventory(alerts, symbols int) {
	m.AlertsCount.Set(float64(alerts))
	m.SymbolsCount.Set(float64(symbols))
}

// The methods below satisfy monitor.Recorder.

func (m *BotMetrics) PassCompleted(d time.Duration) {
	m.PassDuration.Observe(d.Seconds())
}

func (m *BotMetrics) VolumeChecked(ok bool) {
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	m.VolumeChecks.WithLabelValues(result).Inc()
}

func (m *BotMetrics) NotificationSent() {
	m.NotificationsSent.Inc()
}

func (m *BotMetrics) NotificationFailed() {
	m.NotificationsFailed.Inc()
}

func (m *BotMetrics) updateChatsSet(chatID int64, chatName string) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	if _, exists := m.ChatsSet[chatID]; !exists {
		m.ChatsSet[chatID] = chatName
		m.ChatsCount.Set(float64(len(m.ChatsSet)))
		m.ChatNames.WithLabelValues(strconv.FormatInt(chatID, 10), chatName).Inc()
	}
}

// LoadFromDB restores persisted counter values.
func (m *BotMetrics) LoadFromDB() {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plainCounters() {
		value, err := database.GetMetric(name)
		if err != nil {
			log.WithError(err).Warnf("could not load metric %s", name)
			continue
		}
		c.Add(value)
	}

	loadLabeledMetrics("chat_names", func(chatIDStr, chatName string, _ float64) {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			log.Warnf("failed to parse chat id %s: %v", chatIDStr, err)
			return
		}
		m.ChatNames.WithLabelValues(chatIDStr, chatName).Add(1)
		m.ChatsSet[chatID] = chatName
	})
	m.ChatsCount.Set(float64(len(m.ChatsSet)))

	loadLabeledMetrics("messages_per_chat", func(chatID, chatName string, value float64) {
		m.MessagesPerChat.WithLabelValues(chatID, chatName).Add(value)
	})

	log.Info("metrics loaded from database")
}

func loadLabeledMetrics(metricName string, callback func(labelKey, labelValue string, value float64)) {
	metricsWithLabels, err := database.GetMetricsWithLabels(metricName)
	if err != nil {
		log.WithError(err).Warnf("could not load metric %s", metricName)
		return
	}
	for labelKey, labelValues := range metricsWithLabels {
		for labelValue, value := range labelValues {
			callback(labelKey, labelValue, value)
		}
	}
}

// SaveToDB persists the counters so LoadFromDB can restore them.
func (m *BotMetrics) SaveToDB() {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plainCounters() {
		if err := database.SaveMetric(name, GetMetricValue(c)); err != nil {
			log.WithError(err).Warnf("could not save metric %s", name)
		}
	}

	for chatID, chatName := range m.ChatsSet {
		if err := database.SaveMetricWithLabels("chat_names", strconv.FormatInt(chatID, 10), chatName, 1); err != nil {
			log.WithError(err).Warn("could not save chat names")
		}
	}

	metricChan := make(chan prometheus.Metric)
	go func() {
		m.MessagesPerChat.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Warnf("failed to read messages_per_chat metric: %v", err)
			continue
		}
		var chatID, chatName string
		for _, label := range metricProto.Label {
			switch label.GetName() {
			case "chat_id":
				chatID = label.GetValue()
			case "chat_name":
				chatName = label.GetValue()
			}
		}
		if err := database.SaveMetricWithLabels("messages_per_chat", chatID, chatName, metricProto.Counter.GetValue()); err != nil {
			log.WithError(err).Warn("could not save messages_per_chat")
		}
	}

	log.Debug("metrics saved to database")
}

func (m *BotMetrics) plainCounters() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"commands_processed":   m.CommandsProcessed,
		"messages_handled":     m.MessagesHandled,
		"callbacks_handled":    m.CallbacksHandled,
		"notifications_sent":   m.NotificationsSent,
		"notifications_failed": m.NotificationsFailed,
	}
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Warnf("failed to read metric value: %v", err)
		return 0
	}

	switch {
	case metricProto.Counter != nil:
		return metricProto.Counter.GetValue()
	case metricProto.Gauge != nil:
		return metricProto.Gauge.GetValue()
	}
	return 0
}
