package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"mexc-volume-bot/config"
	"mexc-volume-bot/internal/commands"
	"mexc-volume-bot/internal/database"
	"mexc-volume-bot/internal/health"
	"mexc-volume-bot/internal/metrics"
	"mexc-volume-bot/internal/mexc"
	"mexc-volume-bot/internal/monitor"
	"mexc-volume-bot/internal/store"
	"mexc-volume-bot/internal/symbols"
	"mexc-volume-bot/internal/telegram"
	"mexc-volume-bot/lib/translation"
)

const saveInterval = 5 * time.Minute

func main() {
	config.InitConfig()
	if err := config.BindFlags(pflag.CommandLine, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
	logFile := setupLogging()
	if logFile != nil {
		defer logFile.Close()
	}
	if err := config.Validate(); err != nil {
		log.Fatal(err)
	}

	translation.Configure("locales", config.GetString("lang"))
	log.Infof("replying in %s", translation.GetLanguage())

	if err := database.InitDB(config.GetString("db_path")); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	botMetrics := metrics.NewBotMetrics(prometheus.DefaultRegisterer)
	botMetrics.LoadFromDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := mexc.NewClient(mexc.Config{
		BaseURL:   config.GetString("mexc_base_url"),
		APIKey:    config.GetString("mexc_api_key"),
		SecretKey: config.GetString("mexc_secret_key"),
		Timeout:   config.GetDuration("http_timeout"),
	})

	universe := symbols.NewUniverse(client)
	universe.Refresh(ctx)
	universe.StartRefresher(ctx, config.GetDuration("symbols_refresh_interval"))

	alerts := store.New(config.GetString("data_file"))
	if err := alerts.Load(); err != nil {
		log.WithError(err).Warnf("starting with an empty alert store, %s will be overwritten", alerts.Path())
	}

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	})
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	dispatcher := telegram.NewDispatcher(bot.API(), telegram.DefaultRate, telegram.DefaultBurst)
	journal := database.NotificationLog{}

	mon := monitor.New(
		monitor.Config{Interval: config.GetDuration("check_interval")},
		alerts,
		client,
		telegram.NewNotifier(dispatcher),
		monitor.WithJournal(journal),
		monitor.WithRecorder(botMetrics),
	)

	router := telegram.NewRouter(telegram.RouterConfig{
		AllowedUserID: config.GetInt64("allowed_user_id"),
		Sender:        dispatcher,
		Store:         alerts,
		Universe:      universe,
		Fetcher:       client,
		Charter:       commands.NewCharter(client, commands.NewChartCache(commands.ChartTTL)),
		History:       journal,
		Observer:      botMetrics,
	})

	server := health.NewServer(config.GetInt("port"), alerts, universe, prometheus.DefaultGatherer)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		router.HandleUpdates(ctx, bot.GetUpdatesChannel())
	}()
	go func() {
		defer wg.Done()
		persistPeriodically(ctx, alerts, universe, botMetrics)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Errorf("Failed to start metrics and health server: %v", err)
		}
	}()

	log.Info("bot started")
	<-ctx.Done()
	log.Info("shutting down...")

	bot.StopReceivingUpdates()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("health server shutdown")
	}

	wg.Wait()
	botMetrics.SaveToDB()
	log.Info("metrics saved, bye")
}

func setupLogging() *os.File {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	var logFile *os.File
	if path := config.GetString("log_file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).Warnf("could not open log file %s, logging to stderr only", path)
		} else {
			log.SetOutput(io.MultiWriter(os.Stderr, f))
			logFile = f
		}
	}

	log.Debug("Starting telegram bot...")
	return logFile
}

// persistPeriodically flushes metrics and alerts every saveInterval.
func persistPeriodically(ctx context.Context, alerts *store.Store, universe *symbols.Universe, m *metrics.BotMetrics) {
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	for {
		_, count := alerts.Counts()
		m.SetInventory(count, universe.Len())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.SaveToDB()
		if err := alerts.Save(); err != nil {
			log.WithError(err).Error("periodic alert save failed")
		}
	}
}
