package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"mexc-volume-bot/lib/helpers"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const serviceName = "mexc-volume-bot"

// AlertCounter reports the number of chats with alerts and the alert total.
type AlertCounter interface {
	Counts() (chats, alerts int)
}

// SymbolCounter reports the size of the symbol universe and when it was
// last loaded.
type SymbolCounter interface {
	Len() int
	UpdatedAt() time.Time
}

type Status struct {
	Status      string  `json:"status"`
	Service     string  `json:"service"`
	Uptime      float64 `json:"uptime"`
	UptimeHuman string  `json:"uptime_human"`
	Chats       int     `json:"chats"`
	Alerts      int     `json:"alerts"`
	Symbols     int     `json:"symbols"`

	// SymbolsUpdatedAt is empty until the universe has been loaded.
	SymbolsUpdatedAt string `json:"symbols_updated_at,omitempty"`
}

// Server exposes liveness and prometheus metrics over HTTP.
type Server struct {
	started  time.Time
	now      func() time.Time
	alerts   AlertCounter
	symbols  SymbolCounter
	gatherer prometheus.Gatherer
	srv      *http.Server
}

func NewServer(port int, alerts AlertCounter, symbols SymbolCounter, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		started:  time.Now(),
		now:      time.Now,
		alerts:   alerts,
		symbols:  symbols,
		gatherer: gatherer,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", s.healthCheckHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

func (s *Server) Status() Status {
	chats, alerts := s.alerts.Counts()
	now := s.now()
	status := Status{
		Status:      "ok",
		Service:     serviceName,
		Uptime:      now.Sub(s.started).Seconds(),
		UptimeHuman: helpers.FormatUptime(s.started, now),
		Chats:       chats,
		Alerts:      alerts,
		Symbols:     s.symbols.Len(),
	}
	if updated := s.symbols.UpdatedAt(); !updated.IsZero() {
		status.SymbolsUpdatedAt = updated.UTC().Format(time.RFC3339)
	}
	return status
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(s.Status())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	log.Infof("launching metrics and health endpoint on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "health server failed")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
