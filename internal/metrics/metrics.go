package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Evaluation metrics
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerbd_evaluations_total",
			Help: "Total segment evaluations by resulting group",
		},
		[]string{"group"},
	)

	// Settlement metrics
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerbd_settlements_total",
			Help: "Total session settlements by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	BudgetMinutesConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kerbd_budget_minutes_consumed_total",
			Help: "Free daily-budget minutes charged at settlement",
		},
	)

	// Scheduler metrics
	DueSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kerbd_due_sessions",
			Help: "Active sessions past their planned end at the last tick",
		},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kerbd_scheduler_tick_duration_seconds",
			Help:    "Auto-stop scheduler tick duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)

func init() {
	prometheus.MustRegister(
		EvaluationsTotal,
		SettlementsTotal,
		BudgetMinutesConsumed,
		DueSessions,
		SchedulerTickDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
