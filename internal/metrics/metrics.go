package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_sessions_started_total",
			Help: "Total device sessions started",
		},
		[]string{"category"},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_sessions_ended_total",
			Help: "Total device sessions logged, including quick adds",
		},
		[]string{"category", "kind"},
	)

	SessionsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeledger_sessions_cancelled_total",
			Help: "Total device sessions cancelled without deduction",
		},
	)

	SessionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_sessions_rejected_total",
			Help: "Session starts refused",
		},
		[]string{"reason"},
	)

	// Usage metrics
	DeviceMinutesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_device_minutes_consumed_total",
			Help: "Total device minutes deducted",
		},
		[]string{"category"},
	)

	OverageMinutes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeledger_overage_minutes_total",
			Help: "Minutes logged beyond the remaining allowance",
		},
	)

	BonusMinutesEarned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_bonus_minutes_earned_total",
			Help: "Bonus minutes earned from logged activities",
		},
		[]string{"activity"},
	)

	ActivityMinutesLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_activity_minutes_logged_total",
			Help: "Minutes of bonus activity logged",
		},
		[]string{"activity"},
	)

	// Limits metrics
	LimitsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_limits_resolved_total",
			Help: "Limits resolutions by source",
		},
		[]string{"source"},
	)

	// Sync metrics
	SyncAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_sync_attempts_total",
			Help: "Sync attempts by result",
		},
		[]string{"result"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timeledger_sync_duration_seconds",
			Help:    "Duration of sync attempts in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	SyncQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeledger_sync_queue_dropped_total",
			Help: "Background sync requests dropped because one was already pending",
		},
	)

	MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_merges_total",
			Help: "Ledger merges by branch",
		},
		[]string{"branch"},
	)

	// Parent metrics
	ParentActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeledger_parent_actions_total",
			Help: "Parent actions applied by kind",
		},
		[]string{"kind"},
	)

	HistoryDaysPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeledger_history_days_pruned_total",
			Help: "Archived days removed by retention",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SessionsStarted,
		SessionsEnded,
		SessionsCancelled,
		SessionsRejected,
		DeviceMinutesConsumed,
		OverageMinutes,
		BonusMinutesEarned,
		ActivityMinutesLogged,
		LimitsResolved,
		SyncAttempts,
		SyncDuration,
		SyncQueueDropped,
		MergesTotal,
		ParentActions,
		HistoryDaysPruned,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. health reports readiness for
// /health; nil means always healthy.
func NewServer(addr string, health func() error, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
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

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
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
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
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
