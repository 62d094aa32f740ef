package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WithdrawalTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "washpay_withdrawal_transitions_total",
		Help: "Committed withdrawal status transitions by target status",
	}, []string{"status"})

	SettlementCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "washpay_settlement_calls_total",
		Help: "Calls to the settlement processor by operation and outcome",
	}, []string{"operation", "outcome"})

	SettlementEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "washpay_settlement_events_total",
		Help: "Inbound settlement events by type and outcome",
	}, []string{"type", "outcome"})

	SweeperResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "washpay_sweeper_withdrawals_total",
		Help: "Stuck withdrawals examined by the sweeper by outcome",
	}, []string{"outcome"})

	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "washpay_notification_failures_total",
		Help: "Lifecycle notifications that failed to publish",
	})
)

// Register all collectors on the registerer
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		WithdrawalTransitions,
		SettlementCalls,
		SettlementEvents,
		SweeperResolved,
		NotificationFailures,
	} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

type HealthFunc func(ctx context.Context) error

// Server exposing /metrics and /healthz
func NewServer(addr string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
