package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ViewChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "view_checks_total",
		Help: "Проверки лимита просмотров по результату",
	}, []string{"result"})

	UsagePersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usage_persist_errors_total",
		Help: "Ошибки сохранения дневного счётчика просмотров",
	})

	LinkPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "link_polls_total",
		Help: "Опросы статуса привязки Telegram",
	})

	PremiumRefreshErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "premium_refresh_errors_total",
		Help: "Ошибки обновления премиум-статуса",
	})

	AlertsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_enqueued_total",
		Help: "Поставленные в очередь уведомления о предложениях",
	})

	AlertSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_send_errors_total",
		Help: "Ошибки отправки уведомлений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ViewChecksTotal,
		UsagePersistErrors,
		LinkPollsTotal,
		PremiumRefreshErrors,
		AlertsEnqueued,
		AlertSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncViewCheck увеличивает счётчик проверок лимита.
func IncViewCheck(result string) {
	ViewChecksTotal.WithLabelValues(result).Inc()
}
