package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"hollowscan/internal/adapters/bot"
	"hollowscan/internal/adapters/repo"
	"hollowscan/internal/domain"
	"hollowscan/internal/infra/cache"
	"hollowscan/internal/infra/config"
	"hollowscan/internal/infra/db"
	"hollowscan/internal/infra/log"
	"hollowscan/internal/infra/metrics"
	"hollowscan/internal/infra/queue"
	"hollowscan/internal/usecase/alerts"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	dealsRepo := repo.NewDealsPostgres(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	store := cache.NewRedis(redisClient)

	var alertQueue domain.AlertQueue
	switch cfg.Alerts.QueueDriver {
	case "rabbitmq":
		amqpQueue, err := queue.NewAMQPAlertQueue(cfg.Alerts.AMQPURL, cfg.Alerts.QueueKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: нет подключения к RabbitMQ")
		}
		defer amqpQueue.Close()
		alertQueue = amqpQueue
	default:
		alertQueue = queue.NewRedisAlertQueue(redisClient, cfg.Alerts.QueueKey)
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("notifier: неизвестный часовой пояс, используем системный")
		loc = time.Local
	}
	clock := domain.NewLocalClock(loc)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось создать бота")
	}
	sender := bot.NewAlertSender(botAPI, logger.With().Str("component", "sender").Logger())

	svc := alerts.NewService(dealsRepo, repoAdapter, alertQueue, store, clock, sender, logger.With().Str("component", "alerts").Logger())

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	go svc.Run(ctx, time.Duration(cfg.Alerts.PollInterval)*time.Second)

	logger.Info().Msg("notifier запущен")
	if err := svc.Consume(ctx); err != nil {
		logger.Error().Err(err).Msg("notifier: потребитель остановлен с ошибкой")
	}
	logger.Info().Msg("notifier остановлен")
}
