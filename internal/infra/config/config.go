package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token   string `envconfig:"TG_BOT_TOKEN"`
		BotName string `envconfig:"TG_BOT_NAME" default:"HollowScan_Bot"`
		AdminID int64  `envconfig:"TG_ADMIN_ID"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AdminKey string `envconfig:"ADMIN_API_KEY"`

	Limits struct {
		FreeViews int `envconfig:"FREE_VIEWS_LIMIT" default:"4"`
		FeedPage  int `envconfig:"FEED_PAGE_SIZE" default:"25"`
	} `envconfig:""`

	Alerts struct {
		PollInterval int    `envconfig:"ALERT_POLL_SECONDS" default:"30"`
		QueueKey     string `envconfig:"ALERT_QUEUE_KEY" default:"alert_jobs"`
		QueueDriver  string `envconfig:"ALERT_QUEUE_DRIVER" default:"redis"`
		AMQPURL      string `envconfig:"ALERT_AMQP_URL"`
	} `envconfig:""`

	Link struct {
		PollSeconds int    `envconfig:"LINK_POLL_SECONDS" default:"3"`
		StatusURL   string `envconfig:"LINK_STATUS_URL"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
