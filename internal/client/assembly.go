package client

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hollowscan/internal/adapters/statusclient"
	"hollowscan/internal/domain"
	"hollowscan/internal/infra/config"
)

// NewFromConfig собирает ядро по конфигурации приложения: HTTP-клиент
// статуса по LINK_STATUS_URL, период опроса привязки, дневной лимит
// просмотров и имя бота для диплинка.
func NewFromConfig(cfg config.AppConfig, session domain.Session, store domain.KVStore, savedRepo domain.SavedDealRepo, logger zerolog.Logger) (*Core, error) {
	status, err := statusclient.New(cfg.Link.StatusURL)
	if err != nil {
		return nil, fmt.Errorf("клиент статуса: %w", err)
	}
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("client: неизвестный часовой пояс, используем системный")
		loc = time.Local
	}
	return New(Options{
		Store:        store,
		Clock:        domain.NewLocalClock(loc),
		Session:      session,
		Status:       status,
		SavedRepo:    savedRepo,
		FreeLimit:    cfg.Limits.FreeViews,
		PollInterval: time.Duration(cfg.Link.PollSeconds) * time.Second,
		BotName:      cfg.Telegram.BotName,
		Logger:       logger,
	}), nil
}
