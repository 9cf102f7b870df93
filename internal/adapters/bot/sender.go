package bot

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

// AlertSender доставляет уведомления о предложениях через Bot API.
type AlertSender struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// NewAlertSender создаёт отправителя.
func NewAlertSender(bot *tgbotapi.BotAPI, log zerolog.Logger) *AlertSender {
	return &AlertSender{bot: bot, log: log}
}

// SendAlert отправляет уведомление одному подписчику. Текст режется по
// лимиту Telegram, картинка уходит отдельным сообщением, её сбой не
// считается сбоем доставки.
func (s *AlertSender) SendAlert(ctx context.Context, tgUserID int64, deal domain.Deal) error {
	text := FormatDealAlert(deal)
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(tgUserID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_alert", strconv.FormatInt(tgUserID, 10), start, err)
		if err != nil {
			return err
		}
	}

	if deal.ImageURL != "" {
		photo := tgbotapi.NewPhoto(tgUserID, tgbotapi.FileURL(deal.ImageURL))
		if _, err := s.bot.Send(photo); err != nil {
			s.log.Warn().Err(err).Int64("tg_user", tgUserID).Msg("не удалось отправить изображение")
		}
	}
	return nil
}
