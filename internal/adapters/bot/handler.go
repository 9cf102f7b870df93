package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
	"hollowscan/internal/usecase/access"
)

const linkPayloadPrefix = "link_"

// Handler обслуживает команды Telegram-бота.
type Handler struct {
	bot      *tgbotapi.BotAPI
	log      zerolog.Logger
	links    domain.LinkRepo
	users    domain.UserRepo
	accessUC *access.Service
	adminID  int64
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, links domain.LinkRepo, users domain.UserRepo, accessUC *access.Service, adminID int64) *Handler {
	return &Handler{
		bot:      bot,
		log:      log,
		links:    links,
		users:    users,
		accessUC: accessUC,
		adminID:  adminID,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя")
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
		h.handleStart(ctx, msg, payload)
	case strings.HasPrefix(text, "/status"):
		h.handleStatus(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/redeem"):
		code := strings.TrimSpace(strings.TrimPrefix(text, "/redeem"))
		h.handleRedeem(ctx, msg.Chat.ID, msg.From.ID, msg.From.UserName, code)
	case strings.HasPrefix(text, "/gen"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/gen"))
		h.handleGen(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/unlink"):
		h.handleUnlink(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/help"):
		h.handleHelp(msg.Chat.ID)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

// handleStart завершает привязку аккаунта по диплинку
// t.me/<bot>?start=link_<user_id> или просто приветствует.
func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message, payload string) {
	if !strings.HasPrefix(payload, linkPayloadPrefix) {
		h.reply(msg.Chat.ID, "👋 HollowScan. Уведомления о выгодных предложениях.\n/redeem <КОД> — активировать подписку.\n/help — список команд.")
		return
	}

	userID, err := ParseLinkPayload(payload)
	if err != nil {
		h.reply(msg.Chat.ID, "Некорректная ссылка привязки. Откройте её заново из приложения.")
		return
	}
	if _, err := h.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(msg.Chat.ID, "Аккаунт не найден. Войдите в приложение и повторите привязку.")
			return
		}
		h.reply(msg.Chat.ID, fmt.Sprintf("Ошибка проверки аккаунта: %v", err))
		return
	}
	if err := h.links.Link(ctx, userID, msg.From.ID, msg.From.UserName); err != nil {
		h.reply(msg.Chat.ID, fmt.Sprintf("Не удалось привязать аккаунт: %v", err))
		return
	}
	h.reply(msg.Chat.ID, "✅ Аккаунт привязан! Вернитесь в приложение — статус обновится автоматически.")
}

func (h *Handler) handleStatus(ctx context.Context, chatID, tgUserID int64) {
	expiry, err := h.accessUC.Expiry(ctx, tgUserID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	if expiry == nil || !expiry.After(time.Now()) {
		h.reply(chatID, "❌ Подписка не активна. /redeem <КОД> для активации.")
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ Подписка активна до %s", expiry.Format("02.01.2006 15:04")))
}

func (h *Handler) handleRedeem(ctx context.Context, chatID, tgUserID int64, username, code string) {
	if code == "" {
		h.reply(chatID, "Используйте формат: /redeem <КОД>")
		return
	}
	expiry, err := h.accessUC.Redeem(ctx, tgUserID, username, code)
	if err != nil {
		if errors.Is(err, access.ErrInvalidCode) {
			h.reply(chatID, "❌ Код не найден или уже использован.")
			return
		}
		h.reply(chatID, fmt.Sprintf("Ошибка активации: %v", err))
		return
	}
	h.reply(chatID, fmt.Sprintf("🎉 Подписка активна до %s", expiry.Format("02.01.2006 15:04")))
}

func (h *Handler) handleGen(ctx context.Context, chatID, tgUserID int64, payload string) {
	if h.adminID == 0 || tgUserID != h.adminID {
		return
	}
	days, err := strconv.Atoi(payload)
	if err != nil || days <= 0 {
		h.reply(chatID, "Используйте формат: /gen <дней>")
		return
	}
	code, err := h.accessUC.Generate(ctx, days)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка генерации: %v", err))
		return
	}
	h.reply(chatID, fmt.Sprintf("🔑 Код: %s", code))
}

func (h *Handler) handleUnlink(ctx context.Context, chatID, tgUserID int64) {
	link, err := h.links.GetByTGUser(ctx, tgUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(chatID, "Аккаунт не привязан.")
			return
		}
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	if err := h.links.Unlink(ctx, link.UserID); err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось отвязать: %v", err))
		return
	}
	h.reply(chatID, "Аккаунт отвязан.")
}

func (h *Handler) handleHelp(chatID int64) {
	lines := []string{
		"Команды:",
		"/status — срок действия подписки",
		"/redeem <КОД> — активировать подписку",
		"/unlink — отвязать аккаунт приложения",
	}
	h.reply(chatID, strings.Join(lines, "\n"))
}

func (h *Handler) reply(chatID int64, text string) {
	parts := SplitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// ParseLinkPayload извлекает ID аккаунта из payload диплинка link_<id>.
func ParseLinkPayload(payload string) (int64, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(payload), linkPayloadPrefix)
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("некорректный payload привязки: %q", payload)
	}
	return userID, nil
}
