package domain

import "time"

// DayKeyLayout — формат ключа календарного дня в локальном часовом поясе.
const DayKeyLayout = "2006-01-02"

// DailyUsage хранит просмотры бесплатного тарифа за один локальный день.
// Запись заменяется целиком при смене дня, без переноса остатков.
type DailyUsage struct {
	Date      string   `json:"date"`
	ViewedIDs []string `json:"viewed_ids"`
}

// Seen сообщает, был ли товар уже просмотрен в этот день.
func (u DailyUsage) Seen(productID string) bool {
	for _, id := range u.ViewedIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// PremiumState — кэшируемый снимок премиум-статуса из двух каналов:
// флага аккаунта и синхронизации через Telegram.
type PremiumState struct {
	AccountPremium  bool       `json:"account_premium"`
	TelegramLinked  bool       `json:"telegram_linked"`
	TelegramPremium bool       `json:"telegram_premium"`
	PremiumUntil    *time.Time `json:"premium_until,omitempty"`
}

// EffectiveAt вычисляет действующий премиум на момент времени.
// Флаг аккаунта читается живьём из сессии и действует сам по себе.
// PremiumUntil относится к кэшированному Telegram-каналу: просроченный
// срок гасит Telegram-флаг при каждом чтении, даже если кэш говорит true.
func (s PremiumState) EffectiveAt(now time.Time) bool {
	if s.AccountPremium {
		return true
	}
	if s.PremiumUntil != nil && !s.PremiumUntil.After(now) {
		return false
	}
	return s.TelegramPremium
}
