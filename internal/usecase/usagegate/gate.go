package usagegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

// ErrEmptyProductID возвращается при пустом идентификаторе товара.
var ErrEmptyProductID = errors.New("пустой идентификатор товара")

// DefaultFreeLimit — число разных товаров в день на бесплатном тарифе.
const DefaultFreeLimit = 4

// Decision — результат проверки просмотра.
type Decision struct {
	Allowed   bool
	Remaining int
	Unlimited bool
}

// Gate решает, разрешён ли просмотр товара, и ведёт дневной счётчик.
// Все зависимости передаются явно, что позволяет детерминированные тесты.
type Gate struct {
	store   domain.KVStore
	clock   domain.Clock
	premium domain.PremiumChecker
	limit   int
	key     string
	log     zerolog.Logger
}

// NewGate создаёт гейт для одного аккаунта.
func NewGate(store domain.KVStore, clock domain.Clock, premium domain.PremiumChecker, limit int, accountID int64, log zerolog.Logger) *Gate {
	if limit <= 0 {
		limit = DefaultFreeLimit
	}
	return &Gate{
		store:   store,
		clock:   clock,
		premium: premium,
		limit:   limit,
		key:     fmt.Sprintf("daily_views:%d", accountID),
		log:     log,
	}
}

// CheckAndRecordView проверяет лимит и учитывает просмотр товара.
// Премиум проходит без учёта. Повторный просмотр того же товара разрешён
// и не расходует квоту. Любая ошибка хранилища трактуется как разрешение:
// блокировать просмотр из-за сбоя записи хуже лишнего бесплатного показа.
func (g *Gate) CheckAndRecordView(ctx context.Context, productID string) (Decision, error) {
	if strings.TrimSpace(productID) == "" {
		return Decision{}, ErrEmptyProductID
	}
	if g.premium.Effective(ctx) {
		metrics.IncViewCheck("unlimited")
		return Decision{Allowed: true, Unlimited: true}, nil
	}

	usage := g.loadToday(ctx)
	if usage.Seen(productID) {
		metrics.IncViewCheck("repeat")
		return Decision{Allowed: true, Remaining: g.remaining(usage)}, nil
	}
	if len(usage.ViewedIDs) >= g.limit {
		metrics.IncViewCheck("denied")
		return Decision{Allowed: false, Remaining: 0}, nil
	}

	usage.ViewedIDs = append(usage.ViewedIDs, productID)
	if err := g.persist(ctx, usage); err != nil {
		metrics.UsagePersistErrors.Inc()
		g.log.Warn().Err(err).Str("product", productID).Msg("usagegate: счётчик не сохранён, просмотр разрешён")
	}
	metrics.IncViewCheck("allowed")
	return Decision{Allowed: true, Remaining: g.remaining(usage)}, nil
}

// Remaining возвращает остаток квоты на сегодня, ничего не записывая.
// Второе значение true означает безлимит (премиум).
func (g *Gate) Remaining(ctx context.Context) (int, bool) {
	if g.premium.Effective(ctx) {
		return 0, true
	}
	return g.remaining(g.loadToday(ctx)), false
}

// ResetToday принудительно очищает сегодняшний список просмотров.
func (g *Gate) ResetToday(ctx context.Context) error {
	fresh := domain.DailyUsage{Date: g.dayKey()}
	return g.persist(ctx, fresh)
}

func (g *Gate) dayKey() string {
	return g.clock.Now().Format(domain.DayKeyLayout)
}

func (g *Gate) remaining(usage domain.DailyUsage) int {
	left := g.limit - len(usage.ViewedIDs)
	if left < 0 {
		return 0
	}
	return left
}

// loadToday читает дневную запись, заменяя её свежей при смене дня.
// Ошибка чтения и битый JSON равнозначны отсутствию записи.
func (g *Gate) loadToday(ctx context.Context) domain.DailyUsage {
	today := g.dayKey()
	fresh := domain.DailyUsage{Date: today}

	raw, err := g.store.Get(ctx, g.key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			g.log.Warn().Err(err).Msg("usagegate: ошибка чтения счётчика, считаем день пустым")
		}
		return fresh
	}
	var usage domain.DailyUsage
	if err := json.Unmarshal(raw, &usage); err != nil {
		g.log.Warn().Err(err).Msg("usagegate: повреждённая запись счётчика, сбрасываем")
		return fresh
	}
	if usage.Date != today {
		return fresh
	}
	return usage
}

func (g *Gate) persist(ctx context.Context, usage domain.DailyUsage) error {
	raw, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("кодирование счётчика: %w", err)
	}
	if err := g.store.Set(ctx, g.key, raw); err != nil {
		return fmt.Errorf("сохранение счётчика: %w", err)
	}
	return nil
}
