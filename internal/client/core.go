// Package client собирает пользовательское ядро приложения: гейт дневных
// просмотров, премиум-статус и наблюдение за привязкой Telegram. Мобильная
// оболочка работает только с этим фасадом.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
	"hollowscan/internal/usecase/linkwatch"
	"hollowscan/internal/usecase/premium"
	"hollowscan/internal/usecase/saved"
	"hollowscan/internal/usecase/usagegate"
)

// Core — фасад клиентского ядра для одного залогиненного аккаунта.
type Core struct {
	session domain.Session
	status  domain.LinkStatusClient
	botName string
	gate    *usagegate.Gate
	premium *premium.Service
	watcher *linkwatch.Watcher
	saved   *saved.Service
}

// Options настраивают сборку ядра.
type Options struct {
	Store        domain.KVStore
	Clock        domain.Clock
	Session      domain.Session
	Status       domain.LinkStatusClient
	SavedRepo    domain.SavedDealRepo
	FreeLimit    int
	PollInterval time.Duration
	BotName      string
	Logger       zerolog.Logger
}

// New собирает ядро. Премиум-сервис одновременно служит гейту
// проверкой статуса, поэтому создаётся первым.
func New(opts Options) *Core {
	premiumSvc := premium.NewService(opts.Store, opts.Clock, opts.Session, opts.Status, opts.Logger.With().Str("component", "premium").Logger())
	return &Core{
		session: opts.Session,
		status:  opts.Status,
		botName: opts.BotName,
		premium: premiumSvc,
		gate:    usagegate.NewGate(opts.Store, opts.Clock, premiumSvc, opts.FreeLimit, opts.Session.AccountID(), opts.Logger.With().Str("component", "usagegate").Logger()),
		watcher: linkwatch.New(opts.PollInterval, opts.Logger.With().Str("component", "linkwatch").Logger()),
		saved:   saved.NewService(opts.SavedRepo, opts.Store, opts.Logger.With().Str("component", "saved").Logger()),
	}
}

// CheckView проверяет и учитывает просмотр товара.
func (c *Core) CheckView(ctx context.Context, productID string) (usagegate.Decision, error) {
	return c.gate.CheckAndRecordView(ctx, productID)
}

// RemainingViews возвращает остаток дневной квоты; true — безлимит.
func (c *Core) RemainingViews(ctx context.Context) (int, bool) {
	return c.gate.Remaining(ctx)
}

// ResetViews очищает сегодняшний счётчик просмотров.
func (c *Core) ResetViews(ctx context.Context) error {
	return c.gate.ResetToday(ctx)
}

// PremiumState возвращает снимок премиум-статуса.
func (c *Core) PremiumState(ctx context.Context) domain.PremiumState {
	return c.premium.State(ctx)
}

// RefreshPremium перечитывает статус с сервера.
func (c *Core) RefreshPremium(ctx context.Context) error {
	return c.premium.Refresh(ctx)
}

// WatchLink запускает опрос привязки на время фокуса экрана.
// onLinked вызывается после подтверждения; статус при этом обновляется,
// чтобы telegram-премиум вступил в силу без ручного действия.
func (c *Core) WatchLink(ctx context.Context, onLinked func()) {
	c.watcher.Start(ctx, func(ctx context.Context) (bool, error) {
		state, err := c.status.Status(ctx, c.session.AccountID())
		if err != nil {
			return false, err
		}
		return state.TelegramLinked, nil
	}, func() {
		_ = c.premium.Refresh(context.Background())
		if onLinked != nil {
			onLinked()
		}
	})
}

// TelegramLinkURL возвращает диплинк привязки аккаунта к боту.
func (c *Core) TelegramLinkURL() string {
	return fmt.Sprintf("https://t.me/%s?start=link_%d", c.botName, c.session.AccountID())
}

// StopLinkWatch освобождает lease опроса (уход с экрана).
func (c *Core) StopLinkWatch() {
	c.watcher.Stop()
}

// LinkWatchActive сообщает, идёт ли опрос привязки.
func (c *Core) LinkWatchActive() bool {
	return c.watcher.Active()
}

// SavedDeals возвращает сохранённые предложения.
func (c *Core) SavedDeals(ctx context.Context) ([]domain.SavedDeal, error) {
	return c.saved.List(ctx, c.session.AccountID())
}

// ToggleSaved сохраняет или убирает предложение.
func (c *Core) ToggleSaved(ctx context.Context, deal domain.Deal) (bool, error) {
	return c.saved.Toggle(ctx, c.session.AccountID(), deal)
}
