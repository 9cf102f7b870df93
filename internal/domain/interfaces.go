package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается хранилищами, когда запись отсутствует.
var ErrNotFound = errors.New("запись не найдена")

// Clock отдаёт текущее локальное время; подменяется в тестах.
type Clock interface {
	Now() time.Time
}

// KVStore — персистентное key-value хранилище состояния клиента.
// Get возвращает ErrNotFound для отсутствующего ключа.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cache — TTL-хранилище для курсоров и дедупликации.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Session отдаёт данные текущего аккаунта; только чтение.
type Session interface {
	AccountID() int64
	AccountPremium() bool
}

// PremiumChecker сообщает действующий премиум-статус на момент вызова.
type PremiumChecker interface {
	Effective(ctx context.Context) bool
}

// LinkStatusClient запрашивает у сервера статус привязки Telegram.
type LinkStatusClient interface {
	Status(ctx context.Context, userID int64) (PremiumState, error)
}

// UserRepo управляет аккаунтами.
type UserRepo interface {
	Create(ctx context.Context, email, passwordHash string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	UpdateProfile(ctx context.Context, id int64, region, timezone string) error
	SetPremium(ctx context.Context, id int64, premium bool, until *time.Time) error
	SetActive(ctx context.Context, id int64, active bool) error
	List(ctx context.Context, page, limit int, search string) ([]User, int, error)
	CountByPlan(ctx context.Context) (map[string]int, error)
}

// DealRepo управляет предложениями.
type DealRepo interface {
	ListFeed(ctx context.Context, region string, limit, offset int) ([]Deal, error)
	GetByID(ctx context.Context, id int64) (Deal, error)
	ListScrapedAfter(ctx context.Context, cursor time.Time, limit int) ([]Deal, error)
}

// SavedDealRepo управляет сохранёнными предложениями.
type SavedDealRepo interface {
	ListByUser(ctx context.Context, userID int64) ([]SavedDeal, error)
	Save(ctx context.Context, userID int64, deal Deal) error
	Delete(ctx context.Context, userID, dealID int64) error
}

// LinkRepo управляет привязками Telegram.
type LinkRepo interface {
	Link(ctx context.Context, userID, tgUserID int64, username string) error
	GetByUser(ctx context.Context, userID int64) (TelegramLink, error)
	GetByTGUser(ctx context.Context, tgUserID int64) (TelegramLink, error)
	Unlink(ctx context.Context, userID int64) error
}

// SubscriberRepo управляет Telegram-подписками бота.
type SubscriberRepo interface {
	GetExpiry(ctx context.Context, tgUserID int64) (*time.Time, error)
	UpsertExpiry(ctx context.Context, tgUserID int64, username string, expiry time.Time) error
	ListActive(ctx context.Context, now time.Time) ([]int64, error)
}

// CodeRepo управляет кодами активации.
type CodeRepo interface {
	Insert(ctx context.Context, code AccessCode) error
	Redeem(ctx context.Context, code string) (int, error)
}

// AlertQueue — очередь задач на рассылку уведомлений.
type AlertQueue interface {
	Enqueue(ctx context.Context, job AlertJob) error
	Pop(ctx context.Context) (AlertJob, error)
}
