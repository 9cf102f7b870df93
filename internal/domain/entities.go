package domain

import "time"

// User описывает аккаунт пользователя приложения.
type User struct {
	ID              int64
	Email           string
	PasswordHash    string
	Region          string
	Timezone        string
	IsPremium       bool
	SubscriptionEnd *time.Time
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Deal описывает найденное арбитражное предложение.
type Deal struct {
	ID          int64
	ProductID   string
	Title       string
	Store       string
	Price       float64
	ResalePrice float64
	MarginPct   float64
	URL         string
	ImageURL    string
	ScrapedAt   time.Time
	CreatedAt   time.Time
}

// SavedDeal хранит сохранённое пользователем предложение.
type SavedDeal struct {
	ID      int64
	UserID  int64
	DealID  int64
	SavedAt time.Time
	Deal    Deal
}

// TelegramLink хранит подтверждённую привязку аккаунта к Telegram.
type TelegramLink struct {
	UserID   int64
	TGUserID int64
	Username string
	LinkedAt time.Time
}

// BotSubscriber описывает Telegram-подписку с датой окончания.
type BotSubscriber struct {
	TGUserID int64
	Username string
	Expiry   time.Time
}

// AccessCode — одноразовый код активации подписки на заданное число дней.
type AccessCode struct {
	Code      string
	Days      int
	CreatedAt time.Time
}

// AlertJob — задача на рассылку уведомления о предложении.
type AlertJob struct {
	ID     string `json:"id"`
	DealID int64  `json:"deal_id"`
}
