package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo       = (*Postgres)(nil)
	_ domain.LinkRepo       = (*Postgres)(nil)
	_ domain.SubscriberRepo = (*Postgres)(nil)
	_ domain.CodeRepo       = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const userColumns = `id, email, password_hash, region, tz, is_premium, subscription_end, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u      domain.User
		region sql.NullString
		tz     sql.NullString
		subEnd sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &region, &tz, &u.IsPremium, &subEnd, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	if region.Valid {
		u.Region = region.String
	}
	if tz.Valid {
		u.Timezone = tz.String
	}
	if subEnd.Valid {
		ts := subEnd.Time
		u.SubscriptionEnd = &ts
	}
	return u, nil
}

// Create регистрирует новый аккаунт.
func (p *Postgres) Create(ctx context.Context, email, passwordHash string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash)
VALUES (lower($1), $2)
RETURNING `+userColumns+`
`, strings.TrimSpace(email), passwordHash)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_insert", "users", start, err)
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.User{}, fmt.Errorf("email уже зарегистрирован")
	}
	return user, err
}

// GetByEmail возвращает аккаунт по email.
func (p *Postgres) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=lower($1)`, strings.TrimSpace(email))
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_email", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return user, err
}

// GetByID возвращает аккаунт по ID.
func (p *Postgres) GetByID(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_id", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return user, err
}

// UpdateProfile обновляет регион и часовой пояс аккаунта.
func (p *Postgres) UpdateProfile(ctx context.Context, id int64, region, timezone string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE users SET region=NULLIF($2,''), tz=NULLIF($3,''), updated_at=now() WHERE id=$1
`, id, strings.TrimSpace(region), strings.TrimSpace(timezone))
	metrics.ObserveNetworkRequest("postgres", "users_update_profile", "users", start, err)
	return err
}

// SetPremium выставляет премиум-статус и срок подписки.
func (p *Postgres) SetPremium(ctx context.Context, id int64, premium bool, until *time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var untilArg sql.NullTime
	if until != nil {
		untilArg = sql.NullTime{Time: *until, Valid: true}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE users SET is_premium=$2, subscription_end=$3, updated_at=now() WHERE id=$1
`, id, premium, untilArg)
	metrics.ObserveNetworkRequest("postgres", "users_set_premium", "users", start, err)
	return err
}

// SetActive включает или блокирует аккаунт.
func (p *Postgres) SetActive(ctx context.Context, id int64, active bool) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET is_active=$2, updated_at=now() WHERE id=$1`, id, active)
	metrics.ObserveNetworkRequest("postgres", "users_set_active", "users", start, err)
	return err
}

// List возвращает страницу аккаунтов с фильтром по email и общее число.
func (p *Postgres) List(ctx context.Context, page, limit int, search string) ([]domain.User, int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.TrimSpace(search) + "%"

	var total int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email ILIKE $1`, pattern).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "users_count", "users", start, err)
	if err != nil {
		return nil, 0, err
	}

	start = time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+userColumns+` FROM users
WHERE email ILIKE $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, pattern, limit, (page-1)*limit)
	metrics.ObserveNetworkRequest("postgres", "users_list", "users", start, err)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// CountByPlan считает аккаунты по тарифам для аналитики.
func (p *Postgres) CountByPlan(ctx context.Context) (map[string]int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT CASE WHEN is_premium THEN 'premium' ELSE 'free' END AS plan, COUNT(*)
FROM users
GROUP BY plan
`)
	metrics.ObserveNetworkRequest("postgres", "users_count_by_plan", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			plan  string
			count int
		)
		if err := rows.Scan(&plan, &count); err != nil {
			return nil, err
		}
		counts[plan] = count
	}
	return counts, rows.Err()
}

// Link сохраняет привязку аккаунта к Telegram, перезаписывая старую.
func (p *Postgres) Link(ctx context.Context, userID, tgUserID int64, username string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO telegram_links (user_id, tg_user_id, username)
VALUES ($1,$2,NULLIF($3,''))
ON CONFLICT (user_id) DO UPDATE SET tg_user_id=EXCLUDED.tg_user_id, username=EXCLUDED.username, linked_at=now()
`, userID, tgUserID, strings.TrimSpace(username))
	metrics.ObserveNetworkRequest("postgres", "telegram_links_upsert", "telegram_links", start, err)
	return err
}

func scanLink(row pgx.Row) (domain.TelegramLink, error) {
	var (
		link     domain.TelegramLink
		username sql.NullString
	)
	err := row.Scan(&link.UserID, &link.TGUserID, &username, &link.LinkedAt)
	if err != nil {
		return domain.TelegramLink{}, err
	}
	if username.Valid {
		link.Username = username.String
	}
	return link, nil
}

// GetByUser возвращает привязку по ID аккаунта.
func (p *Postgres) GetByUser(ctx context.Context, userID int64) (domain.TelegramLink, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	link, err := scanLink(p.pool.QueryRow(ctx, `
SELECT user_id, tg_user_id, username, linked_at FROM telegram_links WHERE user_id=$1
`, userID))
	metrics.ObserveNetworkRequest("postgres", "telegram_links_get_by_user", "telegram_links", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TelegramLink{}, domain.ErrNotFound
	}
	return link, err
}

// GetByTGUser возвращает привязку по Telegram ID.
func (p *Postgres) GetByTGUser(ctx context.Context, tgUserID int64) (domain.TelegramLink, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	link, err := scanLink(p.pool.QueryRow(ctx, `
SELECT user_id, tg_user_id, username, linked_at FROM telegram_links WHERE tg_user_id=$1
`, tgUserID))
	metrics.ObserveNetworkRequest("postgres", "telegram_links_get_by_tg_user", "telegram_links", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TelegramLink{}, domain.ErrNotFound
	}
	return link, err
}

// Unlink удаляет привязку аккаунта.
func (p *Postgres) Unlink(ctx context.Context, userID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM telegram_links WHERE user_id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "telegram_links_delete", "telegram_links", start, err)
	return err
}

// GetExpiry возвращает срок подписки Telegram-подписчика.
func (p *Postgres) GetExpiry(ctx context.Context, tgUserID int64) (*time.Time, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var expiry time.Time
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT expiry FROM bot_subscribers WHERE tg_user_id=$1`, tgUserID).Scan(&expiry)
	metrics.ObserveNetworkRequest("postgres", "bot_subscribers_get_expiry", "bot_subscribers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &expiry, nil
}

// UpsertExpiry сохраняет подписчика и срок его подписки.
func (p *Postgres) UpsertExpiry(ctx context.Context, tgUserID int64, username string, expiry time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO bot_subscribers (tg_user_id, username, expiry)
VALUES ($1,NULLIF($2,''),$3)
ON CONFLICT (tg_user_id) DO UPDATE SET username=COALESCE(EXCLUDED.username, bot_subscribers.username), expiry=EXCLUDED.expiry
`, tgUserID, strings.TrimSpace(username), expiry)
	metrics.ObserveNetworkRequest("postgres", "bot_subscribers_upsert", "bot_subscribers", start, err)
	return err
}

// ListActive возвращает подписчиков с действующей подпиской.
func (p *Postgres) ListActive(ctx context.Context, now time.Time) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT tg_user_id FROM bot_subscribers WHERE expiry > $1`, now)
	metrics.ObserveNetworkRequest("postgres", "bot_subscribers_list_active", "bot_subscribers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Insert сохраняет код активации.
func (p *Postgres) Insert(ctx context.Context, code domain.AccessCode) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO access_codes (code, days) VALUES ($1,$2)
`, code.Code, code.Days)
	metrics.ObserveNetworkRequest("postgres", "access_codes_insert", "access_codes", start, err)
	return err
}

// Redeem атомарно гасит код и возвращает число дней подписки.
func (p *Postgres) Redeem(ctx context.Context, code string) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var days int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE access_codes SET redeemed_at=now()
WHERE code=$1 AND redeemed_at IS NULL
RETURNING days
`, code).Scan(&days)
	metrics.ObserveNetworkRequest("postgres", "access_codes_redeem", "access_codes", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return days, err
}
