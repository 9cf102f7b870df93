package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

// DealsPostgres реализует репозитории предложений на основе pgxpool.
// Вынесен в отдельный тип, чтобы развести одноимённые методы с Postgres.
type DealsPostgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.DealRepo      = (*DealsPostgres)(nil)
	_ domain.SavedDealRepo = (*DealsPostgres)(nil)
)

// NewDealsPostgres создаёт адаптер БД для предложений.
func NewDealsPostgres(pool *pgxpool.Pool) *DealsPostgres {
	return &DealsPostgres{pool: pool}
}

func (p *DealsPostgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const dealColumns = `id, product_id, title, store, price, resale_price, margin_pct, url, image_url, scraped_at, created_at`

func scanDeal(row pgx.Row) (domain.Deal, error) {
	var (
		d        domain.Deal
		imageURL sql.NullString
	)
	err := row.Scan(&d.ID, &d.ProductID, &d.Title, &d.Store, &d.Price, &d.ResalePrice, &d.MarginPct, &d.URL, &imageURL, &d.ScrapedAt, &d.CreatedAt)
	if err != nil {
		return domain.Deal{}, err
	}
	if imageURL.Valid {
		d.ImageURL = imageURL.String
	}
	return d, nil
}

// ListFeed возвращает ленту предложений, свежие сверху.
func (p *DealsPostgres) ListFeed(ctx context.Context, region string, limit, offset int) ([]domain.Deal, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 25
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+dealColumns+` FROM deals
WHERE $1 = '' OR region = $1
ORDER BY scraped_at DESC
LIMIT $2 OFFSET $3
`, strings.TrimSpace(region), limit, offset)
	metrics.ObserveNetworkRequest("postgres", "deals_list_feed", "deals", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// GetByID возвращает предложение по ID.
func (p *DealsPostgres) GetByID(ctx context.Context, id int64) (domain.Deal, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	deal, err := scanDeal(p.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "deals_get_by_id", "deals", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, domain.ErrNotFound
	}
	return deal, err
}

// ListScrapedAfter возвращает предложения новее курсора в порядке добавления.
func (p *DealsPostgres) ListScrapedAfter(ctx context.Context, cursor time.Time, limit int) ([]domain.Deal, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+dealColumns+` FROM deals
WHERE scraped_at > $1
ORDER BY scraped_at ASC
LIMIT $2
`, cursor, limit)
	metrics.ObserveNetworkRequest("postgres", "deals_list_scraped_after", "deals", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// ListByUser возвращает сохранённые предложения пользователя.
func (p *DealsPostgres) ListByUser(ctx context.Context, userID int64) ([]domain.SavedDeal, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT sd.id, sd.user_id, sd.deal_id, sd.saved_at,
       d.id, d.product_id, d.title, d.store, d.price, d.resale_price, d.margin_pct, d.url, d.image_url, d.scraped_at, d.created_at
FROM saved_deals sd JOIN deals d ON d.id = sd.deal_id
WHERE sd.user_id=$1
ORDER BY sd.saved_at DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "saved_deals_list", "saved_deals", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var saved []domain.SavedDeal
	for rows.Next() {
		var (
			sd       domain.SavedDeal
			imageURL sql.NullString
		)
		if err := rows.Scan(&sd.ID, &sd.UserID, &sd.DealID, &sd.SavedAt,
			&sd.Deal.ID, &sd.Deal.ProductID, &sd.Deal.Title, &sd.Deal.Store, &sd.Deal.Price, &sd.Deal.ResalePrice, &sd.Deal.MarginPct, &sd.Deal.URL, &imageURL, &sd.Deal.ScrapedAt, &sd.Deal.CreatedAt); err != nil {
			return nil, err
		}
		if imageURL.Valid {
			sd.Deal.ImageURL = imageURL.String
		}
		saved = append(saved, sd)
	}
	return saved, rows.Err()
}

// Save сохраняет предложение для пользователя, повтор не является ошибкой.
func (p *DealsPostgres) Save(ctx context.Context, userID int64, deal domain.Deal) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO saved_deals (user_id, deal_id)
VALUES ($1,$2)
ON CONFLICT (user_id, deal_id) DO NOTHING
`, userID, deal.ID)
	metrics.ObserveNetworkRequest("postgres", "saved_deals_insert", "saved_deals", start, err)
	return err
}

// Delete удаляет сохранённое предложение.
func (p *DealsPostgres) Delete(ctx context.Context, userID, dealID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM saved_deals WHERE user_id=$1 AND deal_id=$2`, userID, dealID)
	metrics.ObserveNetworkRequest("postgres", "saved_deals_delete", "saved_deals", start, err)
	return err
}
