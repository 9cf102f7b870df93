package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"hollowscan/internal/adapters/repo"
	"hollowscan/internal/domain"
	"hollowscan/internal/infra/cache"
	"hollowscan/internal/infra/config"
	"hollowscan/internal/infra/db"
	httpinfra "hollowscan/internal/infra/http"
	"hollowscan/internal/infra/log"
	"hollowscan/internal/infra/metrics"
	"hollowscan/internal/usecase/saved"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type savedDealRequest struct {
	UserID int64 `json:"user_id"`
	DealID int64 `json:"deal_id"`
}

type subscriptionRequest struct {
	UserID  int64      `json:"user_id"`
	Premium bool       `json:"premium"`
	Until   *time.Time `json:"until"`
}

type userStatusRequest struct {
	UserID int64 `json:"user_id"`
	Active bool  `json:"active"`
}

type apiUser struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Region          string     `json:"region,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
	IsPremium       bool       `json:"is_premium"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
}

type apiDeal struct {
	ID          int64     `json:"id"`
	ProductID   string    `json:"product_id"`
	Title       string    `json:"title"`
	Store       string    `json:"store"`
	Price       float64   `json:"price"`
	ResalePrice float64   `json:"resale_price"`
	MarginPct   float64   `json:"margin_pct"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

func toAPIUser(u domain.User) apiUser {
	return apiUser{
		ID:              u.ID,
		Email:           u.Email,
		Region:          u.Region,
		Timezone:        u.Timezone,
		IsPremium:       u.IsPremium,
		SubscriptionEnd: u.SubscriptionEnd,
		IsActive:        u.IsActive,
		CreatedAt:       u.CreatedAt,
	}
}

func toAPIDeal(d domain.Deal) apiDeal {
	return apiDeal{
		ID:          d.ID,
		ProductID:   d.ProductID,
		Title:       d.Title,
		Store:       d.Store,
		Price:       d.Price,
		ResalePrice: d.ResalePrice,
		MarginPct:   d.MarginPct,
		URL:         d.URL,
		ImageURL:    d.ImageURL,
		ScrapedAt:   d.ScrapedAt,
	}
}

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	dealsRepo := repo.NewDealsPostgres(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	store := cache.NewRedis(redisClient)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("api: неизвестный часовой пояс, используем системный")
		loc = time.Local
	}
	clock := domain.NewLocalClock(loc)

	savedSvc := saved.NewService(dealsRepo, store, logger.With().Str("component", "saved").Logger())

	srv := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	r := srv.Router

	r.Post("/v1/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		email := strings.TrimSpace(req.Email)
		if email == "" || len(req.Password) < 8 {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "нужен email и пароль не короче 8 символов")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "не удалось обработать пароль")
			return
		}
		user, err := repoAdapter.Create(r.Context(), email, string(hash))
		if err != nil {
			logger.Warn().Err(err).Str("email", email).Msg("api: регистрация не удалась")
			httpinfra.WriteDetail(w, http.StatusConflict, "регистрация не удалась")
			return
		}
		httpinfra.WriteJSON(w, map[string]any{"success": true, "user": toAPIUser(user)})
	})

	r.Post("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		user, err := repoAdapter.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
		if err != nil {
			httpinfra.WriteDetail(w, http.StatusUnauthorized, "неверный email или пароль")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			httpinfra.WriteDetail(w, http.StatusUnauthorized, "неверный email или пароль")
			return
		}
		if !user.IsActive {
			httpinfra.WriteDetail(w, http.StatusForbidden, "аккаунт заблокирован")
			return
		}
		httpinfra.WriteJSON(w, map[string]any{"success": true, "user": toAPIUser(user)})
	})

	r.Get("/v1/deals/feed", func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		if page < 1 {
			page = 1
		}
		region := r.URL.Query().Get("region")
		deals, err := dealsRepo.ListFeed(r.Context(), region, cfg.Limits.FeedPage, (page-1)*cfg.Limits.FeedPage)
		if err != nil {
			logger.Error().Err(err).Msg("api: лента не загрузилась")
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "лента недоступна")
			return
		}
		out := make([]apiDeal, 0, len(deals))
		for _, d := range deals {
			out = append(out, toAPIDeal(d))
		}
		httpinfra.WriteJSON(w, map[string]any{"success": true, "deals": out, "page": page})
	})

	r.Get("/v1/deals/saved", func(w http.ResponseWriter, r *http.Request) {
		userID := queryInt64(r, "user_id")
		if userID <= 0 {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "нужен user_id")
			return
		}
		list, err := savedSvc.List(r.Context(), userID)
		if err != nil {
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "сохранённые недоступны")
			return
		}
		out := make([]apiDeal, 0, len(list))
		for _, sd := range list {
			out = append(out, toAPIDeal(sd.Deal))
		}
		httpinfra.WriteJSON(w, map[string]any{"success": true, "deals": out})
	})

	r.Post("/v1/deals/saved", func(w http.ResponseWriter, r *http.Request) {
		var req savedDealRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 || req.DealID <= 0 {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "нужны user_id и deal_id")
			return
		}
		deal, err := dealsRepo.GetByID(r.Context(), req.DealID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				httpinfra.WriteDetail(w, http.StatusNotFound, "предложение не найдено")
				return
			}
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "предложение недоступно")
			return
		}
		nowSaved, err := savedSvc.Toggle(r.Context(), req.UserID, deal)
		if err != nil {
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "операция не удалась")
			return
		}
		httpinfra.WriteJSON(w, map[string]any{"success": true, "saved": nowSaved})
	})

	r.Delete("/v1/deals/saved/{dealID}", func(w http.ResponseWriter, r *http.Request) {
		userID := queryInt64(r, "user_id")
		dealID, _ := strconv.ParseInt(chi.URLParam(r, "dealID"), 10, 64)
		if userID <= 0 || dealID <= 0 {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "нужны user_id и deal_id")
			return
		}
		if !savedSvc.IsSaved(r.Context(), userID, dealID) {
			httpinfra.WriteJSON(w, map[string]any{"success": true, "saved": false})
			return
		}
		if _, err := savedSvc.Toggle(r.Context(), userID, domain.Deal{ID: dealID}); err != nil {
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "операция не удалась")
			return
		}
		httpinfra.WriteJSON(w, map[string]any{"success": true, "saved": false})
	})

	r.Get("/v1/users/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if userID <= 0 {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "некорректный id")
			return
		}
		user, err := repoAdapter.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				httpinfra.WriteDetail(w, http.StatusNotFound, "пользователь не найден")
				return
			}
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "статус недоступен")
			return
		}

		linked := false
		var tgExpiry *time.Time
		link, err := repoAdapter.GetByUser(r.Context(), userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "статус недоступен")
			return
		}
		if err == nil {
			linked = true
			tgExpiry, err = repoAdapter.GetExpiry(r.Context(), link.TGUserID)
			if err != nil {
				httpinfra.WriteDetail(w, http.StatusInternalServerError, "статус недоступен")
				return
			}
		}
		telegramPremium, premiumUntil := premiumUntilFor(user, tgExpiry, clock.Now())

		httpinfra.WriteJSON(w, map[string]any{
			"success":          true,
			"account_premium":  user.IsPremium,
			"telegram_linked":  linked,
			"telegram_premium": telegramPremium,
			"premium_until":    premiumUntil,
		})
	})

	r.Post("/v1/users/{id}/telegram/unlink", func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if userID <= 0 {
			httpinfra.WriteDetail(w, http.StatusBadRequest, "некорректный id")
			return
		}
		if err := repoAdapter.Unlink(r.Context(), userID); err != nil {
			httpinfra.WriteDetail(w, http.StatusInternalServerError, "отвязка не удалась")
			return
		}
		httpinfra.WriteJSON(w, map[string]any{"success": true})
	})

	r.Route("/v1/admin", func(admin chi.Router) {
		admin.Use(httpinfra.AdminKeyMiddleware(cfg.AdminKey))

		admin.Get("/users", func(w http.ResponseWriter, r *http.Request) {
			page := queryInt(r, "page", 1)
			limit := queryInt(r, "limit", 50)
			search := r.URL.Query().Get("search")
			users, total, err := repoAdapter.List(r.Context(), page, limit, search)
			if err != nil {
				httpinfra.WriteDetail(w, http.StatusInternalServerError, "список недоступен")
				return
			}
			out := make([]apiUser, 0, len(users))
			for _, u := range users {
				out = append(out, toAPIUser(u))
			}
			pages := 0
			if limit > 0 {
				pages = (total + limit - 1) / limit
			}
			httpinfra.WriteJSON(w, map[string]any{
				"success": true,
				"users":   out,
				"pagination": map[string]int{
					"page":  page,
					"limit": limit,
					"total": total,
					"pages": pages,
				},
			})
		})

		admin.Get("/analytics", func(w http.ResponseWriter, r *http.Request) {
			plans, err := repoAdapter.CountByPlan(r.Context())
			if err != nil {
				httpinfra.WriteDetail(w, http.StatusInternalServerError, "аналитика недоступна")
				return
			}
			total := 0
			for _, n := range plans {
				total += n
			}
			httpinfra.WriteJSON(w, map[string]any{"success": true, "plans": plans, "total": total})
		})

		admin.Post("/user/subscription", func(w http.ResponseWriter, r *http.Request) {
			var req subscriptionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
				httpinfra.WriteDetail(w, http.StatusBadRequest, "нужен user_id")
				return
			}
			if err := repoAdapter.SetPremium(r.Context(), req.UserID, req.Premium, req.Until); err != nil {
				httpinfra.WriteDetail(w, http.StatusInternalServerError, "обновление не удалось")
				return
			}
			httpinfra.WriteJSON(w, map[string]any{"success": true})
		})

		admin.Post("/user/status", func(w http.ResponseWriter, r *http.Request) {
			var req userStatusRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
				httpinfra.WriteDetail(w, http.StatusBadRequest, "нужен user_id")
				return
			}
			if err := repoAdapter.SetActive(r.Context(), req.UserID, req.Active); err != nil {
				httpinfra.WriteDetail(w, http.StatusInternalServerError, "обновление не удалось")
				return
			}
			httpinfra.WriteJSON(w, map[string]any{"success": true})
		})
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// premiumUntilFor вычисляет Telegram-флаг и срок премиума для ответа статуса.
// Бессрочный премиум аккаунта не ограничивается сроком Telegram-подписки:
// срок в ответе относится только к каналам, у которых он есть.
func premiumUntilFor(user domain.User, tgExpiry *time.Time, now time.Time) (bool, *time.Time) {
	telegramPremium := tgExpiry != nil && tgExpiry.After(now)
	if user.IsPremium && user.SubscriptionEnd == nil {
		return telegramPremium, nil
	}
	until := user.SubscriptionEnd
	if telegramPremium && (until == nil || tgExpiry.After(*until)) {
		until = tgExpiry
	}
	return telegramPremium, until
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
