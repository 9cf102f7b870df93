package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

const (
	cursorKey     = "alerts:last_scraped_at"
	pollBatch     = 100
	dedupTTL      = 24 * time.Hour
	initialLookup = 24 * time.Hour
)

// Sender доставляет уведомление о предложении подписчику.
type Sender interface {
	SendAlert(ctx context.Context, tgUserID int64, deal domain.Deal) error
}

// Service рассылает уведомления о свежих предложениях активным подписчикам.
// Новые предложения выбираются по курсору последнего увиденного scraped_at.
type Service struct {
	deals  domain.DealRepo
	subs   domain.SubscriberRepo
	queue  domain.AlertQueue
	cache  domain.Cache
	clock  domain.Clock
	sender Sender
	log    zerolog.Logger
}

// NewService создаёт сервис уведомлений.
func NewService(deals domain.DealRepo, subs domain.SubscriberRepo, queue domain.AlertQueue, cache domain.Cache, clock domain.Clock, sender Sender, log zerolog.Logger) *Service {
	return &Service{deals: deals, subs: subs, queue: queue, cache: cache, clock: clock, sender: sender, log: log}
}

// PollOnce выбирает предложения новее курсора и ставит их в очередь.
// Возвращает число поставленных задач.
func (s *Service) PollOnce(ctx context.Context) (int, error) {
	cursor := s.loadCursor(ctx)
	deals, err := s.deals.ListScrapedAfter(ctx, cursor, pollBatch)
	if err != nil {
		return 0, fmt.Errorf("выборка предложений: %w", err)
	}
	if len(deals) == 0 {
		return 0, nil
	}

	enqueued := 0
	for _, deal := range deals {
		job := domain.AlertJob{ID: uuid.NewString(), DealID: deal.ID}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return enqueued, fmt.Errorf("постановка задачи: %w", err)
		}
		metrics.AlertsEnqueued.Inc()
		enqueued++
		if deal.ScrapedAt.After(cursor) {
			cursor = deal.ScrapedAt
		}
	}
	s.saveCursor(ctx, cursor)
	return enqueued, nil
}

// Run опрашивает репозиторий по таймеру до отмены контекста.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PollOnce(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("alerts: опрос не удался")
				continue
			}
			if n > 0 {
				s.log.Info().Int("jobs", n).Msg("alerts: задачи поставлены в очередь")
			}
		}
	}
}

// Consume читает задачи из очереди и рассылает уведомления.
func (s *Service) Consume(ctx context.Context) error {
	for {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("чтение очереди: %w", err)
		}
		if err := s.HandleJob(ctx, job); err != nil {
			s.log.Error().Err(err).Str("job", job.ID).Msg("alerts: задача не обработана")
		}
	}
}

// HandleJob рассылает одно уведомление всем активным подписчикам.
// Повторная доставка той же задачи одному подписчику гасится дедупликацией.
func (s *Service) HandleJob(ctx context.Context, job domain.AlertJob) error {
	deal, err := s.deals.GetByID(ctx, job.DealID)
	if err != nil {
		return fmt.Errorf("чтение предложения: %w", err)
	}
	subscribers, err := s.subs.ListActive(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("выборка подписчиков: %w", err)
	}

	for _, tgUserID := range subscribers {
		key := fmt.Sprintf("alert_sent:%s:%d", job.ID, tgUserID)
		err := s.cache.Once(ctx, key, dedupTTL, func() error {
			return s.sender.SendAlert(ctx, tgUserID, deal)
		})
		if err != nil {
			metrics.AlertSendErrors.Inc()
			s.log.Error().Err(err).Int64("tg_user", tgUserID).Msg("alerts: отправка не удалась")
		}
	}
	return nil
}

func (s *Service) loadCursor(ctx context.Context) time.Time {
	raw, err := s.cache.Get(ctx, cursorKey)
	if err == nil {
		if cursor, parseErr := time.Parse(time.RFC3339Nano, string(raw)); parseErr == nil {
			return cursor
		}
	}
	return s.clock.Now().Add(-initialLookup)
}

func (s *Service) saveCursor(ctx context.Context, cursor time.Time) {
	raw := []byte(cursor.Format(time.RFC3339Nano))
	if err := s.cache.SetTTL(ctx, cursorKey, raw, 0); err != nil {
		s.log.Warn().Err(err).Msg("alerts: курсор не сохранён")
	}
}
