package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type stubDeals struct {
	deals []domain.Deal
}

func (s *stubDeals) ListFeed(ctx context.Context, region string, limit, offset int) ([]domain.Deal, error) {
	return s.deals, nil
}

func (s *stubDeals) GetByID(ctx context.Context, id int64) (domain.Deal, error) {
	for _, d := range s.deals {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Deal{}, domain.ErrNotFound
}

func (s *stubDeals) ListScrapedAfter(ctx context.Context, cursor time.Time, limit int) ([]domain.Deal, error) {
	var fresh []domain.Deal
	for _, d := range s.deals {
		if d.ScrapedAt.After(cursor) {
			fresh = append(fresh, d)
		}
	}
	return fresh, nil
}

type stubSubs struct {
	active []int64
}

func (s *stubSubs) GetExpiry(ctx context.Context, tgUserID int64) (*time.Time, error) {
	return nil, domain.ErrNotFound
}

func (s *stubSubs) UpsertExpiry(ctx context.Context, tgUserID int64, username string, expiry time.Time) error {
	return nil
}

func (s *stubSubs) ListActive(ctx context.Context, now time.Time) ([]int64, error) {
	return s.active, nil
}

type memQueue struct {
	jobs []domain.AlertJob
}

func (q *memQueue) Enqueue(ctx context.Context, job domain.AlertJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (domain.AlertJob, error) {
	if len(q.jobs) == 0 {
		return domain.AlertJob{}, context.Canceled
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

type memCache struct {
	data map[string][]byte
	once map[string]bool
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, once: map[string]bool{}}
}

func (c *memCache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	if c.once[key] {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	c.once[key] = true
	return nil
}

func (c *memCache) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

type recordingSender struct {
	sent map[int64][]int64
}

func (s *recordingSender) SendAlert(ctx context.Context, tgUserID int64, deal domain.Deal) error {
	if s.sent == nil {
		s.sent = map[int64][]int64{}
	}
	s.sent[tgUserID] = append(s.sent[tgUserID], deal.ID)
	return nil
}

func TestPollOnceEnqueuesAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	deals := &stubDeals{deals: []domain.Deal{
		{ID: 1, ScrapedAt: now.Add(-time.Hour)},
		{ID: 2, ScrapedAt: now.Add(-time.Minute)},
	}}
	queue := &memQueue{}
	cache := newMemCache()
	svc := NewService(deals, &stubSubs{}, queue, cache, &fakeClock{now: now}, &recordingSender{}, zerolog.Nop())

	n, err := svc.PollOnce(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if n != 2 || len(queue.jobs) != 2 {
		t.Fatalf("ожидали 2 задачи, получили %d", n)
	}

	// Повторный опрос ничего нового не находит: курсор продвинут.
	n, err = svc.PollOnce(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if n != 0 {
		t.Fatalf("курсор должен исключать уже увиденные предложения, получили %d", n)
	}
}

func TestHandleJobSendsToActiveSubscribersOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	deals := &stubDeals{deals: []domain.Deal{{ID: 5, Title: "RTX 5080", ScrapedAt: now}}}
	sender := &recordingSender{}
	svc := NewService(deals, &stubSubs{active: []int64{100, 200}}, &memQueue{}, newMemCache(), &fakeClock{now: now}, sender, zerolog.Nop())

	job := domain.AlertJob{ID: "job-1", DealID: 5}
	if err := svc.HandleJob(ctx, job); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("ожидали доставку двум подписчикам")
	}

	// Повторная обработка той же задачи гасится дедупликацией.
	if err := svc.HandleJob(ctx, job); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sender.sent[100]) != 1 {
		t.Fatalf("повторной отправки быть не должно, было %d", len(sender.sent[100]))
	}
}
