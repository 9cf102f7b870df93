package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type stubSession struct {
	id      int64
	premium bool
}

func (s stubSession) AccountID() int64     { return s.id }
func (s stubSession) AccountPremium() bool { return s.premium }

type stubStatus struct {
	mu    sync.Mutex
	state domain.PremiumState
	err   error
}

func (s *stubStatus) Status(context.Context, int64) (domain.PremiumState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

func (s *stubStatus) set(state domain.PremiumState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

type stubSavedRepo struct{}

func (stubSavedRepo) ListByUser(context.Context, int64) ([]domain.SavedDeal, error) {
	return nil, nil
}
func (stubSavedRepo) Save(context.Context, int64, domain.Deal) error { return nil }
func (stubSavedRepo) Delete(context.Context, int64, int64) error     { return nil }

func newTestCore(status domain.LinkStatusClient, interval time.Duration) *Core {
	return New(Options{
		Store:        newMemStore(),
		Clock:        &fakeClock{now: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
		Session:      stubSession{id: 7},
		Status:       status,
		SavedRepo:    stubSavedRepo{},
		FreeLimit:    2,
		PollInterval: interval,
		Logger:       zerolog.Nop(),
	})
}

func TestRefreshPremiumUnlocksViews(t *testing.T) {
	status := &stubStatus{}
	core := newTestCore(status, time.Second)
	ctx := context.Background()

	for _, id := range []string{"A", "B"} {
		dec, err := core.CheckView(ctx, id)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("просмотр %s должен быть разрешён", id)
		}
	}
	if dec, _ := core.CheckView(ctx, "C"); dec.Allowed {
		t.Fatalf("лимит исчерпан, просмотр C должен быть запрещён")
	}

	status.set(domain.PremiumState{TelegramLinked: true, TelegramPremium: true})
	if err := core.RefreshPremium(ctx); err != nil {
		t.Fatalf("обновление статуса не удалось: %v", err)
	}

	dec, err := core.CheckView(ctx, "C")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !dec.Allowed || !dec.Unlimited {
		t.Fatalf("после премиума просмотр должен быть безлимитным: %+v", dec)
	}
}

func TestWatchLinkConfirmsAndRefreshes(t *testing.T) {
	status := &stubStatus{}
	core := newTestCore(status, 5*time.Millisecond)
	ctx := context.Background()

	linked := make(chan struct{})
	core.WatchLink(ctx, func() { close(linked) })
	if !core.LinkWatchActive() {
		t.Fatalf("после запуска опрос должен быть активен")
	}

	status.set(domain.PremiumState{TelegramLinked: true, TelegramPremium: true})

	select {
	case <-linked:
	case <-time.After(time.Second):
		t.Fatalf("подтверждение привязки не пришло")
	}

	deadline := time.Now().Add(time.Second)
	for core.LinkWatchActive() {
		if time.Now().After(deadline) {
			t.Fatalf("lease должен освободиться после подтверждения")
		}
		time.Sleep(time.Millisecond)
	}

	if !core.PremiumState(ctx).TelegramPremium {
		t.Fatalf("статус должен обновиться после привязки")
	}
}

func TestStopLinkWatchReleasesLease(t *testing.T) {
	status := &stubStatus{}
	core := newTestCore(status, time.Hour)

	core.WatchLink(context.Background(), nil)
	core.StopLinkWatch()
	if core.LinkWatchActive() {
		t.Fatalf("после Stop опрос должен быть остановлен")
	}
}
