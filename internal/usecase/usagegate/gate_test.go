package usagegate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
)

type memStore struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	setCnt  int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	raw, ok := s.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.setCnt++
	s.data[key] = value
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type stubPremium struct {
	on bool
}

func (p *stubPremium) Effective(context.Context) bool { return p.on }

func newTestGate(store domain.KVStore, clock domain.Clock, premium domain.PremiumChecker) *Gate {
	return NewGate(store, clock, premium, DefaultFreeLimit, 7, zerolog.Nop())
}

func TestCheckAndRecordViewScenario(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	gate := newTestGate(store, clock, &stubPremium{})

	expected := map[string]int{"A": 3, "B": 2, "C": 1, "D": 0}
	for _, id := range []string{"A", "B", "C", "D"} {
		dec, err := gate.CheckAndRecordView(ctx, id)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("просмотр %s должен быть разрешён", id)
		}
		if dec.Remaining != expected[id] {
			t.Fatalf("ожидали остаток %d после %s, получили %d", expected[id], id, dec.Remaining)
		}
	}

	dec, err := gate.CheckAndRecordView(ctx, "E")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if dec.Allowed || dec.Remaining != 0 {
		t.Fatalf("пятый товар должен быть запрещён, получили %+v", dec)
	}

	// Повторный просмотр уже учтённого товара квоту не тратит.
	dec, err = gate.CheckAndRecordView(ctx, "A")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !dec.Allowed || dec.Remaining != 0 {
		t.Fatalf("повтор должен быть разрешён с остатком 0, получили %+v", dec)
	}
}

func TestDayRolloverResets(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2025, 3, 10, 23, 50, 0, 0, time.UTC)}
	gate := newTestGate(store, clock, &stubPremium{})

	for _, id := range []string{"A", "B", "C", "D"} {
		if _, err := gate.CheckAndRecordView(ctx, id); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if dec, _ := gate.CheckAndRecordView(ctx, "E"); dec.Allowed {
		t.Fatalf("лимит должен быть исчерпан")
	}

	clock.now = clock.now.Add(time.Hour) // следующий локальный день
	dec, err := gate.CheckAndRecordView(ctx, "E")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !dec.Allowed || dec.Remaining != 3 {
		t.Fatalf("после смены дня ожидали остаток 3, получили %+v", dec)
	}

	left, unlimited := gate.Remaining(ctx)
	if unlimited || left != 3 {
		t.Fatalf("ожидали остаток 3, получили %d", left)
	}
}

func TestPremiumBypassesWithoutRecording(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	gate := newTestGate(store, clock, &stubPremium{on: true})

	for i := 0; i < 10; i++ {
		dec, err := gate.CheckAndRecordView(ctx, "X")
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if !dec.Allowed || !dec.Unlimited {
			t.Fatalf("премиум должен проходить без ограничений, получили %+v", dec)
		}
	}
	if store.setCnt != 0 {
		t.Fatalf("просмотры премиума не должны записываться")
	}
	if _, unlimited := gate.Remaining(ctx); !unlimited {
		t.Fatalf("остаток премиума должен быть безлимитным")
	}
}

func TestStorageFailureFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.getErr = errors.New("диск недоступен")
	store.setErr = errors.New("диск недоступен")
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	gate := newTestGate(store, clock, &stubPremium{})

	dec, err := gate.CheckAndRecordView(ctx, "A")
	if err != nil {
		t.Fatalf("ошибка хранилища не должна выходить наружу: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("при сбое хранилища просмотр должен быть разрешён")
	}
}

func TestMalformedRecordTreatedAsFresh(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.data["daily_views:7"] = []byte("{битый json")
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	gate := newTestGate(store, clock, &stubPremium{})

	dec, err := gate.CheckAndRecordView(ctx, "A")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !dec.Allowed || dec.Remaining != 3 {
		t.Fatalf("битая запись равнозначна пустому дню, получили %+v", dec)
	}
}

func TestDistinctViewsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	gate := newTestGate(store, clock, &stubPremium{})

	ids := []string{"a", "b", "a", "c", "d", "e", "f", "b", "g"}
	for _, id := range ids {
		if _, err := gate.CheckAndRecordView(ctx, id); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	usage := gate.loadToday(ctx)
	if len(usage.ViewedIDs) > DefaultFreeLimit {
		t.Fatalf("записано %d товаров при лимите %d", len(usage.ViewedIDs), DefaultFreeLimit)
	}
}

func TestResetToday(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	gate := newTestGate(store, clock, &stubPremium{})

	for _, id := range []string{"A", "B", "C", "D"} {
		if _, err := gate.CheckAndRecordView(ctx, id); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if err := gate.ResetToday(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	left, _ := gate.Remaining(ctx)
	if left != DefaultFreeLimit {
		t.Fatalf("после сброса ожидали полный лимит, получили %d", left)
	}
}

func TestEmptyProductIDRejected(t *testing.T) {
	gate := newTestGate(newMemStore(), &fakeClock{now: time.Now()}, &stubPremium{})
	if _, err := gate.CheckAndRecordView(context.Background(), "  "); !errors.Is(err, ErrEmptyProductID) {
		t.Fatalf("ожидали ErrEmptyProductID, получили %v", err)
	}
}
