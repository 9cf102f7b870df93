package saved

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
)

type memStore struct {
	data map[string][]byte
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, ok := s.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte) error {
	s.data[key] = value
	return nil
}

type stubSavedRepo struct {
	deals   []domain.SavedDeal
	saveErr error
	delErr  error
}

func (r *stubSavedRepo) ListByUser(ctx context.Context, userID int64) ([]domain.SavedDeal, error) {
	return append([]domain.SavedDeal(nil), r.deals...), nil
}

func (r *stubSavedRepo) Save(ctx context.Context, userID int64, deal domain.Deal) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.deals = append(r.deals, domain.SavedDeal{UserID: userID, DealID: deal.ID, Deal: deal})
	return nil
}

func (r *stubSavedRepo) Delete(ctx context.Context, userID, dealID int64) error {
	if r.delErr != nil {
		return r.delErr
	}
	filtered := r.deals[:0]
	for _, sd := range r.deals {
		if sd.DealID != dealID {
			filtered = append(filtered, sd)
		}
	}
	r.deals = filtered
	return nil
}

func TestToggleSavesAndRemoves(t *testing.T) {
	ctx := context.Background()
	repo := &stubSavedRepo{}
	svc := NewService(repo, &memStore{data: map[string][]byte{}}, zerolog.Nop())
	deal := domain.Deal{ID: 11, Title: "PS5 Slim"}

	saved, err := svc.Toggle(ctx, 7, deal)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !saved || !svc.IsSaved(ctx, 7, 11) {
		t.Fatalf("предложение должно быть сохранено")
	}

	saved, err = svc.Toggle(ctx, 7, deal)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if saved || svc.IsSaved(ctx, 7, 11) {
		t.Fatalf("повторный Toggle должен убрать предложение")
	}
}

func TestToggleFailureReloadsAuthoritative(t *testing.T) {
	ctx := context.Background()
	repo := &stubSavedRepo{saveErr: errors.New("сервер недоступен")}
	svc := NewService(repo, &memStore{data: map[string][]byte{}}, zerolog.Nop())
	deal := domain.Deal{ID: 11}

	if _, err := svc.Toggle(ctx, 7, deal); err == nil {
		t.Fatalf("ожидали ошибку репозитория")
	}
	// Оптимистичная локальная вставка должна быть отменена перечиткой.
	if svc.IsSaved(ctx, 7, 11) {
		t.Fatalf("после сбоя локальная копия должна совпадать с сервером")
	}
}

func TestListRefreshesLocalCopy(t *testing.T) {
	ctx := context.Background()
	repo := &stubSavedRepo{deals: []domain.SavedDeal{{UserID: 7, DealID: 3, Deal: domain.Deal{ID: 3}}}}
	svc := NewService(repo, &memStore{data: map[string][]byte{}}, zerolog.Nop())

	deals, err := svc.List(ctx, 7)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(deals) != 1 || !svc.IsSaved(ctx, 7, 3) {
		t.Fatalf("список должен попасть в локальную копию")
	}
}
