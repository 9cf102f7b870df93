package saved

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
)

// Service управляет сохранёнными предложениями. Мутация применяется к
// локальной копии сразу, затем уходит в репозиторий; при сбое локальная
// копия перечитывается из авторитетного источника вместо ручного отката.
type Service struct {
	repo  domain.SavedDealRepo
	store domain.KVStore
	log   zerolog.Logger
}

// NewService создаёт сервис сохранённых предложений.
func NewService(repo domain.SavedDealRepo, store domain.KVStore, log zerolog.Logger) *Service {
	return &Service{repo: repo, store: store, log: log}
}

// List возвращает авторитетный список и обновляет локальную копию.
// При недоступности репозитория отдаётся последняя локальная копия.
func (s *Service) List(ctx context.Context, userID int64) ([]domain.SavedDeal, error) {
	deals, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("saved: репозиторий недоступен, отдаём локальную копию")
		return s.loadLocal(ctx, userID), nil
	}
	s.storeLocal(ctx, userID, deals)
	return deals, nil
}

// Toggle сохраняет или убирает предложение. Возвращает итоговое состояние:
// true — сохранено.
func (s *Service) Toggle(ctx context.Context, userID int64, deal domain.Deal) (bool, error) {
	local := s.loadLocal(ctx, userID)
	exists := false
	for _, sd := range local {
		if sd.DealID == deal.ID {
			exists = true
			break
		}
	}

	if exists {
		filtered := local[:0]
		for _, sd := range local {
			if sd.DealID != deal.ID {
				filtered = append(filtered, sd)
			}
		}
		s.storeLocal(ctx, userID, filtered)
		if err := s.repo.Delete(ctx, userID, deal.ID); err != nil {
			s.reload(ctx, userID)
			return true, fmt.Errorf("удаление сохранённого: %w", err)
		}
		return false, nil
	}

	local = append(local, domain.SavedDeal{UserID: userID, DealID: deal.ID, Deal: deal})
	s.storeLocal(ctx, userID, local)
	if err := s.repo.Save(ctx, userID, deal); err != nil {
		s.reload(ctx, userID)
		return false, fmt.Errorf("сохранение предложения: %w", err)
	}
	return true, nil
}

// IsSaved проверяет локальную копию.
func (s *Service) IsSaved(ctx context.Context, userID, dealID int64) bool {
	for _, sd := range s.loadLocal(ctx, userID) {
		if sd.DealID == dealID {
			return true
		}
	}
	return false
}

// reload перечитывает авторитетный список после неудачной мутации.
func (s *Service) reload(ctx context.Context, userID int64) {
	deals, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("saved: не удалось перечитать список")
		return
	}
	s.storeLocal(ctx, userID, deals)
}

func (s *Service) key(userID int64) string {
	return fmt.Sprintf("saved_deals:%d", userID)
}

func (s *Service) loadLocal(ctx context.Context, userID int64) []domain.SavedDeal {
	raw, err := s.store.Get(ctx, s.key(userID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Msg("saved: ошибка чтения локальной копии")
		}
		return nil
	}
	var deals []domain.SavedDeal
	if err := json.Unmarshal(raw, &deals); err != nil {
		return nil
	}
	return deals
}

func (s *Service) storeLocal(ctx context.Context, userID int64, deals []domain.SavedDeal) {
	raw, err := json.Marshal(deals)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, s.key(userID), raw); err != nil {
		s.log.Warn().Err(err).Msg("saved: локальная копия не сохранена")
	}
}
