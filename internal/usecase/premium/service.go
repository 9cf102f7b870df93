package premium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

// Service сводит премиум-статус из двух независимых источников:
// флага аккаунта и привязки Telegram. Итоговое OR никогда не кэшируется,
// оно вычисляется при каждом чтении, чтобы не устаревать.
type Service struct {
	store   domain.KVStore
	clock   domain.Clock
	session domain.Session
	status  domain.LinkStatusClient
	key     string
	log     zerolog.Logger
}

// NewService создаёт сервис для текущего аккаунта.
func NewService(store domain.KVStore, clock domain.Clock, session domain.Session, status domain.LinkStatusClient, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		clock:   clock,
		session: session,
		status:  status,
		key:     fmt.Sprintf("premium_state:%d", session.AccountID()),
		log:     log,
	}
}

var _ domain.PremiumChecker = (*Service)(nil)

// State возвращает снимок премиум-статуса: флаг аккаунта из сессии,
// Telegram-флаги из локального кэша.
func (s *Service) State(ctx context.Context) domain.PremiumState {
	state := s.loadCached(ctx)
	state.AccountPremium = s.session.AccountPremium()
	return state
}

// Effective сообщает, действует ли премиум прямо сейчас.
func (s *Service) Effective(ctx context.Context) bool {
	return s.State(ctx).EffectiveAt(s.clock.Now())
}

// Refresh запрашивает статус у сервера и обновляет кэш.
// При сбое прежний кэш остаётся на месте; ошибка возвращается только для
// показа пользователю, если обновление он запустил сам.
func (s *Service) Refresh(ctx context.Context) error {
	state, err := s.status.Status(ctx, s.session.AccountID())
	if err != nil {
		metrics.PremiumRefreshErrors.Inc()
		s.log.Warn().Err(err).Msg("premium: обновление не удалось, оставляем кэш")
		return fmt.Errorf("обновление статуса: %w", err)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("кодирование статуса: %w", err)
	}
	if err := s.store.Set(ctx, s.key, raw); err != nil {
		s.log.Warn().Err(err).Msg("premium: кэш не сохранён")
	}
	return nil
}

// loadCached читает кэш; ошибка чтения и битый JSON равнозначны пустому статусу.
func (s *Service) loadCached(ctx context.Context) domain.PremiumState {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Msg("premium: ошибка чтения кэша")
		}
		return domain.PremiumState{}
	}
	var state domain.PremiumState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.log.Warn().Err(err).Msg("premium: повреждённый кэш статуса")
		return domain.PremiumState{}
	}
	return state
}
