package access

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hollowscan/internal/domain"
)

// ErrInvalidCode возвращается для несуществующего или уже погашенного кода.
var ErrInvalidCode = errors.New("код не найден или уже использован")

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8
)

// Service управляет кодами активации и Telegram-подписками.
type Service struct {
	codes domain.CodeRepo
	subs  domain.SubscriberRepo
	clock domain.Clock
	log   zerolog.Logger
}

// NewService создаёт сервис активации.
func NewService(codes domain.CodeRepo, subs domain.SubscriberRepo, clock domain.Clock, log zerolog.Logger) *Service {
	return &Service{codes: codes, subs: subs, clock: clock, log: log}
}

// Generate создаёт код на указанное число дней.
func (s *Service) Generate(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		return "", errors.New("число дней должно быть положительным")
	}
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("генерация кода: %w", err)
	}
	if err := s.codes.Insert(ctx, domain.AccessCode{Code: code, Days: days, CreatedAt: s.clock.Now()}); err != nil {
		return "", fmt.Errorf("сохранение кода: %w", err)
	}
	return code, nil
}

// Redeem гасит код и продлевает подписку. Действующая подписка
// продлевается от своей даты окончания, истёкшая — от текущего момента.
func (s *Service) Redeem(ctx context.Context, tgUserID int64, username, code string) (time.Time, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return time.Time{}, ErrInvalidCode
	}
	days, err := s.codes.Redeem(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return time.Time{}, ErrInvalidCode
		}
		return time.Time{}, fmt.Errorf("погашение кода: %w", err)
	}

	now := s.clock.Now()
	base := now
	current, err := s.subs.GetExpiry(ctx, tgUserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return time.Time{}, fmt.Errorf("чтение подписки: %w", err)
	}
	if current != nil && current.After(now) {
		base = *current
	}

	expiry := base.AddDate(0, 0, days)
	if err := s.subs.UpsertExpiry(ctx, tgUserID, username, expiry); err != nil {
		return time.Time{}, fmt.Errorf("продление подписки: %w", err)
	}
	return expiry, nil
}

// Expiry возвращает дату окончания подписки, nil — подписки нет.
func (s *Service) Expiry(ctx context.Context, tgUserID int64) (*time.Time, error) {
	expiry, err := s.subs.GetExpiry(ctx, tgUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение подписки: %w", err)
	}
	return expiry, nil
}

// IsActive сообщает, действует ли подписка сейчас.
func (s *Service) IsActive(ctx context.Context, tgUserID int64) (bool, error) {
	expiry, err := s.Expiry(ctx, tgUserID)
	if err != nil {
		return false, err
	}
	return expiry != nil && expiry.After(s.clock.Now()), nil
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := crand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(codeLength)
	for _, raw := range buf {
		idx := int(raw) % len(codeAlphabet)
		b.WriteByte(codeAlphabet[idx])
	}
	return b.String(), nil
}
