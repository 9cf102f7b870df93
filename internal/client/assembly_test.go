package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"hollowscan/internal/infra/config"
)

func TestNewFromConfigWiresStatusClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/7/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"telegram_linked":true,"telegram_premium":true}`))
	}))
	defer srv.Close()

	var cfg config.AppConfig
	cfg.TZ = "UTC"
	cfg.Link.StatusURL = srv.URL
	cfg.Link.PollSeconds = 3
	cfg.Limits.FreeViews = 4
	cfg.Telegram.BotName = "HollowScan_Bot"

	core, err := NewFromConfig(cfg, stubSession{id: 7}, newMemStore(), stubSavedRepo{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	ctx := context.Background()
	if err := core.RefreshPremium(ctx); err != nil {
		t.Fatalf("обновление статуса не удалось: %v", err)
	}
	state := core.PremiumState(ctx)
	if !state.TelegramLinked || !state.TelegramPremium {
		t.Fatalf("статус с сервера не дошёл до кэша: %+v", state)
	}

	if got := core.TelegramLinkURL(); got != "https://t.me/HollowScan_Bot?start=link_7" {
		t.Fatalf("неожиданный диплинк: %s", got)
	}
}

func TestNewFromConfigRequiresStatusURL(t *testing.T) {
	var cfg config.AppConfig
	cfg.TZ = "UTC"

	if _, err := NewFromConfig(cfg, stubSession{id: 7}, newMemStore(), stubSavedRepo{}, zerolog.Nop()); err == nil {
		t.Fatalf("без LINK_STATUS_URL сборка должна падать")
	}
}
