package bot

import (
	"strings"
	"testing"

	"hollowscan/internal/domain"
)

func TestParseLinkPayload(t *testing.T) {
	userID, err := ParseLinkPayload("link_42")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if userID != 42 {
		t.Fatalf("ожидали 42, получили %d", userID)
	}
}

func TestParseLinkPayloadInvalid(t *testing.T) {
	for _, payload := range []string{"link_", "link_abc", "link_-5", "42"} {
		if _, err := ParseLinkPayload(payload); err == nil {
			t.Fatalf("ожидали ошибку для %q", payload)
		}
	}
}

func TestFormatDealAlert(t *testing.T) {
	deal := domain.Deal{
		Title:       "LEGO 75192",
		Store:       "mediamarkt",
		Price:       599.99,
		ResalePrice: 749,
		MarginPct:   24,
		URL:         "https://example.com/deal",
	}
	text := FormatDealAlert(deal)
	for _, want := range []string{"LEGO 75192", "mediamarkt", "599.99", "24%", "https://example.com/deal"} {
		if !strings.Contains(text, want) {
			t.Fatalf("в тексте нет %q:\n%s", want, text)
		}
	}
}

func TestSplitMessageShort(t *testing.T) {
	parts := SplitMessage("привет")
	if len(parts) != 1 || parts[0] != "привет" {
		t.Fatalf("короткий текст не должен резаться: %v", parts)
	}
}

func TestSplitMessageLong(t *testing.T) {
	line := strings.Repeat("a", 100)
	text := strings.TrimSpace(strings.Repeat(line+"\n", 100))
	parts := SplitMessage(text)
	if len(parts) < 2 {
		t.Fatalf("длинный текст должен резаться на части")
	}
	for _, part := range parts {
		if len([]rune(part)) > messageLimit {
			t.Fatalf("часть длиннее лимита: %d", len([]rune(part)))
		}
	}
}
