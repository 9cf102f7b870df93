package bot

import (
	"fmt"
	"strings"

	"hollowscan/internal/domain"
)

const messageLimit = 4096

// FormatDealAlert строит текст уведомления о предложении.
func FormatDealAlert(deal domain.Deal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📢 %s\n", deal.Title))
	if deal.Store != "" {
		b.WriteString(fmt.Sprintf("Магазин: %s\n", deal.Store))
	}
	b.WriteString(fmt.Sprintf("Цена: %.2f € → перепродажа: %.2f €", deal.Price, deal.ResalePrice))
	if deal.MarginPct > 0 {
		b.WriteString(fmt.Sprintf(" (маржа %.0f%%)", deal.MarginPct))
	}
	if deal.URL != "" {
		b.WriteString("\n")
		b.WriteString(deal.URL)
	}
	return b.String()
}

// SplitMessage режет текст на части в пределах лимита Telegram,
// предпочитая границы строк, чтобы блоки не рвались посередине.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			chunk := strings.Trim(string(runes[start:]), "\n")
			if chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := -1
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if split == -1 {
			split = end
		}

		chunk := strings.Trim(string(runes[start:split]), "\n")
		if chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}

	return parts
}
