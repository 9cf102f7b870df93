package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// AdminKeyMiddleware проверяет заголовок X-Admin-Key постоянным по времени сравнением.
func AdminKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				WriteDetail(w, http.StatusServiceUnavailable, "админ-доступ не настроен")
				return
			}
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				WriteDetail(w, http.StatusUnauthorized, "неверный админ-ключ")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteJSON отправляет ответ в JSON.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// WriteDetail отправляет конверт ошибки в формате {"success": false, "detail": ...}.
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "detail": detail})
}
