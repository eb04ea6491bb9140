package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"lyric-notes/internal/domain"
)

type callerKey struct{}

// AuthMiddleware проверяет подписанный токен и кладёт инициатора в контекст.
// Формат токена: "<userID>.<role>.<hex(hmac-sha256(secret, userID.role))>".
// Клиентским заявлениям о роли без подписи не верим.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := sha256.Sum256([]byte(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			caller, ok := parseToken(token, key[:])
			if !ok {
				WriteError(w, http.StatusUnauthorized, "токен отсутствует или недействителен")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// SignToken подписывает пару (userID, role). Используется выдающей стороной
// и тестами.
func SignToken(secret string, userID int64, role domain.Role) string {
	key := sha256.Sum256([]byte(secret))
	payload := fmt.Sprintf("%d.%s", userID, role)
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

func parseToken(token string, key []byte) (domain.Caller, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return domain.Caller{}, false
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return domain.Caller{}, false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(parts[0] + "." + parts[1]))
	expected, err := hex.DecodeString(parts[2])
	if err != nil || !hmac.Equal(mac.Sum(nil), expected) {
		return domain.Caller{}, false
	}
	return domain.Caller{ID: userID, Role: domain.ParseRole(parts[1])}, true
}

// WithCaller кладёт инициатора в контекст.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom достаёт инициатора из контекста запроса.
func CallerFrom(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Caller)
	return caller, ok
}
