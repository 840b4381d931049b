// Package middleware содержит HTTP middleware сервиса заказов поставщикам.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const companyKey contextKey = "company"

const (
	sessionCookieName = "company_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// AuthMiddleware привязывает запрос к компании по подписанному cookie.
// Права пользователя внутри компании проверяет UI-слой.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// Пустой секрет заменяется случайным: сессии не переживут перезапуск.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie сессии и добавляет компанию в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		company, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), companyKey, company)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetCompanyCookie устанавливает cookie сессии для указанной компании.
func (a *AuthMiddleware) SetCompanyCookie(w http.ResponseWriter, company string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.sign(company),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) signature(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// sign кодирует компанию в base64, чтобы значение cookie не содержало разделителей.
func (a *AuthMiddleware) sign(company string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(company))
	return payload + "." + a.signature(payload)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	payload, signature, found := strings.Cut(cookieValue, ".")
	if !found {
		return "", false
	}

	if !hmac.Equal([]byte(signature), []byte(a.signature(payload))) {
		return "", false
	}

	company, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(company) == 0 {
		return "", false
	}

	return string(company), true
}

// GetCompanyFromContext извлекает компанию из контекста запроса.
func GetCompanyFromContext(ctx context.Context) (string, bool) {
	company, ok := ctx.Value(companyKey).(string)
	return company, ok
}

// WithCompany кладёт компанию в контекст. Используется в тестах обработчиков.
func WithCompany(ctx context.Context, company string) context.Context {
	return context.WithValue(ctx, companyKey, company)
}
