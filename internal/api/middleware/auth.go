// auth.go — middleware сессии администратора.
// Сессия — подписанный HS256 JWT в HttpOnly cookie, выдаётся после
// проверки пароля администратора. Публичные endpoints (загрузка,
// выдача файлов, health, metrics) — без аутентификации.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/snapdrop/internal/api/errors"
)

// SessionCookieName — имя cookie сессии администратора.
const SessionCookieName = "sd_admin_session"

// sessionSubject — subject сессионного токена.
const sessionSubject = "admin"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyAdmin — ключ контекста: запрос аутентифицирован как администратор.
const ContextKeyAdmin contextKey = "admin_authenticated"

// AdminAuth — проверка пароля и выдача/валидация сессионных токенов.
type AdminAuth struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	logger   *slog.Logger
}

// NewAdminAuth создаёт middleware сессии администратора.
func NewAdminAuth(password, secret string, ttl time.Duration, logger *slog.Logger) *AdminAuth {
	return &AdminAuth{
		password: []byte(password),
		secret:   []byte(secret),
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "admin_auth")),
	}
}

// CheckPassword сравнивает пароль с конфигурационным за постоянное время.
func (a *AdminAuth) CheckPassword(password string) bool {
	return subtle.ConstantTimeCompare([]byte(password), a.password) == 1
}

// IssueToken выдаёт сессионный токен с временем жизни ttl.
func (a *AdminAuth) IssueToken(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("подпись сессионного токена: %w", err)
	}
	return signed, nil
}

// SetSessionCookie устанавливает cookie сессии.
func (a *AdminAuth) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie сбрасывает cookie сессии (logout).
func (a *AdminAuth) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// IsAuthenticated проверяет, несёт ли запрос валидную сессию администратора.
// Реализует capability check внешних слоёв: недействительный, просроченный
// или отсутствующий токен — false, без различения причин.
func (a *AdminAuth) IsAuthenticated(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	return ok && claims.Subject == sessionSubject
}

// RequireAdmin — middleware, пропускающий только аутентифицированного
// администратора. Остальным — 401 UNAUTHORIZED.
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.IsAuthenticated(r) {
			a.logger.Warn("Отказ в доступе к административному endpoint",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			apierrors.Unauthorized(w, "Требуется аутентификация администратора")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyAdmin, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsAdminAuthenticated сообщает, аутентифицирован ли запрос
// как администратор (из контекста, установленного RequireAdmin).
func IsAdminAuthenticated(ctx context.Context) bool {
	v, ok := ctx.Value(ContextKeyAdmin).(bool)
	return ok && v
}
