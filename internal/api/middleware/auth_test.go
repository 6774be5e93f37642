package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAuth(t *testing.T) *AdminAuth {
	t.Helper()
	return NewAdminAuth("admin-password", "0123456789abcdef", time.Hour, testLogger())
}

func TestCheckPassword(t *testing.T) {
	auth := newTestAuth(t)

	if !auth.CheckPassword("admin-password") {
		t.Error("верный пароль отвергнут")
	}
	if auth.CheckPassword("wrong") {
		t.Error("неверный пароль принят")
	}
	if auth.CheckPassword("") {
		t.Error("пустой пароль принят")
	}
}

func TestSessionRoundtrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.IssueToken(time.Now().UTC())
	if err != nil {
		t.Fatalf("Ошибка IssueToken: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})

	if !auth.IsAuthenticated(r) {
		t.Error("валидный сессионный токен отвергнут")
	}
}

func TestIsAuthenticated_NoCookie(t *testing.T) {
	auth := newTestAuth(t)

	r := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
	if auth.IsAuthenticated(r) {
		t.Error("запрос без cookie принят")
	}
}

func TestIsAuthenticated_GarbageToken(t *testing.T) {
	auth := newTestAuth(t)

	r := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "не-jwt"})
	if auth.IsAuthenticated(r) {
		t.Error("мусорный токен принят")
	}
}

func TestIsAuthenticated_ExpiredToken(t *testing.T) {
	auth := newTestAuth(t)

	// Токен, выданный два часа назад с TTL в один час
	token, err := auth.IssueToken(time.Now().UTC().Add(-2 * time.Hour))
	if err != nil {
		t.Fatalf("Ошибка IssueToken: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	if auth.IsAuthenticated(r) {
		t.Error("просроченный токен принят")
	}
}

func TestIsAuthenticated_WrongSecret(t *testing.T) {
	other := NewAdminAuth("admin-password", "another-secret-value", time.Hour, testLogger())
	token, err := other.IssueToken(time.Now().UTC())
	if err != nil {
		t.Fatalf("Ошибка IssueToken: %v", err)
	}

	auth := newTestAuth(t)
	r := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	if auth.IsAuthenticated(r) {
		t.Error("токен с чужой подписью принят")
	}
}

func TestRequireAdmin(t *testing.T) {
	auth := newTestAuth(t)

	var reached bool
	handler := auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		if !IsAdminAuthenticated(r.Context()) {
			t.Error("контекст не помечен как аутентифицированный")
		}
		w.WriteHeader(http.StatusOK)
	}))

	// Без сессии — 401, handler не вызывается
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/files", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("код = %d, ожидался 401", rec.Code)
	}
	if reached {
		t.Error("handler вызван без аутентификации")
	}

	// С валидной сессией — проходит
	token, err := auth.IssueToken(time.Now().UTC())
	if err != nil {
		t.Fatalf("Ошибка IssueToken: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("код = %d, ожидался 200", rec.Code)
	}
	if !reached {
		t.Error("handler не вызван при валидной сессии")
	}
}

func TestSessionCookieFlags(t *testing.T) {
	auth := newTestAuth(t)

	rec := httptest.NewRecorder()
	auth.SetSessionCookie(rec, "token-value")

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("установлено %d cookie, ожидался 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookieName {
		t.Errorf("имя cookie = %q", c.Name)
	}
	if !c.HttpOnly {
		t.Error("cookie без HttpOnly")
	}

	// Сброс
	rec = httptest.NewRecorder()
	auth.ClearSessionCookie(rec)
	cookies = rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Error("ClearSessionCookie не сбрасывает cookie")
	}
}
