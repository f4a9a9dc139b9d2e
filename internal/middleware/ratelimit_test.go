package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    2,
		LoginRate:       rate.Limit(1),
		LoginBurst:      2,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// バースト上限を超えるとログインリクエストが429になることを検証
func TestLoginMiddleware_ExceedsBurst_Returns429(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	var lastCode int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
		req.RemoteAddr = "203.0.113.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want %d", lastCode, http.StatusTooManyRequests)
	}
}

// 429レスポンスにRetry-Afterヘッダーが含まれることを検証
func TestLoginMiddleware_RateLimited_SetsRetryAfter(t *testing.T) {
	config := testRateLimiterConfig()
	config.LoginBurst = 1
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
		req.RemoteAddr = "203.0.113.1:12345"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

// 異なるIPのクライアントは独立したリミッターを持つことを検証
func TestLoginMiddleware_DifferentIPs_IndependentLimits(t *testing.T) {
	config := testRateLimiterConfig()
	config.LoginBurst = 1
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	// 1つ目のIPでバーストを使い切る
	req1 := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
	req1.RemoteAddr = "203.0.113.1:12345"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	// 別のIPからのリクエストは影響を受けない
	req2 := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
	req2.RemoteAddr = "203.0.113.2:12345"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Errorf("second IP status = %d, want %d", rec2.Code, http.StatusOK)
	}
	if rl.LoginLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.LoginLimiterCount())
	}
}

// X-Forwarded-Forの先頭IPがキーとして使われることを検証
func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-Forあり", "198.51.100.1", "203.0.113.1:12345", "198.51.100.1"},
		{"X-Forwarded-For複数", "198.51.100.1, 10.0.0.1", "203.0.113.1:12345", "198.51.100.1"},
		{"X-Forwarded-Forなし", "", "203.0.113.1:12345", "203.0.113.1"},
		{"ポートなしRemoteAddr", "", "203.0.113.1", "203.0.113.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

// 認証済みAPIのレート制限はprincipalをキーとすることを検証
func TestGeneralMiddleware_KeyedByPrincipal(t *testing.T) {
	config := testRateLimiterConfig()
	config.GeneralBurst = 1
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	send := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req = req.WithContext(ContextWithPrincipal(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("user-a"); code != http.StatusOK {
		t.Errorf("first request for user-a = %d, want %d", code, http.StatusOK)
	}
	if code := send("user-a"); code != http.StatusTooManyRequests {
		t.Errorf("second request for user-a = %d, want %d", code, http.StatusTooManyRequests)
	}
	// 別ユーザーは制限されない
	if code := send("user-b"); code != http.StatusOK {
		t.Errorf("first request for user-b = %d, want %d", code, http.StatusOK)
	}
}

// principalなしのリクエストは401になることを検証
func TestGeneralMiddleware_NoPrincipal_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 期限切れエントリがクリーンアップで削除されることを検証
func TestCleanup_RemovesStaleEntries(t *testing.T) {
	config := testRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
	req.RemoteAddr = "203.0.113.1:12345"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rl.LoginLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.LoginLimiterCount())
	}

	// TTL（CleanupInterval×2）経過後のクリーンアップを待つ
	deadline := time.Now().Add(time.Second)
	for rl.LoginLimiterCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stale limiter entry was not cleaned up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	config := DefaultRateLimiterConfig()

	if config.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", config.GeneralBurst)
	}
	if config.LoginBurst != 10 {
		t.Errorf("LoginBurst = %d, want 10", config.LoginBurst)
	}
	if config.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want %v", config.CleanupInterval, 5*time.Minute)
	}
	// ログインはAPI全般より厳しい
	if config.LoginRate >= config.GeneralRate {
		t.Error("login rate should be stricter than general rate")
	}
}
