package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type actorKey struct{}

// WithActor returns a context carrying the acting user's email.
func WithActor(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, actorKey{}, email)
}

// ActorFrom returns the acting user's email, or "".
func ActorFrom(ctx context.Context) string {
	email, _ := ctx.Value(actorKey{}).(string)
	return email
}

// rateLimiter tracks failed API key attempts per IP.
type rateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{attempts: make(map[string][]time.Time), now: time.Now}
}

const (
	rateLimitWindow  = 1 * time.Minute
	rateLimitMaxFail = 10
)

// prune drops attempts older than the window. Callers hold mu.
func (rl *rateLimiter) prune(ip string) []time.Time {
	cutoff := rl.now().Add(-rateLimitWindow)
	valid := rl.attempts[ip][:0]
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = valid
	return valid
}

// blocked reports whether ip has used up its failures for the window.
func (rl *rateLimiter) blocked(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(ip)) >= rateLimitMaxFail
}

// recordFailure records a failed attempt.
func (rl *rateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.attempts[ip] = append(rl.prune(ip), rl.now())
}

// RequireAPIKey validates Bearer token auth for /api/ routes and stores the
// key's user in the request context. Other routes pass through untouched.
// Returns 401 for missing/invalid keys, 429 for rate-limited IPs.
func RequireAPIKey(apiKeys *APIKeyStore, next http.Handler) http.Handler {
	limiter := newRateLimiter()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if limiter.blocked(ip) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			limiter.recordFailure(ip)
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		email, err := apiKeys.Validate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			slog.Error("validating api key", "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if email == "" {
			limiter.recordFailure(ip)
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), email)))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
