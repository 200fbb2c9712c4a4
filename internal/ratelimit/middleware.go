package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// Config describes one limited surface.
type Config struct {
	Name   string
	Key    KeyFunc
	Window time.Duration
	Max    int
}

// Handler enforces Config on every request passing through Middleware.
// Limiter failures are logged and the request is let through.
type Handler struct {
	Limiter Limiter
	Config  Config
	Logger  zerolog.Logger
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "anonymous"
		if h.Config.Key != nil {
			if k := h.Config.Key(r); k != "" {
				key = k
			}
		}
		if h.Config.Name != "" {
			key = h.Config.Name + ":" + key
		}

		d, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			h.Logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		header := w.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Allowed {
			header.Set("Retry-After", strconv.Itoa(int(h.Config.Window.Seconds())))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserOrIP keys authenticated requests by user id and anonymous ones by client address.
func UserOrIP(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok {
		return "user:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first forwarded address, then X-Real-IP, then the peer host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
