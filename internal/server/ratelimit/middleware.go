package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// ClientID identifies the caller by remote IP
func ClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware rejects requests over the limit with 429 and sets the X-RateLimit headers
func Middleware(l *Limiter, logger *logrus.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ClientID(r)
			allowed, info := l.Allow(clientID, r.URL.Path, r.Method)
			setHeaders(w, info)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			logger.WithFields(logrus.Fields{
				"client": clientID,
				"path":   r.URL.Path,
				"limit":  info.Limit,
			}).Warn("Rate limit exceeded")

			body := map[string]any{
				"error":     "rate_limit_exceeded",
				"message":   "Rate limit exceeded. Please try again later.",
				"limit":     info.Limit,
				"remaining": info.Remaining,
			}
			if !info.ResetTime.IsZero() {
				body["reset_at"] = info.ResetTime.UTC().Format(time.RFC3339)
			}
			if info.RetryAfter > 0 {
				secs := int(info.RetryAfter.Seconds()) + 1
				body["retry_after"] = secs
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(body)
		})
	}
}

func setHeaders(w http.ResponseWriter, info Info) {
	if info.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
}
