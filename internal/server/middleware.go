package server

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"github.com/vsmm-world/userapi/internal/apperr"
	"github.com/vsmm-world/userapi/internal/audit"
	"github.com/vsmm-world/userapi/internal/handlers"
	"go.uber.org/zap"
)

const maxBodyBytes = 10 << 20

var suspiciousPatterns = []string{
	"<script",
	"javascript:",
	"onerror=",
	"onload=",
	"eval(",
	"expression(",
}

// requestLogger logs every request once it has been served.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info(r.Method+" "+r.URL.Path,
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", audit.RequestFrom(r).IP),
				zap.String("userAgent", r.UserAgent()),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func securityHeaders(debug bool) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data: https:",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		STSPreload:            true,
		ForceSTSHeader:        !debug,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
	})
	return s.Handler
}

func corsHandler(origin string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// suspiciousPayload logs request bodies containing script-injection
// markers. The request is always passed on.
func suspiciousPayload(security *audit.SecurityLogger, resp *handlers.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if err != nil {
				resp.Fail(w, r, &apperr.Error{Status: http.StatusRequestEntityTooLarge, Message: "Request entity too large"})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if found := matchSuspicious(body); len(found) > 0 {
				security.LogSuspiciousActivity(r.Context(), audit.RequestFrom(r), map[string]any{"patterns": found})
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchSuspicious(body []byte) []string {
	lower := strings.ToLower(string(body))
	var found []string
	for _, p := range suspiciousPatterns {
		if strings.Contains(lower, p) {
			found = append(found, p)
		}
	}
	return found
}

// rateLimiter limits requests per client IP and answers 429 with the envelope.
func rateLimiter(limit int, window time.Duration, message string, security *audit.SecurityLogger, resp *handlers.Responder) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			security.LogRateLimit(r.Context(), audit.RequestFrom(r))
			resp.Fail(w, r, apperr.TooManyRequests(message))
		}),
	)
}

// failureLimiter limits requests per client IP but only counts responses
// with an error status, so successful logins never use up the budget.
func failureLimiter(limit int, window time.Duration, message string, log *zap.Logger, security *audit.SecurityLogger, resp *handlers.Responder) func(http.Handler) http.Handler {
	limiter := httprate.NewRateLimiter(limit, window, httprate.WithKeyFuncs(httprate.KeyByIP))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := httprate.KeyByIP(r)
			if err != nil {
				resp.Fail(w, r, apperr.Internal("Rate limit check failed", err))
				return
			}
			_, rate, err := limiter.Status(key)
			if err != nil {
				resp.Fail(w, r, apperr.Internal("Rate limit check failed", err))
				return
			}
			if int(math.Round(rate)) >= limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				security.LogRateLimit(r.Context(), audit.RequestFrom(r))
				resp.Fail(w, r, apperr.TooManyRequests(message))
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if ww.Status() >= http.StatusBadRequest {
				currentWindow := time.Now().UTC().Truncate(window)
				if err := limiter.Counter().IncrementBy(key, currentWindow, 1); err != nil {
					log.Error("rate limit increment", zap.String("key", key), zap.Error(err))
				}
			}
		})
	}
}
