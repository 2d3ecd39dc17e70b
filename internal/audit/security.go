// Package audit records security-relevant outcomes as structured events.
//
// Events are written to the injected zap logger and, when a publisher is
// configured, forwarded as JSON to a broker channel for downstream consumers.
package audit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	AuthFailure         EventType = "AUTH_FAILURE"
	AuthSuccess         EventType = "AUTH_SUCCESS"
	AuthLocked          EventType = "AUTH_LOCKED"
	InvalidToken        EventType = "INVALID_TOKEN"
	UnauthorizedAccess  EventType = "UNAUTHORIZED_ACCESS"
	SuspiciousActivity  EventType = "SUSPICIOUS_ACTIVITY"
	RateLimit           EventType = "RATE_LIMIT"
	PrivilegeEscalation EventType = "PRIVILEGE_ESCALATION"
)

const (
	publishTimeout   = 2 * time.Second
	publishQueueSize = 256
)

// Event is one security-relevant occurrence.
type Event struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"userId,omitempty"`
	Email     string         `json:"email,omitempty"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"userAgent,omitempty"`
	Path      string         `json:"path"`
	Method    string         `json:"method"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Request identifies the HTTP request an event originated from.
type Request struct {
	IP        string
	UserAgent string
	Path      string
	Method    string
}

// RequestFrom extracts the request identity; chi's RealIP middleware has
// already rewritten RemoteAddr when a proxy header was present.
func RequestFrom(r *http.Request) Request {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip == "" {
		ip = "unknown"
	}
	return Request{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Method:    r.Method,
	}
}

// Publisher forwards encoded events to a broker channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// SecurityLogger is the injected security-event sink. Broker delivery
// happens on a background worker so request handling never waits on it.
type SecurityLogger struct {
	log       *zap.Logger
	publisher Publisher
	channel   string
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

type Option func(*SecurityLogger)

// WithPublisher forwards every event to channel on p.
func WithPublisher(p Publisher, channel string) Option {
	return func(s *SecurityLogger) {
		s.publisher = p
		s.channel = channel
	}
}

func NewSecurityLogger(log *zap.Logger, opts ...Option) *SecurityLogger {
	s := &SecurityLogger{
		log: log.Named("security"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher != nil {
		s.queue = make(chan Event, publishQueueSize)
		s.done = make(chan struct{})
		go s.run()
	}
	return s
}

// Close stops accepting events and waits until queued ones are published
// or ctx ends.
func (s *SecurityLogger) Close(ctx context.Context) error {
	if s.publisher == nil {
		return nil
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log writes e at info for successful authentication and warn otherwise.
func (s *SecurityLogger) Log(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("ip", e.IP),
		zap.String("path", e.Path),
		zap.String("method", e.Method),
		zap.Time("timestamp", e.Timestamp),
	}
	if e.UserID != "" {
		fields = append(fields, zap.String("userId", e.UserID))
	}
	if e.Email != "" {
		fields = append(fields, zap.String("email", e.Email))
	}
	if e.UserAgent != "" {
		fields = append(fields, zap.String("userAgent", e.UserAgent))
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}

	msg := "[SECURITY] " + string(e.Type) + " - " + e.Method + " " + e.Path
	if e.Type == AuthSuccess {
		s.log.Info(msg, fields...)
	} else {
		s.log.Warn(msg, fields...)
	}

	s.enqueue(e)
}

func (s *SecurityLogger) enqueue(e Event) {
	if s.publisher == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- e:
	default:
		s.log.Error("security event queue full, dropping event", zap.String("type", string(e.Type)))
	}
}

func (s *SecurityLogger) run() {
	defer close(s.done)
	for e := range s.queue {
		s.publish(e)
	}
}

func (s *SecurityLogger) publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.log.Error("encode security event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := s.publisher.Publish(ctx, s.channel, data, map[string]string{"type": string(e.Type)}); err != nil {
		s.log.Error("publish security event", zap.String("channel", s.channel), zap.Error(err))
	}
}

func (s *SecurityLogger) LogAuthFailure(ctx context.Context, req Request, email string, details map[string]any) {
	s.Log(ctx, newEvent(AuthFailure, req, "", email, details))
}

func (s *SecurityLogger) LogAuthSuccess(ctx context.Context, req Request, userID, email string) {
	s.Log(ctx, newEvent(AuthSuccess, req, userID, email, nil))
}

func (s *SecurityLogger) LogAccountLocked(ctx context.Context, req Request, email string, details map[string]any) {
	s.Log(ctx, newEvent(AuthLocked, req, "", email, details))
}

// LogInvalidToken records a rejected bearer token; reason separates expired from malformed tokens.
func (s *SecurityLogger) LogInvalidToken(ctx context.Context, req Request, reason string) {
	s.Log(ctx, newEvent(InvalidToken, req, "", "", map[string]any{"reason": reason}))
}

func (s *SecurityLogger) LogUnauthorizedAccess(ctx context.Context, req Request, userID string) {
	s.Log(ctx, newEvent(UnauthorizedAccess, req, userID, "", nil))
}

func (s *SecurityLogger) LogSuspiciousActivity(ctx context.Context, req Request, details map[string]any) {
	s.Log(ctx, newEvent(SuspiciousActivity, req, "", "", details))
}

func (s *SecurityLogger) LogRateLimit(ctx context.Context, req Request) {
	s.Log(ctx, newEvent(RateLimit, req, "", "", nil))
}

func (s *SecurityLogger) LogPrivilegeEscalation(ctx context.Context, req Request, email string, details map[string]any) {
	s.Log(ctx, newEvent(PrivilegeEscalation, req, "", email, details))
}

func newEvent(t EventType, req Request, userID, email string, details map[string]any) Event {
	return Event{
		Type:      t,
		UserID:    userID,
		Email:     email,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Path:      req.Path,
		Method:    req.Method,
		Details:   details,
	}
}
