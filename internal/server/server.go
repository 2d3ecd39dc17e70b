package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vsmm-world/userapi/config"
	"github.com/vsmm-world/userapi/internal/audit"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/internal/db"
	"github.com/vsmm-world/userapi/internal/handlers"
	"github.com/vsmm-world/userapi/internal/mq"
	"github.com/vsmm-world/userapi/internal/services"
	"github.com/vsmm-world/userapi/internal/store"
	"go.uber.org/zap"
)

// Deps are the collaborators the router is composed from.
type Deps struct {
	Config   config.Config
	Logger   *zap.Logger
	Security *audit.SecurityLogger
	Tokens   *auth.TokenIssuer
	Auth     *services.AuthService
	Users    *services.UserService
}

// NewRouter builds the HTTP routing tree and middleware stack.
func NewRouter(d Deps) *chi.Mux {
	resp := handlers.NewResponder(d.Config.Debug(), d.Logger)
	gate := handlers.NewGate(d.Tokens, d.Auth, d.Security, resp)
	rl := d.Config.RateLimit

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(d.Logger.Named("http")),
		middleware.Timeout(60*time.Second),
		securityHeaders(d.Config.Debug()),
		corsHandler(d.Config.CORSOrigin),
		middleware.RequestSize(maxBodyBytes),
		suspiciousPayload(d.Security, resp),
	)
	router.NotFound(resp.NotFound)
	router.MethodNotAllowed(resp.MethodNotAllowed)

	router.Get("/", handlers.Index)
	router.Get("/health", resp.Health)
	router.Get("/healthz", handlers.Healthz)

	router.Route("/api", func(r chi.Router) {
		var limits handlers.AuthLimits
		if rl.Enabled {
			r.Use(rateLimiter(rl.Max, rl.Window, "Too many requests from this IP, please try again later.", d.Security, resp))
			limits.Login = failureLimiter(rl.AuthMax, rl.AuthWindow, "Too many authentication attempts, please try again later.", d.Logger, d.Security, resp)
			limits.Register = rateLimiter(rl.RegisterMax, rl.RegisterWindow, "Too many registration attempts, please try again later.", d.Security, resp)
		}

		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, handlers.NewAuthHandler(d.Auth, resp), gate, limits)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, handlers.NewUserHandler(d.Users, resp), gate)
		})
	})

	return router
}

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *zap.Logger
	closers    []func(context.Context) error
}

// New connects the configured store and broker and composes the service.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required: %w", auth.ErrSecretMissing)
	}
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	s := &Server{log: log}

	repo, closeStore, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeStore)

	var secOpts []audit.Option
	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	if broker != nil {
		secOpts = append(secOpts, audit.WithPublisher(broker, cfg.MQ.SecurityChannel))
		s.closers = append(s.closers, func(context.Context) error { return broker.Close() })
	}

	security := audit.NewSecurityLogger(log, secOpts...)
	s.closers = append(s.closers, security.Close)
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	s.router = NewRouter(Deps{
		Config:   cfg,
		Logger:   log,
		Security: security,
		Tokens:   tokens,
		Auth: services.NewAuthService(repo, hasher, tokens, security, log,
			services.WithAdminSignup(cfg.Auth.AllowAdminSignup)),
		Users: services.NewUserService(repo, hasher, log),
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// OpenStore connects the user store selected by cfg.Database.Driver and
// returns a function releasing its connection.
func OpenStore(ctx context.Context, cfg config.Config, log *zap.Logger) (services.UserRepository, func(context.Context) error, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		repo := store.NewMongoUserRepository(database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		log.Info("connected to mongodb", zap.String("database", cfg.Mongo.Database))
		return repo, client.Disconnect, nil
	case config.DriverPostgres:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to postgres", zap.String("database", cfg.Database.DBName))
		return store.NewUserRepository(conn), func(context.Context) error { return conn.Close() }, nil
	case config.DriverMemory:
		log.Warn("using in-memory user store; data is lost on restart")
		return store.NewMemoryUserRepository(), func(context.Context) error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and releases the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.close(ctx))
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}
