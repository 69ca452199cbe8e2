// Package server is the composition root: it builds every dependency from
// config.Config, mounts the routes and runs the HTTP server until a signal
// arrives.
//
// Dependency flow:
//
//	config → stores (sessionstore or sqlite + broker) → directory → session.Manager
//	       → services (auth, recovery) → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/pluk/internal/auth"
	"github.com/sakif/pluk/internal/collab"
	"github.com/sakif/pluk/internal/config"
	"github.com/sakif/pluk/internal/directory"
	"github.com/sakif/pluk/internal/handler"
	"github.com/sakif/pluk/internal/middleware"
	"github.com/sakif/pluk/internal/realtime"
	"github.com/sakif/pluk/internal/recovery"
	"github.com/sakif/pluk/internal/repository"
	"github.com/sakif/pluk/internal/repository/sessionstore"
	sqliteRepo "github.com/sakif/pluk/internal/repository/sqlite"
	"github.com/sakif/pluk/internal/service"
	"github.com/sakif/pluk/internal/session"
)

// Server owns the router and every resource that must be released on
// shutdown: the session manager, the sqlite pool and the redis client.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db        *sqliteRepo.DB // nil with the session backend
	redis     *redis.Client  // nil without REDIS_ADDR
	sessions  *session.Manager
	stopSweep context.CancelFunc
}

// Options replace the outbound collaborators. Tests use them to avoid the
// network; a nil field keeps the default built from config.
type Options struct {
	Weather    collab.WeatherProvider
	Places     collab.PlaceFinder
	Identifier collab.SpeciesIdentifier
	Passwords  *auth.PasswordService
}

// New wires the application. On error every resource opened so far is
// closed again.
func New(cfg config.Config, logger *slog.Logger, opts Options) (_ *Server, err error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	// One session-scoped store always holds the login snapshots. With the
	// session backend it also holds accounts and plants.
	store := sessionstore.New()
	var (
		plants   repository.PlantStore   = store
		accounts repository.AccountStore = store
	)

	if cfg.Backend == config.BackendRemote {
		var broker realtime.Broker
		if cfg.RedisAddr != "" {
			s.redis, err = realtime.NewRedisClient(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				return nil, fmt.Errorf("connecting to redis: %w", err)
			}
			broker = realtime.NewRedisBroker(s.redis, cfg.RedisChannelPrefix, logger)
		}

		s.db, err = sqliteRepo.New(cfg.DBPath, broker, logger)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		plants, accounts = s.db, s.db
	}

	passwords := opts.Passwords
	if passwords == nil {
		passwords = auth.NewPasswordService()
	}

	var (
		dir         directory.Directory
		recoverySvc *service.RecoveryService
	)
	switch cfg.Identity {
	case config.IdentityRemote:
		remote := directory.NewRemote(cfg.IdentityBaseURL, cfg.IdentityAPIKey, cfg.CollabTimeout, logger)
		dir = remote
		recoverySvc = service.NewEmailRecovery(remote, logger)
	default:
		local := directory.NewLocal(accounts, passwords, logger)
		dir = local
		registry := recovery.NewRegistry(recovery.NewMachine(local, logger), cfg.RecoveryIdleTimeout)
		recoverySvc = service.NewLocalRecovery(registry, logger)
	}

	weather := opts.Weather
	if weather == nil {
		weather = collab.NewOpenMeteo(cfg.WeatherBaseURL, cfg.CollabTimeout, logger)
	}
	places := opts.Places
	if places == nil {
		places = collab.NewOverpass(cfg.OverpassURL, cfg.CollabTimeout, logger)
	}
	identifier := opts.Identifier
	if identifier == nil {
		identifier = collab.NewStubIdentifier(cfg.IdentifyDelay)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s.sessions = session.NewManager(session.Deps{
		Directory:   dir,
		Plants:      plants,
		Environment: collab.NewEnvironment(weather, places, cfg.SearchRadius, logger),
		Logger:      logger,
	}, store, cfg.SessionIdleTimeout)

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	go s.sessions.Run(sweepCtx, session.DefaultSweepInterval)

	authSvc := service.NewAuthService(s.sessions, tokens, logger)
	s.setupRoutes(tokens, authSvc, recoverySvc, identifier)

	logger.Info("application wired",
		slog.String("backend", cfg.Backend),
		slog.String("identity", cfg.Identity),
		slog.Bool("redis", s.redis != nil),
	)
	return s, nil
}

// setupRoutes mounts:
//
//	GET    /health
//	GET    /api/species
//	POST   /api/auth/register | /api/auth/login | /api/auth/logout
//	POST   /api/recovery, /api/recovery/{id}/email|answer|password
//	DELETE /api/recovery/{id}
//
// and, behind RequireAuth:
//
//	GET    /api/me
//	GET    /api/plants, POST /api/plants, GET /api/plants/{id}
//	POST   /api/plants/{id}/water, /api/plants/{id}/sun
//	DELETE /api/plants/{id}?confirm=true
//	PUT    /api/preferences/dark-mode, /api/account/security-question
//	GET    /api/environment, POST /api/identify
func (s *Server) setupRoutes(tokens *auth.TokenService, authSvc *service.AuthService, recoverySvc *service.RecoveryService, identifier collab.SpeciesIdentifier) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// A typed nil *sqlite.DB would be a non-nil Pinger.
	var pinger handler.Pinger
	if s.db != nil {
		pinger = s.db
	}
	s.router.Get("/health", handler.HealthHandler(pinger))

	authHandler := handler.NewAuthHandler(authSvc, s.config.SecureCookies, s.logger)
	plantHandler := handler.NewPlantHandler(authSvc, nil, s.logger)
	accountHandler := handler.NewAccountHandler(authSvc, s.logger)
	recoveryHandler := handler.NewRecoveryHandler(recoverySvc, s.logger)
	envHandler := handler.NewEnvironmentHandler(authSvc, identifier, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/species", handler.HandleSpecies)

		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.With(auth.OptionalAuth(tokens)).Post("/auth/logout", authHandler.HandleLogout)

		r.Route("/recovery", func(r chi.Router) {
			r.Post("/", recoveryHandler.HandleBegin)
			r.Post("/{id}/email", recoveryHandler.HandleEmail)
			r.Post("/{id}/answer", recoveryHandler.HandleAnswer)
			r.Post("/{id}/password", recoveryHandler.HandlePassword)
			r.Delete("/{id}", recoveryHandler.HandleCancel)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authHandler.HandleMe)

			r.Get("/plants", plantHandler.HandleList)
			r.Post("/plants", plantHandler.HandleCreate)
			r.Get("/plants/{id}", plantHandler.HandleGet)
			r.Post("/plants/{id}/water", plantHandler.HandleWater)
			r.Post("/plants/{id}/sun", plantHandler.HandleSun)
			r.Delete("/plants/{id}", plantHandler.HandleDelete)

			r.Put("/preferences/dark-mode", accountHandler.HandleDarkMode)
			r.Put("/account/security-question", accountHandler.HandleSecurityQuestion)

			r.Get("/environment", envHandler.HandleEnvironment)
			r.Post("/identify", envHandler.HandleIdentify)
		})
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases sessions first so their subscriptions end before the
// stores under them go away. It is safe to call more than once.
func (s *Server) Close() error {
	var errs []error
	if s.stopSweep != nil {
		s.stopSweep()
	}
	if s.sessions != nil {
		errs = append(errs, s.sessions.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
		s.redis = nil
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes everything.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
		// photos arrive inline, so reads get more room than the default
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
