// Package server is the web front end: a Fiber app that renders the login,
// registration and dashboard pages for many browsers at once.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"armp/internal/apiclient"
	"armp/internal/config"
	"armp/internal/dashboard"
	"armp/internal/featureflags"
	"armp/internal/guard"
	"armp/internal/middleware"
	"armp/internal/models"
	"armp/internal/observability"
	"armp/internal/session"
	"armp/internal/tokenstore"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	redis          *redis.Client
	api            *apiclient.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	featureFlags   *featureflags.Manager
	sessions       *sessionRegistry
	views          *views
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
}

// NewServer creates a server calling the API at cfg.APIBaseURL. redisClient
// may be nil, in which case tokens are kept in memory per browser session.
func NewServer(cfg *config.Config, redisClient *redis.Client) (*Server, error) {
	v, err := loadViews()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	s := &Server{
		config:         cfg,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("armp-web"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		views:          v,
		api: apiclient.New(apiclient.Options{
			BaseURL:   cfg.APIBaseURL,
			Timeout:   cfg.APITimeout(),
			RateLimit: cfg.APIRateLimit,
		}),
	}
	s.sessions = newSessionRegistry(cfg.SessionIdle(), s.newBrowserSession)
	if raw := s.featureFlags.Raw(); len(raw) > 0 {
		observability.Logger.Info("feature flags configured", slog.Any("flags", raw))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = fiber.New(fiber.Config{
		AppName:      "Access Request Management Portal",
		ErrorHandler: s.handleError,
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)

	return s, nil
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// newBrowserSession wires the core for one browser: a token store keyed by
// sid, an API client reading that token, and the session on top of it.
// Dashboards built later reuse the same client and store.
func (s *Server) newBrowserSession(sid string) (*session.Store, dashboardBuilder) {
	var tokens tokenstore.Store
	if s.redis != nil {
		tokens = tokenstore.NewRedisStore(s.redis, sid, s.config.TokenTTL())
	} else {
		tokens = tokenstore.NewMemoryStore()
	}
	client := s.api.WithTokenSource(tokens)

	flags := s.featureFlags.Snapshot(sid)
	observability.Logger.Debug("browser session created",
		slog.String("session_id", sid),
		slog.Any("feature_flags", flags),
	)
	store := session.New(client, tokens, session.Options{
		TokenRefresh: flags[featureflags.TokenRefresh],
	})

	opts := dashboard.Options{
		OnUnauthorized: store.Invalidate,
		PageSize:       s.config.APIPageSize,
	}
	return store, func() (*dashboard.Requester, *dashboard.Approver) {
		return dashboard.NewRequester(client, opts), dashboard.NewApprover(client, opts)
	}
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID, reused as the X-Request-ID of outgoing API calls
	app.Use(requestid.New(requestid.Config{
		Generator: observability.NewCorrelationID,
	}))

	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Everything below belongs to a browser session.
	pages := app.Group("", s.BrowserSession())

	pages.Get("/login", s.GuestOnly(), s.LoginPage)
	pages.Post("/login", s.GuestOnly(), middleware.RateLimit(
		s.redis, s.config.AuthRateLimit, time.Minute, "login"), s.Login)
	pages.Get("/register", s.GuestOnly(), s.RegisterPage)
	pages.Post("/register", s.GuestOnly(), middleware.RateLimit(
		s.redis, s.config.AuthRateLimit, time.Minute, "register"), s.Register)
	pages.Post("/logout", s.Logout)

	requester := pages.Group("/requester", s.RequireRole(models.RoleRequester))
	requester.Get("/", s.RequesterDashboard)
	requester.Post("/form/open", s.OpenRequestForm)
	requester.Post("/form/close", s.CloseRequestForm)
	requester.Post("/requests", s.SubmitRequest)

	approver := pages.Group("/approver", s.RequireRole(models.RoleApprover))
	approver.Get("/", s.ApproverDashboard)
	// Specific /reject routes before the generic approve route
	approver.Post("/requests/:id/reject/open", s.OpenReject)
	approver.Post("/requests/:id/reject/close", s.CloseReject)
	approver.Post("/requests/:id/reject", s.ConfirmReject)
	approver.Post("/requests/:id/approve", s.Approve)
	approver.Post("/approvers/open", s.OpenCreateApprover)
	approver.Post("/approvers/close", s.CloseCreateApprover)
	approver.Post("/approvers", s.CreateApprover)

	// Unknown paths land on the login page, which forwards signed-in users
	// to their dashboard.
	pages.Use(func(c *fiber.Ctx) error {
		return c.Redirect(guard.LoginPath, fiber.StatusSeeOther)
	})
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Without Redis the server
// still serves, with tokens held in memory, so that is reported as degraded
// rather than unready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	redisStatus := "healthy"
	status := fiber.StatusOK
	overallStatus := "healthy"

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
			status = fiber.StatusServiceUnavailable
			overallStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"redis": redisStatus,
		},
		"sessions":      s.sessions.Len(),
		"feature_flags": s.featureFlags.Raw(),
		"time":          time.Now(),
	})
}

// handleError renders unhandled errors as a page for browsers and as the
// standard JSON error body for everything else.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	observability.Logger.ErrorContext(c.UserContext(), "unhandled error",
		slog.Int("status", status),
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)

	if c.Accepts(fiber.MIMETextHTML) == fiber.MIMETextHTML {
		return s.render(c, status, pageError, errorPage{Status: status, Message: "Something went wrong. Please try again."})
	}
	if status == fiber.StatusInternalServerError {
		err = models.NewInternalError(err)
	}
	return models.RespondWithError(c, status, err)
}

// Start starts the server and the idle-session sweeper.
func (s *Server) Start() error {
	go s.sessions.Run(s.shutdownCtx)

	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			observability.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	observability.Logger.Info("server shutdown complete")
	return nil
}
