// Package server contains the HTTP handlers and routing for the quill API.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"quill/internal/blob"
	"quill/internal/bootstrap"
	"quill/internal/config"
	"quill/internal/featureflags"
	"quill/internal/media"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/policy"
	"quill/internal/repository"
	"quill/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ServiceName identifies the API in metrics and traces.
const ServiceName = "quill-api"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	featureFlags   *featureflags.Manager
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	stopHub        context.CancelFunc
	blobs          *blob.LocalStore

	authService     *service.AuthService
	postService     *service.PostService
	commentService  *service.CommentService
	categoryService *service.CategoryService
	tagService      *service.TagService
	userService     *service.UserService

	// globalLimit is the per-IP request budget per minute; zero disables it
	globalLimit int
}

// NewServer connects to the database and Redis and builds a Server.
func NewServer(cfg *config.Config) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil: caching, rate limits, token revocation, events and
// the notification socket are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg.JWTTTLMinutes <= 0 {
		return nil, fmt.Errorf("JWT_TTL_MINUTES must be positive")
	}
	maxUploadMB := cfg.ImageMaxUploadSizeMB
	if maxUploadMB <= 0 {
		maxUploadMB = 5
	}

	store := repository.NewDatastore(db)
	flags := featureflags.NewManager(cfg.FeatureFlags)
	pol := policy.New(flags)
	blobs := blob.NewLocalStore(cfg.UploadDir, cfg.MediaBaseURL)
	notifier := notifications.NewNotifier(redisClient)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics(ServiceName),
		featureFlags:   flags,
		notifier:       notifier,
		blobs:          blobs,
		globalLimit:    60,
	}
	s.authService = service.NewAuthService(store, redisClient, cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	s.postService = service.NewPostService(store, pol, blobs, media.NewNormalizer(maxUploadMB), notifier)
	s.commentService = service.NewCommentService(store, pol, notifier)
	s.categoryService = service.NewCategoryService(store)
	s.tagService = service.NewTagService(store)
	s.userService = service.NewUserService(store)
	if redisClient != nil {
		s.hub = notifications.NewHub()
	}
	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		// uploaded images are served to other origins
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry CORS headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		MaxAge:       86400,
	}))

	if s.globalLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        s.globalLimit,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
				})
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Static(s.config.MediaBaseURL, s.blobs.Root(), fiber.Static{MaxAge: 3600})

	api := app.Group("/api")
	api.Get("/metrics/dashboard", s.AuthRequired(), s.AdminRequired(), monitor.New(monitor.Config{
		Title: "Quill API Metrics",
	}))

	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(s.redis, 5, time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, 5, time.Minute, "login"), s.Login)
	auth.Get("/me", s.AuthRequired(), s.Me)
	auth.Post("/logout", s.AuthRequired(), s.Logout)
	auth.Post("/refresh", s.AuthRequired(), s.Refresh)

	postLimit := middleware.RateLimitByActor(s.redis, 20, 10, time.Minute, "posts")
	posts := api.Group("/posts", s.OptionalAuth(), postLimit)
	posts.Get("/", s.ListPosts)
	posts.Get("/search", s.SearchPosts)
	posts.Post("/", s.AuthRequired(), s.CreatePost)
	// specific /:id/<resource> routes before the generic /:id ones
	posts.Get("/:id/likes", s.ListLikes)
	posts.Post("/:id/like", s.AuthRequired(), s.LikePost)
	posts.Delete("/:id/like", s.AuthRequired(), s.UnlikePost)
	posts.Put("/:id/tags", s.AuthRequired(), s.SyncTags)
	posts.Post("/:id/tags", s.AuthRequired(), s.AttachTags)
	posts.Delete("/:id/tags/:tagId", s.AuthRequired(), s.DetachTag)
	posts.Post("/:id/image", s.AuthRequired(), s.UploadImage)
	posts.Delete("/:id/image", s.AuthRequired(), s.DeleteImage)
	posts.Delete("/:id/force", s.AuthRequired(), s.ForceDeletePost)
	posts.Get("/:id/comments", s.ListComments)
	posts.Post("/:id/comments", s.AuthRequired(), s.CreateComment)
	posts.Get("/:id/comments/:commentId", s.GetComment)
	posts.Put("/:id/comments/:commentId", s.AuthRequired(), s.UpdateComment)
	posts.Patch("/:id/comments/:commentId", s.AuthRequired(), s.UpdateComment)
	posts.Delete("/:id/comments/:commentId", s.AuthRequired(), s.DeleteComment)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", s.AuthRequired(), s.UpdatePost)
	posts.Patch("/:id", s.AuthRequired(), s.UpdatePost)
	posts.Delete("/:id", s.AuthRequired(), s.DeletePost)

	categories := api.Group("/categories", s.OptionalAuth())
	categories.Get("/", s.ListCategories)
	categories.Get("/:id", s.GetCategory)
	categories.Post("/", s.AuthRequired(), s.CreateCategory)
	categories.Put("/:id", s.AuthRequired(), s.UpdateCategory)
	categories.Patch("/:id", s.AuthRequired(), s.UpdateCategory)
	categories.Delete("/:id", s.AuthRequired(), s.DeleteCategory)

	tags := api.Group("/tags", s.OptionalAuth())
	tags.Get("/", s.ListTags)
	tags.Get("/:id", s.GetTag)
	tags.Post("/", s.AuthRequired(), s.CreateTag)
	tags.Put("/:id", s.AuthRequired(), s.UpdateTag)
	tags.Patch("/:id", s.AuthRequired(), s.UpdateTag)
	tags.Delete("/:id", s.AuthRequired(), s.DeleteTag)

	users := api.Group("/users", s.AuthRequired(), s.AdminRequired())
	users.Get("/", s.ListUsers)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Patch("/:id", s.UpdateUser)

	ws := api.Group("/ws")
	ws.Post("/ticket", s.AuthRequired(), s.IssueSocketTicket)
	ws.Get("/notifications", s.SocketAuth(), s.NotificationsSocket())

	admin := api.Group("/admin", s.AuthRequired(), s.AdminRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Quill API",
		BodyLimit: (s.config.ImageMaxUploadSizeMB + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck reports database and Redis health. Redis is optional, so
// only a database failure makes the API unready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status, overall := fiber.StatusOK, "healthy"
	switch {
	case dbStatus != "healthy":
		status, overall = fiber.StatusServiceUnavailable, "unhealthy"
	case redisStatus != "healthy":
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"service": ServiceName,
		"status":  overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// StartRealtime subscribes the notification hub to the event channels. It
// is a no-op without Redis.
func (s *Server) StartRealtime(ctx context.Context) error {
	if s.hub == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := s.hub.Start(ctx, s.notifier); err != nil {
		cancel()
		return fmt.Errorf("start notification hub: %w", err)
	}
	s.stopHub = cancel
	return nil
}

// Start builds the app and listens on the configured port.
func (s *Server) Start() error {
	if err := s.StartRealtime(context.Background()); err != nil {
		middleware.Logger.Warn("realtime notifications disabled", "error", err)
		s.hub = nil
	}
	s.app = s.App()
	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops the HTTP server and closes the database and Redis.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		if s.stopHub != nil {
			s.stopHub()
		}
		_ = s.hub.Shutdown(ctx)
	}
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}
	log.Println("Server shutdown complete")
	return nil
}
