// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	_ "carkey/docs" // swagger docs
	"carkey/internal/config"
	"carkey/internal/featureflags"
	"carkey/internal/middleware"
	"carkey/internal/models"
	"carkey/internal/notifications"
	"carkey/internal/repository"
	"carkey/internal/service"
	"carkey/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	tokens         *middleware.TokenManager
	store          storage.ObjectStore
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	errorRecorder  *service.ErrorRecorder

	userService         *service.UserService
	boardService        *service.BoardService
	feedbackService     *service.ArticleService
	noticeService       *service.ArticleService
	replyServices       map[models.ContentKind]*service.ReplyService
	notificationService *service.NotificationService
	mediaService        *service.MediaService
	adminRecords        *service.AdminRecords
}

// NewServerWithDeps creates a Server from dependencies opened by the bootstrap
// package (or by tests).
// redisClient may be nil; realtime events then stay on this instance.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, store storage.ObjectStore) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("carkey-api"),
		tokens:         middleware.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL()),
		store:          store,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		hub:            notifications.NewHub(),
	}
	if bad := s.featureFlags.Invalid(); len(bad) > 0 {
		middleware.Logger.Warn("ignoring malformed FEATURE_FLAGS entries", "entries", bad)
	}
	s.notifier = notifications.NewNotifier(redisClient)
	if redisClient == nil {
		s.notifier.WithLocalFallback(s.hub)
	}

	userRepo := repository.NewUserRepository(db)
	targets := repository.NewTargetRepository(db)
	images := make(map[models.ContentKind]repository.ImageRepository, len(models.ContentKinds))
	replies := make(map[models.ContentKind]repository.ReplyRepository, len(models.ContentKinds))
	for _, kind := range models.ContentKinds {
		images[kind] = repository.NewImageRepository(db, kind)
		replies[kind] = repository.NewReplyRepository(db, kind)
	}

	s.mediaService = service.NewMediaService(store,
		[]repository.ImageRepository{images[models.KindBoard], images[models.KindFeedback], images[models.KindNotice]},
		targets,
		service.MediaOptions{
			PresignTTL:      cfg.PresignTTL(),
			MaxUploadSizeMB: cfg.ImageMaxUploadSizeMB,
			Flags:           s.featureFlags,
		})
	cleaner := service.ObjectCleaner(s.mediaService.PurgeObjects)
	policy := service.Policy{DeploymentMode: cfg.DeploymentMode}

	s.userService = service.NewUserService(userRepo, cleaner)
	s.boardService = service.NewBoardService(repository.NewBoardRepository(db),
		images[models.KindBoard], replies[models.KindBoard], policy, cfg.BestBoardThreshold, cleaner)
	s.feedbackService = service.NewArticleService(repository.NewArticleRepository(db, models.KindFeedback),
		images[models.KindFeedback], replies[models.KindFeedback], policy, cleaner)
	s.noticeService = service.NewArticleService(repository.NewArticleRepository(db, models.KindNotice),
		images[models.KindNotice], replies[models.KindNotice], policy, cleaner)
	s.notificationService = service.NewNotificationService(repository.NewNotificationRepository(db), s.notifier)

	s.replyServices = make(map[models.ContentKind]*service.ReplyService, len(models.ContentKinds))
	for _, kind := range models.ContentKinds {
		s.replyServices[kind] = service.NewReplyService(replies[kind], targets, userRepo, s.notificationService, policy)
	}

	errorLogs := repository.NewErrorLogRepository(db)
	s.errorRecorder = service.NewErrorRecorder(errorLogs)
	s.adminRecords = service.NewAdminRecords(service.RecordRepositories{
		Scores:     repository.NewScoreRepository(db),
		Errors:     errorLogs,
		Analyses:   repository.NewAnalysisRepository(db),
		Recommends: repository.NewRecommendRecordRepository(db),
		BestBoards: repository.NewBestBoardRecordRepository(db),
	}, s.boardService)

	return s, nil
}

// NewApp builds a Fiber app with the error handler and body limit this server expects.
func (s *Server) NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "CarKey API",
		BodyLimit:    s.bodyLimit(),
		ErrorHandler: s.errorHandler,
	})
}

// bodyLimit leaves room for a handful of maximum-size images in one multipart upload.
func (s *Server) bodyLimit() int {
	return int(s.mediaService.MaxUploadBytes())*8 + 1024*1024
}

// errorHandler turns stray errors and recovered panics into JSON and logs
// server-side ones to error_logs.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return models.RespondWithError(c, fe.Code, err)
	}
	s.recordError(c, fiber.StatusInternalServerError, err)
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

func (s *Server) recordError(c *fiber.Ctx, status int, err error) {
	middleware.Logger.ErrorContext(c.UserContext(), "request failed",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"error", err.Error(),
	)
	s.errorRecorder.Record(fmt.Sprintf("HTTP_%d", status), fmt.Sprintf("%s %s: %v", c.Method(), c.Path(), err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery; the recovered error reaches errorHandler.
	app.Use(recover.New())

	app.Use(requestid.New())

	// Propagate request and user IDs into the request context
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (200 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        200,
		Expiration: 1 * time.Minute,
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

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if dir, ok := localMediaDir(s.store); ok {
		app.Static(s.config.MediaBaseURL, dir, fiber.Static{ByteRange: true, MaxAge: 3600})
	}

	api := app.Group("/api")
	api.Get("/", s.ReadinessCheck)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "CarKey API Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := s.AuthRequired()
	optional := s.OptionalAuth()

	// Accounts
	api.Post("/register", middleware.RateLimit(s.redis, middleware.Rule{Name: "register", Limit: 5, Window: 10 * time.Minute}), s.Register)
	api.Post("/token", middleware.RateLimit(s.redis, middleware.Rule{Name: "token", Limit: 10, Window: 5 * time.Minute}), s.ObtainToken)
	api.Post("/token/refresh", middleware.RateLimit(s.redis, middleware.Rule{Name: "token_refresh", Limit: 30, Window: 5 * time.Minute}), s.RefreshToken)
	api.Post("/auth/logout", auth, s.Logout)
	api.Get("/me", auth, s.Me)
	api.Get("/user/check-username", middleware.RateLimit(s.redis, middleware.Rule{Name: "check_username", Limit: 30, Window: time.Minute}), s.CheckUsername)
	api.Get("/user/check-email", middleware.RateLimit(s.redis, middleware.Rule{Name: "check_email", Limit: 30, Window: time.Minute}), s.CheckEmail)

	users := api.Group("/users", auth)
	users.Get("/", s.ListUsers)
	users.Get("/list", s.AdminRequired(), s.ListAllUsers)
	users.Post("/:id/set_password", s.SetPassword)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Patch("/:id", s.UpdateUser)
	users.Delete("/:id", s.DeleteUser)

	// Boards. Specific routes go before /:id.
	boards := api.Group("/boards", auth)
	boards.Get("/", s.ListBoards)
	boards.Post("/", middleware.RateLimit(s.redis, middleware.Rule{Name: "create_board", Limit: 10, Window: time.Minute}), s.CreateBoard)
	boards.Post("/upload", s.UploadImages(models.KindBoard))
	boards.Post("/:id/like", s.LikeBoard)
	boards.Delete("/:id/like", s.UnlikeBoard)
	boards.Get("/:id", s.GetBoard)
	boards.Put("/:id", s.UpdateBoard)
	boards.Patch("/:id", s.UpdateBoard)
	boards.Delete("/:id", s.DeleteBoard)

	best := api.Group("/bestboards", auth)
	best.Get("/", s.ListBestBoards)
	best.Get("/:id", s.GetBestBoard)

	s.articleRoutes(api.Group("/feedbacks", auth), s.feedbackService)
	s.articleRoutes(api.Group("/notices", optional), s.noticeService)

	s.replyRoutes(api.Group("/replies", auth), s.replyServices[models.KindBoard])
	s.replyRoutes(api.Group("/feedback-replies", auth), s.replyServices[models.KindFeedback])
	s.replyRoutes(api.Group("/notice-replies", auth), s.replyServices[models.KindNotice])

	for _, kind := range models.ContentKinds {
		imgs := api.Group("/"+string(kind)+"-images", auth)
		imgs.Get("/", s.ListImages(kind))
		imgs.Delete("/:id", s.DeleteImage(kind))
	}
	api.Post("/s3-presigned-upload", auth, middleware.RateLimit(s.redis, middleware.Rule{Name: "presign", Limit: 30, Window: time.Minute}), s.PresignUpload)

	notifs := api.Group("/notifications", auth)
	notifs.Get("/", s.ListNotifications)
	notifs.Post("/mark_all_read", s.MarkAllNotificationsRead)
	notifs.Get("/unread_count", s.UnreadNotificationCount)
	notifs.Post("/:id/mark_read", s.MarkNotificationRead)
	notifs.Get("/:id", s.GetNotification)
	notifs.Delete("/:id", s.DeleteNotification)

	// Realtime
	api.Post("/ws/ticket", auth, s.IssueWSTicket)
	api.Get("/ws", requireUpgrade, s.WSTicketRequired(), s.WebsocketHandler())

	// Staff-only records
	admin := api.Group("", auth, s.AdminRequired())
	recordRoutes(admin.Group("/analysis"), s, s.adminRecords.Analyses)
	recordRoutes(admin.Group("/recommends"), s, s.adminRecords.Recommends)
	recordRoutes(admin.Group("/scores"), s, s.adminRecords.Scores)
	recordRoutes(admin.Group("/errors"), s, s.adminRecords.Errors)
	recordRoutes(admin.Group("/admin/best-boards"), s, s.adminRecords.BestBoards)
	admin.Get("/admin/feature-flags", s.GetFeatureFlags)
}

// localMediaDir reports the directory to serve when files live on local disk.
func localMediaDir(store storage.ObjectStore) (string, bool) {
	d, ok := store.(interface{ Dir() string })
	if !ok {
		return "", false
	}
	return d.Dir(), true
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"version": "1.0.0",
		"status":  overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
			"storage":  s.store.Backend(),
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.NewApp()
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if s.redis != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				log.Printf("failed to start %s wiring: %v", s.hub.Name(), err)
			}
		}()
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down %s: %v", s.hub.Name(), err)
	}

	// Let pending error_logs writes land before the pool closes.
	s.errorRecorder.Wait()

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
