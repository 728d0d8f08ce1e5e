package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/api/handlers"
	"github.com/relaypost/relaypost/internal/api/middleware"
	"github.com/relaypost/relaypost/internal/cache"
	job "github.com/relaypost/relaypost/internal/jobs"
	"github.com/relaypost/relaypost/internal/platform"
	"github.com/relaypost/relaypost/internal/queue"
	"github.com/relaypost/relaypost/internal/repository"
	"github.com/relaypost/relaypost/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	store := cache.NewRedisStore(cfg.RedisURI)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	linkedAccountRepo := repository.NewLinkedAccountRepository(db)
	outboundPostRepo := repository.NewOutboundPostRepository(db)
	postedContentRepo := repository.NewPostedContentRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	registry := platform.NewRegistry(
		platform.NewTwitterAdapter(cfg.Twitter),
		platform.NewLinkedInAdapter(cfg.LinkedIn),
		platform.NewInstagramAdapter(cfg.Instagram),
		platform.NewTiktokAdapter(cfg.Tiktok),
	)

	quotaService := service.NewQuotaService(linkedAccountRepo, postedContentRepo)
	tokenService := service.NewTokenService(*cfg, registry, linkedAccountRepo)
	accountService := service.NewAccountService(*cfg, registry, linkedAccountRepo, quotaService, tokenService, store)
	publishService := service.NewPublishService(*cfg, db, outboundPostRepo, linkedAccountRepo, postedContentRepo, subscriptionRepo, quotaService, tokenService, registry)
	analyticsService := service.NewAnalyticsService(postedContentRepo, linkedAccountRepo, tokenService, registry, store)
	mediaService := service.NewMediaService(*cfg, mediaAssetRepo)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	account := handlers.NewAccountHandler(accountService, subscriptionRepo, *cfg)
	app.Get("/social/:provider/callback", account.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/social/providers", account.ListProviders)
	api.Get("/social/:provider/auth-url", account.GetAuthURL)
	api.Get("/social/accounts", account.ListAccounts)
	api.Patch("/social/accounts/:id/settings", account.UpdateAccountSettings)
	api.Delete("/social/accounts/:id", account.DisconnectAccount)

	publish := handlers.NewPublishHandler(publishService, client)
	api.Post("/social/posts", publish.PublishPost)
	api.Get("/social/posts", publish.ListHistory)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/social/media", media.UploadMedia)
	api.Get("/social/media", media.ListMedia)

	analytics := handlers.NewAnalyticsHandler(analyticsService)
	api.Get("/social/analytics", analytics.GetSummary)
	api.Post("/social/analytics/:id/refresh", analytics.RefreshPost)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(linkedAccountRepo, tokenService)

	// queue
	queueW := queue.NewQueue(publishService, analyticsService, client)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)
		mux.HandleFunc(queue.TaskTypeRefreshAnalytics, queueW.HandleRefreshAnalyticsTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
