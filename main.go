package main

import (
	"context"
	"log"
	"time"

	"learnloop/config"
	"learnloop/handlers"
	"learnloop/llm"
	"learnloop/middleware"
	"learnloop/mlclient"
	"learnloop/routes"
	"learnloop/seed"
	"learnloop/services"
	"learnloop/store"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if err := handlers.RegisterValidators(); err != nil {
		log.Fatal("Failed to register validators:", err)
	}

	st := openStore(cfg)

	if cfg.SeedQuestionsDir != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		n, err := seed.Questions(ctx, st, cfg.SeedQuestionsDir)
		cancel()
		if err != nil {
			log.Fatal("Failed to seed questions:", err)
		}
		log.Printf("Seeded %d questions from %s", n, cfg.SeedQuestionsDir)
	}

	// Redis backs the leaderboard and the recommendation cache. Without it
	// rankings come from the database and nothing is cached.
	var (
		leaderboard services.Leaderboard
		cache       services.Cache
	)
	redisClient := config.InitRedis(cfg)
	if err := pingRedis(redisClient); err != nil {
		log.Printf("Redis unavailable, continuing without it: %v", err)
		redisClient.Close()
	} else {
		leaderboard = services.NewRedisLeaderboard(redisClient)
		cache = services.NewRedisCache(redisClient)
	}

	var generator llm.Generator
	if cfg.GeminiAPIKey != "" {
		generator = llm.NewClient(llm.Config{
			APIKey:        cfg.GeminiAPIKey,
			Model:         cfg.GeminiModel,
			FallbackModel: cfg.GeminiFallbackModel,
			BaseURL:       cfg.GeminiBaseURL,
		})
	} else {
		log.Println("GEMINI_API_KEY not set, AI quizzes use the question bank and the coach uses canned replies")
	}
	ml := mlclient.New(cfg.AIServiceURL)

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run()

	// Initialize services
	authService := services.NewAuthService(st, cfg.JWTSecret, cfg.JWTExpiresIn)
	questionService := services.NewQuestionService(st)
	recorder := services.NewAttemptRecorder(st, leaderboard, hub)
	quizService := services.NewQuizService(st, recorder, leaderboard, cache)
	aiQuizService := services.NewAIQuizService(st, generator, questionService, recorder)
	onboardingService := services.NewOnboardingService(st, ml)
	dashboardService := services.NewDashboardService(st, ml, cache)
	insightsService := services.NewInsightsService(st, ml, leaderboard)
	coachService := services.NewCoachService(st, generator)
	leaderboardService := services.NewLeaderboardService(st, leaderboard)

	if leaderboard != nil {
		if err := leaderboardService.Rebuild(context.Background()); err != nil {
			log.Printf("Failed to build leaderboard: %v", err)
		}
		scheduler, err := leaderboardService.StartRebuildSchedule(cfg.LeaderboardRebuildSpec)
		if err != nil {
			log.Fatal("Invalid LEADERBOARD_REBUILD_SPEC:", err)
		}
		defer scheduler.Stop()
	}

	// Setup Gin router
	router := gin.Default()
	router.Use(middleware.CORS(cfg.CORSOrigin))

	routes.SetupRoutes(router, routes.Handlers{
		Auth:        handlers.NewAuthHandler(authService),
		Quiz:        handlers.NewQuizHandler(quizService, questionService),
		AIQuiz:      handlers.NewAIQuizHandler(aiQuizService),
		Onboarding:  handlers.NewOnboardingHandler(onboardingService),
		Dashboard:   handlers.NewDashboardHandler(dashboardService),
		Insights:    handlers.NewInsightsHandler(insightsService),
		Coach:       handlers.NewCoachHandler(coachService),
		Leaderboard: handlers.NewLeaderboardHandler(leaderboardService),
		WS:          handlers.NewWSHandler(hub, cfg.CORSOrigin),
	}, authService)

	// Start server
	log.Printf("Server starting on %s", cfg.Addr())
	if err := router.Run(cfg.Addr()); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func openStore(cfg *config.Config) store.Store {
	if cfg.StoreDriver == "memory" {
		log.Println("Using in-memory store; data is lost on restart")
		return store.NewMemory()
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	pg := store.NewPostgres(db)
	if err := pg.Migrate(); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	return pg
}

func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
