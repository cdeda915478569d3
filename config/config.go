package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port        string
	BindAddress string
	CORSOrigin  string

	StoreDriver string // postgres | memory
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	JWTSecret    string
	JWTExpiresIn time.Duration

	GeminiAPIKey        string
	GeminiModel         string
	GeminiFallbackModel string
	GeminiBaseURL       string

	AIServiceURL string

	SeedQuestionsDir       string
	LeaderboardRebuildSpec string
}

func Load() *Config {
	// .env is optional; the process environment wins.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		BindAddress:            getEnv("BIND_ADDRESS", ""),
		CORSOrigin:             getEnv("CORS_ORIGIN", "http://localhost:5173"),
		StoreDriver:            getEnv("STORE_DRIVER", "postgres"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "learnloop"),
		DBPassword:             getEnv("DB_PASSWORD", "learnloop123"),
		DBName:                 getEnv("DB_NAME", "learnloop"),
		RedisHost:              getEnv("REDIS_HOST", "localhost"),
		RedisPort:              getEnv("REDIS_PORT", "6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		JWTSecret:              getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTExpiresIn:           getDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiFallbackModel:    getEnv("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash-8b"),
		GeminiBaseURL:          getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		AIServiceURL:           getEnv("AI_SERVICE_URL", "http://localhost:5001"),
		SeedQuestionsDir:       getEnv("SEED_QUESTIONS_DIR", ""),
		LeaderboardRebuildSpec: getEnv("LEADERBOARD_REBUILD_SPEC", "@daily"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid duration %s=%q, using %s: %v", key, value, defaultValue, err)
		return defaultValue
	}
	return d
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddress + ":" + c.Port
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	return client
}
