package routes

import (
	"net/http"

	"learnloop/handlers"
	"learnloop/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Quiz        *handlers.QuizHandler
	AIQuiz      *handlers.AIQuizHandler
	Onboarding  *handlers.OnboardingHandler
	Dashboard   *handlers.DashboardHandler
	Insights    *handlers.InsightsHandler
	Coach       *handlers.CoachHandler
	Leaderboard *handlers.LeaderboardHandler
	WS          *handlers.WSHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, auth middleware.Authenticator) {
	requireAuth := middleware.AuthMiddleware(auth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", h.Auth.Register)
			authRoutes.POST("/login", h.Auth.Login)
			authRoutes.GET("/me", requireAuth, h.Auth.Me)
			authRoutes.PUT("/profile", requireAuth, h.Auth.UpdateProfile)
			authRoutes.PUT("/change-password", requireAuth, h.Auth.ChangePassword)
		}

		quiz := api.Group("/quiz", requireAuth)
		{
			quiz.POST("/question", h.Quiz.AddQuestion)
			quiz.GET("/questions", h.Quiz.GetQuestions)
			quiz.POST("/submit", h.Quiz.Submit)
			quiz.GET("/progress", h.Quiz.Progress)
			quiz.GET("/history", h.Quiz.History)
			quiz.POST("/reset", h.Quiz.Reset)

			quiz.POST("/ai/generate", h.AIQuiz.Generate)
			quiz.POST("/ai/submit", h.AIQuiz.Submit)
		}

		onboarding := api.Group("/onboarding", requireAuth)
		{
			onboarding.PUT("/academic", h.Onboarding.AcademicProfile)
			onboarding.PUT("/preferences", h.Onboarding.LearningPreferences)
			onboarding.POST("/complete", h.Onboarding.Complete)
		}

		api.GET("/dashboard/summary", requireAuth, h.Dashboard.Summary)

		ml := api.Group("/ml", requireAuth)
		{
			ml.GET("/health", h.Insights.Health)
			ml.POST("/predict-performance", h.Insights.PredictPerformance)
			ml.POST("/check-risk", h.Insights.CheckRisk)
			ml.POST("/personalized-plan", h.Insights.PersonalizedPlan)
			ml.GET("/gamification-status", h.Insights.GamificationStatus)
			ml.POST("/daily-recommendations", h.Insights.DailyRecommendations)
		}

		ai := api.Group("/ai")
		{
			ai.GET("/health", h.Coach.Health)
			ai.POST("/coach", requireAuth, h.Coach.Coach)
		}

		api.GET("/leaderboard", requireAuth, h.Leaderboard.Top)
		api.GET("/achievements", requireAuth, h.Quiz.Achievements)
	}

	// Live events for the authenticated user. Browsers pass ?token=.
	router.GET("/ws", middleware.QueryTokenAuth(auth), h.WS.Connect)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})
}
