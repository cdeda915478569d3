package handlers

import (
	"context"
	"net/http"

	"learnloop/services"

	"github.com/gin-gonic/gin"
)

// InsightsHandler exposes the prediction service endpoints. Responses keep
// the service's snake_case shapes.
type InsightsHandler struct {
	insightsService *services.InsightsService
}

func NewInsightsHandler(insightsService *services.InsightsService) *InsightsHandler {
	return &InsightsHandler{
		insightsService: insightsService,
	}
}

func (h *InsightsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.insightsService.Health(c.Request.Context()))
}

// serve adapts a per-user insight call into a handler.
func serve[T any](fn func(ctx context.Context, userID uint) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		res, err := fn(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (h *InsightsHandler) PredictPerformance(c *gin.Context) {
	serve(h.insightsService.PredictPerformance)(c)
}

func (h *InsightsHandler) CheckRisk(c *gin.Context) {
	serve(h.insightsService.CheckRisk)(c)
}

func (h *InsightsHandler) PersonalizedPlan(c *gin.Context) {
	serve(h.insightsService.PersonalizedPlan)(c)
}

func (h *InsightsHandler) DailyRecommendations(c *gin.Context) {
	serve(h.insightsService.DailyRecommendations)(c)
}

// GamificationStatus takes an optional ?student_id=, defaulting to the
// caller's own student id.
func (h *InsightsHandler) GamificationStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	status, err := h.insightsService.GamificationStatus(c.Request.Context(), userID, c.Query("student_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
