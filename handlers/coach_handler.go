package handlers

import (
	"net/http"

	"learnloop/services"

	"github.com/gin-gonic/gin"
)

type CoachHandler struct {
	coachService *services.CoachService
}

func NewCoachHandler(coachService *services.CoachService) *CoachHandler {
	return &CoachHandler{
		coachService: coachService,
	}
}

func (h *CoachHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.coachService.Health())
}

func (h *CoachHandler) Coach(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CoachRequest
	if !bindJSON(c, &req) {
		return
	}

	reply, err := h.coachService.Coach(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": reply})
}
