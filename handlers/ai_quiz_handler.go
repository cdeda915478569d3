package handlers

import (
	"net/http"

	"learnloop/services"

	"github.com/gin-gonic/gin"
)

type AIQuizHandler struct {
	aiQuizService *services.AIQuizService
}

func NewAIQuizHandler(aiQuizService *services.AIQuizService) *AIQuizHandler {
	return &AIQuizHandler{
		aiQuizService: aiQuizService,
	}
}

func (h *AIQuizHandler) Generate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.GenerateAIQuizRequest
	if !bindJSON(c, &req) {
		return
	}

	quiz, err := h.aiQuizService.Generate(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

func (h *AIQuizHandler) Submit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.SubmitAIQuizRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.aiQuizService.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
