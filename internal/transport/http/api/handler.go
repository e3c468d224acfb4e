package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/basel-ax/promptpix/internal/domain"
	"github.com/basel-ax/promptpix/internal/log"
	"github.com/gin-gonic/gin"
)

const welcomeMessage = "Welcome to the Image Generator API. Use the /generate-image endpoint to generate images."

type generateImageRequest struct {
	Prompt string `json:"prompt"`
}

type generateImageResponse struct {
	Image string `json:"image"`
}

type handler struct {
	service domain.ImageGenerationService
}

func (h *handler) home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": welcomeMessage})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) generateImage(c *gin.Context) {
	ctx := c.Request.Context()
	logger := log.FromContextOrDiscard(ctx)

	var req generateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Info("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body."})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No prompt provided."})
		return
	}

	logger.Info("received prompt", "prompt", req.Prompt)

	resp, err := h.service.GenerateImage(ctx, domain.ImageGenerationRequest{Prompt: req.Prompt})
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No prompt provided."})
		return
	case err != nil:
		logger.Error("image generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate the image."})
		return
	}

	c.JSON(http.StatusOK, generateImageResponse{Image: resp.Image.Base64()})
}
