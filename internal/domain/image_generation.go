package domain

import (
	"context"
	"errors"
)

var (
	// ErrEmptyPrompt is returned when the prompt is missing or blank
	ErrEmptyPrompt = errors.New("no prompt provided")
	// ErrRateLimited is returned once every retry was answered with 429
	ErrRateLimited = errors.New("upstream rate limit exceeded")
	// ErrEmptyImage is returned when the upstream answered 200 without a body
	ErrEmptyImage = errors.New("upstream returned an empty image")
)

// ImageGenerationRequest represents the parameters for image generation
type ImageGenerationRequest struct {
	Prompt string
}

// ImageGenerationResponse represents the result of a successful generation
type ImageGenerationResponse struct {
	Image    Image
	Attempts int
}

// ImageGenerationService defines the interface for image generation operations
type ImageGenerationService interface {
	// GenerateImage generates an image based on the provided prompt
	GenerateImage(ctx context.Context, req ImageGenerationRequest) (*ImageGenerationResponse, error)
}
