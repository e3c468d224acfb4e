package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/basel-ax/promptpix/internal/config"
	"github.com/basel-ax/promptpix/internal/domain"
	"github.com/basel-ax/promptpix/internal/infrastructure/huggingface"
	"github.com/basel-ax/promptpix/internal/log"
	"github.com/basel-ax/promptpix/internal/metrics"
	"github.com/jpillora/backoff"
)

// ImageGenerationService implements the domain.ImageGenerationService interface
type ImageGenerationService struct {
	client  *huggingface.Client
	config  *config.Config
	metrics *metrics.Metrics
	backoff backoff.Backoff
}

var _ domain.ImageGenerationService = (*ImageGenerationService)(nil)

// NewImageGenerationService creates a new image generation service
func NewImageGenerationService(cfg *config.Config, m *metrics.Metrics) *ImageGenerationService {
	return &ImageGenerationService{
		client: huggingface.NewClient(cfg.Upstream.URL, cfg.Upstream.APIKey,
			huggingface.WithTimeout(cfg.Upstream.RequestTimeout),
			huggingface.WithMaxImageBytes(cfg.Upstream.MaxImageBytes),
		),
		config:  cfg,
		metrics: m,
		backoff: backoff.Backoff{
			Min:    cfg.Retry.BaseDelay,
			Max:    cfg.Retry.MaxDelay,
			Factor: cfg.Retry.Factor,
			Jitter: cfg.Retry.Jitter,
		},
	}
}

// GenerateImage sends the prompt upstream, retrying with exponential backoff
// while the endpoint keeps answering 429.
func (s *ImageGenerationService) GenerateImage(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageGenerationResponse, error) {
	logger := log.FromContextOrDiscard(ctx)
	start := time.Now()

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}

	if limit := s.config.MaxPromptLength; limit > 0 {
		if truncated := truncatePrompt(prompt, limit); truncated != prompt {
			logger.Info("prompt truncated",
				"from", utf8.RuneCountInString(prompt), "to", limit)
			prompt = truncated
		}
	}

	payload := huggingface.Payload{Inputs: prompt}
	maxAttempts := s.config.Retry.MaxRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		img, err := s.client.Query(ctx, payload)
		if err == nil {
			s.metrics.ObserveUpstream(200)
			s.metrics.ObserveGeneration(metrics.OutcomeSuccess, time.Since(start))
			logger.Info("image generated",
				"attempts", attempt+1, "bytes", len(img.Data), "content_type", img.ContentType)
			return &domain.ImageGenerationResponse{
				Image:    *img,
				Attempts: attempt + 1,
			}, nil
		}

		var statusErr *huggingface.StatusError
		if !errors.As(err, &statusErr) {
			s.metrics.ObserveUpstream(0)
			s.metrics.ObserveGeneration(metrics.OutcomeFailure, time.Since(start))
			logger.Error("error occurred while making request", "attempt", attempt+1, "error", err)
			return nil, fmt.Errorf("failed to generate image: %w", err)
		}

		s.metrics.ObserveUpstream(statusErr.Code)
		logger.Info("upstream responded", "status", statusErr.Code, "attempt", attempt+1)

		if !statusErr.RateLimited() {
			s.metrics.ObserveGeneration(metrics.OutcomeFailure, time.Since(start))
			logger.Error("upstream error response", "status", statusErr.Code, "body", statusErr.Body)
			return nil, fmt.Errorf("failed to generate image: %w", err)
		}

		if attempt == maxAttempts-1 {
			break
		}

		wait := s.retryDelay(attempt, statusErr.RetryAfter)
		s.metrics.ObserveRateLimit()
		logger.Warn("rate limit exceeded, retrying",
			"attempt", attempt+1, "max_attempts", maxAttempts, "wait", wait.String())

		select {
		case <-ctx.Done():
			s.metrics.ObserveGeneration(metrics.OutcomeFailure, time.Since(start))
			return nil, fmt.Errorf("failed to generate image: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	s.metrics.ObserveGeneration(metrics.OutcomeRateLimited, time.Since(start))
	logger.Error("rate limit persisted, giving up", "attempts", maxAttempts)
	return nil, fmt.Errorf("failed to generate image after %d attempts: %w", maxAttempts, domain.ErrRateLimited)
}

// retryDelay prefers the server supplied Retry-After, capped at the configured maximum
func (s *ImageGenerationService) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, s.config.Retry.MaxDelay)
	}
	return s.backoff.ForAttempt(float64(attempt))
}

// truncatePrompt safely truncates a string to the specified length while preserving UTF-8 characters
func truncatePrompt(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}

	var size, n int
	for i := 0; i < length && n < len(s); i++ {
		_, size = utf8.DecodeRuneInString(s[n:])
		n += size
	}

	return s[:n]
}
