package inject

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/basel-ax/promptpix/internal/config"
	"github.com/basel-ax/promptpix/internal/domain"
	"github.com/basel-ax/promptpix/internal/log"
	"github.com/basel-ax/promptpix/internal/metrics"
	"github.com/basel-ax/promptpix/internal/service"
	"github.com/basel-ax/promptpix/internal/transport/http/api"
	"github.com/samber/do"
)

func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	logger := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[*slog.Logger](injector, logger)

	do.Provide[*metrics.Metrics](injector, func(i *do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
	do.Provide[domain.ImageGenerationService](injector, func(i *do.Injector) (domain.ImageGenerationService, error) {
		return service.NewImageGenerationService(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*metrics.Metrics](i),
		), nil
	})
	do.Provide[*api.Server](injector, func(i *do.Injector) (*api.Server, error) {
		return api.NewServer(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[domain.ImageGenerationService](i),
			do.MustInvoke[*metrics.Metrics](i),
			do.MustInvoke[*slog.Logger](i),
		), nil
	})

	return injector
}
