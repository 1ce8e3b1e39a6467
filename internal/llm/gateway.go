// Package llm implements the unified language-model gateway (spec §4.4):
// cloud, local, and hybrid backends behind one domain.LLMGateway interface.
package llm

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
	"github.com/aletheiafact/ai-task-worker/internal/observability"
)

// New builds the domain.LLMGateway variant selected by cfg.ProcessingMode.
func New(cfg config.Config, envelope *httpenvelope.Envelope, metrics *observability.Metrics, logger *slog.Logger) (domain.LLMGateway, error) {
	switch cfg.ProcessingMode {
	case config.ModeCloud:
		return newCloud(cfg, envelope, metrics, logger), nil
	case config.ModeLocal:
		return newLocal(cfg, envelope, metrics, logger), nil
	case config.ModeHybrid:
		return &hybridGateway{
			local:  newLocal(cfg, envelope, metrics, logger),
			cloud:  newCloud(cfg, envelope, metrics, logger),
			logger: logger,
		}, nil
	default:
		return nil, fmt.Errorf("op=llm.New: unknown processing mode %q", cfg.ProcessingMode)
	}
}

// newCloud returns the real OpenAI-shaped backend, or the explicit mock
// variant when the configured key is absent or the documented placeholder
// (spec §9's "explicit mock provider variant" redesign note).
func newCloud(cfg config.Config, envelope *httpenvelope.Envelope, metrics *observability.Metrics, logger *slog.Logger) domain.LLMGateway {
	if cfg.OpenAIKeyIsPlaceholder() {
		return newMockCloud(logger)
	}
	return &cloudGateway{
		baseURL:  cfg.OpenAIBaseURL,
		apiKey:   cfg.OpenAIAPIKey,
		envelope: envelope,
		metrics:  metrics,
		logger:   logger,
		throttle: newCloudThrottle(cfg, logger),
	}
}

// newCloudThrottle wires an optional Redis-backed token bucket around the
// cloud backend, bucketed per OpenAI base URL so distinct endpoints don't
// share a budget. Returns nil (no throttling) when CloudThrottleRedisAddr
// is unset.
func newCloudThrottle(cfg config.Config, logger *slog.Logger) *redisThrottle {
	if cfg.CloudThrottleRedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.CloudThrottleRedisAddr})
	return newRedisThrottle(client, cfg.OpenAIBaseURL, cfg.CloudThrottlePerMinute, logger)
}
