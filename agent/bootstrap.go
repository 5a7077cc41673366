package agent

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/orchestra-ai/agentcore/features/model/anthropic"
	"github.com/orchestra-ai/agentcore/features/model/bedrock"
	"github.com/orchestra-ai/agentcore/features/model/middleware"
	"github.com/orchestra-ai/agentcore/runtime/agent/model"
)

// NewModelClient builds the provider-specific model.Client selected by
// cfg.Provider and wraps it with the adaptive rate limiter. bedrockRT
// is only consulted (and required) when cfg.Provider is ProviderTenant; the
// AWS SDK session/credential chain that produces it is environment-specific
// and deliberately left to the caller rather than guessed here.
func NewModelClient(ctx context.Context, cfg Config, bedrockRT *bedrockruntime.Client) (model.Client, error) {
	var base model.Client
	switch cfg.Provider {
	case ProviderDirect:
		direct, err := anthropic.NewFromAPIKey(cfg.APIKey, cfg.ModelID)
		if err != nil {
			return nil, fmt.Errorf("agent: building anthropic client: %w", err)
		}
		base = direct
	case ProviderTenant:
		if bedrockRT == nil {
			return nil, fmt.Errorf("agent: provider=tenant requires a bedrock runtime client")
		}
		bc, err := bedrock.New(bedrockRT, bedrock.Options{
			DefaultModel: cfg.TenantDeploymentID,
			MaxTokens:    4096,
			Temperature:  cfg.SubtaskTemperature,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("agent: building bedrock client: %w", err)
		}
		base = bc
	default:
		return nil, fmt.Errorf("agent: unknown provider %q", cfg.Provider)
	}

	limiter := middleware.NewAdaptiveRateLimiter(ctx, nil, "", cfg.RateLimitTPM, cfg.RateLimitMaxTPM)
	return limiter.Middleware()(base), nil
}
