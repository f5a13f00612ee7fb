package coaching

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"example.com/fitcoach/internal/domain"
)

// Gateway returns the provider's raw response envelope for a prompt.
type Gateway interface {
	GetAnswer(ctx context.Context, prompt string) (string, error)
}

// Generator produces a recommendation for an activity by prompting the AI
// provider and parsing its answer.
type Generator struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewGenerator constructs a Generator. A nil logger disables logging.
func NewGenerator(gateway Gateway, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{gateway: gateway, logger: logger}
}

// Generate runs prompt → gateway → parser. Gateway errors are returned as is;
// malformed answers come back as *ParseError.
func (g *Generator) Generate(ctx context.Context, activity domain.Activity) (*domain.Recommendation, error) {
	prompt := BuildPrompt(activity)

	raw, err := g.gateway.GetAnswer(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("ai gateway: %w", err)
	}
	g.logger.Debug("ai response received",
		zap.String("activity_id", activity.ID),
		zap.Int("bytes", len(raw)),
	)

	rec, err := ParseResponse(activity, raw)
	if err != nil {
		g.logger.Warn("ai response rejected",
			zap.String("activity_id", activity.ID),
			zap.Error(err),
		)
		return nil, err
	}
	return rec, nil
}
