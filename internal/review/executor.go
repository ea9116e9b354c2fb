package review

import (
	"context"
	"strings"

	"tribunal/internal/adapters/ai"
	"tribunal/internal/isolation"
	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

// Executor runs one role-specific review against one isolated evidence scope
// and returns the raw verdict payload. The executor is an opaque free-text
// generator: callers must tolerate malformed output and absorb errors into
// the canonical failure vote.
type Executor interface {
	Review(ctx context.Context, role Role, scope *isolation.Scope) (string, error)
}

// AIExecutor is the production executor backed by a chat completion provider.
type AIExecutor struct {
	provider    ai.ChatProvider
	model       string
	temperature float64
	maxTokens   int
	log         *logger.Logger
}

// Compile-time check
var _ Executor = (*AIExecutor)(nil)

// AIExecutorConfig holds executor settings.
type AIExecutorConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewAIExecutor creates an executor on top of a chat provider.
func NewAIExecutor(provider ai.ChatProvider, cfg AIExecutorConfig) *AIExecutor {
	return &AIExecutor{
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         logger.Get().With("component", "ai_executor"),
	}
}

// Review reads the scope's private evidence copy, builds the role prompt, and
// returns the model's raw response text.
func (e *AIExecutor) Review(ctx context.Context, role Role, scope *isolation.Scope) (string, error) {
	evidence, err := scope.Evidence()
	if err != nil {
		return "", errors.Wrap(err, "read scope evidence")
	}
	requirements, err := scope.Requirements()
	if err != nil {
		return "", errors.Wrap(err, "read scope requirements")
	}

	var user strings.Builder
	if requirements != "" {
		user.WriteString("## Acceptance requirements\n\n")
		user.WriteString(requirements)
		user.WriteString("\n\n")
	}
	user.WriteString("## Evidence\n\n")
	user.WriteString(evidence)

	resp, err := e.provider.Chat(ctx, ai.ChatRequest{
		Model: e.model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: PromptForRole(role)},
			{Role: ai.RoleUser, Content: user.String()},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return "", err
	}

	e.log.Debugf("Reviewer %s completed (tokens: %d)", role, resp.Usage.TotalTokens)
	return resp.Content, nil
}
