package generator

import (
	"context"
	"errors"
	"fmt"

	"poof_palace_engine/logging"
	"poof_palace_engine/retry"
)

// Agent 负责调用 LLM 并清理输出，是 TextGenerator 的默认实现。
type Agent struct {
	llm    LLMClient
	policy retry.Policy
	logger logging.Logger
}

func NewAgent(llm LLMClient, policy retry.Policy, logger logging.Logger) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Agent{llm: llm, policy: policy, logger: logger}, nil
}

// Generate sends one system/user exchange. Every failure, including an
// unusable reply, is wrapped in ErrGeneration.
func (a *Agent) Generate(ctx context.Context, system, user string) (string, error) {
	prompt := Prompt{System: system, User: user}

	attempt := 0
	out, err := retry.Do(ctx, a.policy, func() (string, error) {
		attempt++
		raw, err := a.llm.Complete(ctx, prompt)
		if err != nil {
			a.logger.WithError(err).WithField("attempt", attempt).Warn("text generation attempt failed")
			return "", err
		}
		return PostProcess(raw)
	})
	if err != nil {
		return "", fmt.Errorf("%w: text: %w", ErrGeneration, err)
	}
	return out, nil
}
