package generator

import (
	"context"
	"fmt"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// It echoes the first quoted fragment of the prompt so the pipeline output
// stays traceable.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	subject := prompt.User
	if start := strings.Index(subject, "'"); start >= 0 {
		if end := strings.LastIndex(subject, "'"); end > start {
			subject = subject[start+1 : end]
		}
	}
	if strings.Contains(prompt.User, "one-sentence idea") {
		return "A tiny royal cat naps on a velvet cushion in a sunbeam.", nil
	}
	return fmt.Sprintf("**Mock** reply for: %s", subject), nil
}
