// Package conversations shapes the transcript into model input.
package conversations

import (
	"github.com/cloudwego/eino/schema"

	"github.com/riskpilot-core/server/internal/agent/model"
)

// DefaultWindow is how many recent exchanges accompany each model call.
const DefaultWindow = 5

// Window returns the most recent n exchanges.
func Window(history []model.Exchange, n int) []model.Exchange {
	if n <= 0 {
		n = DefaultWindow
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// BuildMessages assembles the system-first message list: system prompt, the
// windowed transcript as alternating user/assistant messages, then the
// current input.
func BuildMessages(systemPrompt string, history []model.Exchange, window int, input string) []*schema.Message {
	recent := Window(history, window)
	msgs := make([]*schema.Message, 0, 2*len(recent)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt))
	for _, ex := range recent {
		msgs = append(msgs, schema.UserMessage(ex.User))
		msgs = append(msgs, schema.AssistantMessage(ex.Assistant, nil))
	}
	msgs = append(msgs, schema.UserMessage(input))
	return msgs
}
