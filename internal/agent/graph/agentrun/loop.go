// Package agentrun runs the bounded tool-calling loop shared by every
// sub-agent handler.
package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/pkg/logger"
)

// maxToolPayload caps how much tool output is echoed back to the model.
const maxToolPayload = 8000

// Loop binds a fixed toolset to a model for one turn and iterates call,
// execute, respond until the model returns plain content or the budget runs
// out. Termination is guaranteed by both the step bound and the wall-clock
// timeout.
type Loop struct {
	Model    model.ChatModel
	Tools    []tool.InvokableTool
	MaxSteps int
	Timeout  time.Duration
	// Fallback is returned when the loop ends without usable content.
	Fallback string
	// UserID is injected into every tool call's arguments, overriding
	// whatever the model supplied.
	UserID string
	// OnToolExecuted, when set, runs after each tool call with its name.
	// The audit facilitator uses it to re-fetch authoritative state after
	// mutating calls.
	OnToolExecuted func(ctx context.Context, toolName string)
}

// Run executes the loop over the prepared message list. msgs must already be
// system-first; the slice is appended to, never mutated in place.
func (l *Loop) Run(ctx context.Context, msgs []*schema.Message) (string, error) {
	maxSteps := l.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 8
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	byName := make(map[string]tool.InvokableTool, len(l.Tools))
	for _, t := range l.Tools {
		info, err := t.Info(ctx)
		if err != nil {
			return "", fmt.Errorf("tool info: %w", err)
		}
		byName[info.Name] = t
	}

	conv := make([]*schema.Message, len(msgs))
	copy(conv, msgs)

	var last *schema.Message
	for step := 0; step < maxSteps; step++ {
		out, err := l.Model.Generate(ctx, conv)
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}
		last = out

		if len(out.ToolCalls) == 0 {
			if out.Content != "" {
				return out.Content, nil
			}
			return l.Fallback, nil
		}

		conv = append(conv, out)
		for i, tc := range out.ToolCalls {
			callID := tc.ID
			if callID == "" {
				callID = fmt.Sprintf("call_%d", i)
			}
			result := l.execute(ctx, byName, tc)
			conv = append(conv, schema.ToolMessage(result, callID))
		}
	}

	// Step budget exhausted: the last plain content wins, tool closure or
	// not.
	logx.Warn().Int("max_steps", maxSteps).Msg("tool loop exhausted step budget")
	if last != nil && last.Content != "" {
		return last.Content, nil
	}
	return l.Fallback, nil
}

// execute runs one tool call, always producing a payload for the model. A
// tool failure becomes an error envelope so the model can adapt or
// apologize; it never aborts the turn.
func (l *Loop) execute(ctx context.Context, byName map[string]tool.InvokableTool, tc schema.ToolCall) string {
	name := tc.Function.Name
	t, ok := byName[name]
	if !ok {
		logx.Warn().Str("tool", name).Msg("model requested unknown tool")
		return errPayload(fmt.Sprintf("unknown tool %q", name))
	}

	args := injectUserID(tc.Function.Arguments, l.UserID)
	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		logx.Error().Err(err).Str("tool", name).Msg("tool execution failed")
		return errPayload(err.Error())
	}
	if l.OnToolExecuted != nil {
		l.OnToolExecuted(ctx, name)
	}
	if len(out) > maxToolPayload {
		out = out[:maxToolPayload] + "... (truncated)"
	}
	return out
}

// injectUserID forces the tenant id into the arguments JSON, overriding any
// model-supplied value. Unparseable arguments are replaced with a minimal
// object so scoping still applies.
func injectUserID(raw, userID string) string {
	if userID == "" {
		return raw
	}
	var args map[string]any
	if raw == "" || json.Unmarshal([]byte(raw), &args) != nil || args == nil {
		args = map[string]any{}
	}
	args["user_id"] = userID
	b, err := json.Marshal(args)
	if err != nil {
		return raw
	}
	return string(b)
}

func errPayload(msg string) string {
	b, _ := json.Marshal(map[string]any{"success": false, "error": msg})
	return string(b)
}
