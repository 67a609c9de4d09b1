package nodes

import (
	"context"

	"github.com/cloudwego/eino/components/tool"

	"github.com/riskpilot-core/server/internal/agent/graph/agentrun"
	"github.com/riskpilot-core/server/internal/agent/graph/conversations"
	"github.com/riskpilot-core/server/internal/agent/graph/prompts"
	"github.com/riskpilot-core/server/internal/agent/graph/tools"
	"github.com/riskpilot-core/server/internal/agent/model"
)

// Knowledge answers general compliance questions with knowledge base
// support. It is also the landing spot for greetings and small talk.
func (d *Deps) Knowledge(ctx context.Context, s *model.TurnState) error {
	kbTool := tools.NewKnowledgeBaseSearch(d.Searcher)
	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    []tool.InvokableTool{kbTool},
		MaxSteps: d.Loop.MaxSteps,
		Timeout:  d.Loop.Timeout,
		Fallback: "I can help you identify risks, design controls, recommend a risk matrix, or walk through an ISO 27001 readiness audit. What would you like to do?",
		UserID:   s.User.UserID,
	}
	msgs := conversations.BuildMessages(prompts.Knowledge(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}
	s.Finish(out, model.ModeKnowledge)
	return nil
}
