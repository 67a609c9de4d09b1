package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"

	"github.com/riskpilot-core/server/internal/agent/graph/agentrun"
	"github.com/riskpilot-core/server/internal/agent/graph/conversations"
	"github.com/riskpilot-core/server/internal/agent/graph/parsers"
	"github.com/riskpilot-core/server/internal/agent/graph/prompts"
	"github.com/riskpilot-core/server/internal/agent/graph/tools"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/pkg/logger"
)

// RiskRouter resolves which risk specialist handles the turn. Unlike the
// top-level classifier there is no confidence gate: the domain is already
// established, so any parseable intent is honored and parse failures fall
// back to the knowledge specialist.
func (d *Deps) RiskRouter(ctx context.Context, s *model.TurnState) error {
	s.ActiveMode = model.ModeRiskRouter

	// A sticky follow-up arrives with the target already chosen.
	if s.Route.Target != "" {
		return nil
	}

	msgs := conversations.BuildMessages(prompts.RiskIntentRouter(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := d.Classifier.Generate(ctx, msgs)
	if err != nil {
		logx.Warn().Err(err).Msg("risk routing failed, defaulting to knowledge")
		s.Route.Target = model.TargetRiskKnowledge
		return nil
	}

	intent := parsers.ParseRiskIntent(out.Content)
	switch intent.Intent {
	case "risk_generation":
		s.Route.Target = model.TargetRiskGeneration
	case "risk_register":
		s.Route.Target = model.TargetRiskRegister
	case "matrix_recommendation":
		s.Route.Target = model.TargetMatrixRecommendation
	default:
		s.Route.Target = model.TargetRiskKnowledge
	}
	return nil
}

// RiskGeneration proposes new risks grounded in the organisation's recorded
// risk profiles.
func (d *Deps) RiskGeneration(ctx context.Context, s *model.TurnState) error {
	profileTool := tools.NewGetRiskProfiles(d.Profiles)

	var summary string
	if ps, err := d.Profiles.ListProfiles(ctx, s.User.UserID); err == nil {
		var b strings.Builder
		for _, p := range ps {
			fmt.Fprintf(&b, "- %s (%s appetite): %s\n", p.Name, p.Appetite, p.Description)
		}
		summary = b.String()
	}

	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    []tool.InvokableTool{profileTool},
		MaxSteps: d.Loop.MaxSteps,
		Timeout:  d.Loop.Timeout,
		Fallback: "I prepared a set of candidate risks but could not finish formatting them. Please ask again and I'll regenerate them.",
		UserID:   s.User.UserID,
	}
	msgs := conversations.BuildMessages(prompts.RiskGeneration(d.orgVars(s), summary), s.History, d.HistoryWindow, s.Input)
	out, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}
	s.Finish(out, model.ModeRiskGeneration)
	return nil
}

// RiskRegister answers questions over the existing register through
// semantic search. Register lookups are short interactions, so the loop gets
// a tighter step budget than generation.
func (d *Deps) RiskRegister(ctx context.Context, s *model.TurnState) error {
	searchTool := tools.NewSemanticRiskSearch(d.Searcher)

	steps := d.Loop.MaxSteps
	if steps > 4 {
		steps = 4
	}
	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    []tool.InvokableTool{searchTool},
		MaxSteps: steps,
		Timeout:  d.Loop.Timeout,
		Fallback: "I searched your risk register but could not compose a summary. Please ask me about your risk profiles, risk categories, or search for specific risks.",
		UserID:   s.User.UserID,
	}
	msgs := conversations.BuildMessages(prompts.RiskRegister(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}
	s.Finish(out, model.ModeRiskRegister)
	return nil
}

// RiskKnowledge handles conceptual risk questions with knowledge base
// support.
func (d *Deps) RiskKnowledge(ctx context.Context, s *model.TurnState) error {
	kbTool := tools.NewKnowledgeBaseSearch(d.Searcher)
	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    []tool.InvokableTool{kbTool},
		MaxSteps: d.Loop.MaxSteps,
		Timeout:  d.Loop.Timeout,
		Fallback: "Ask me about your risk framework, categories, or search for specific risks.",
		UserID:   s.User.UserID,
	}
	msgs := conversations.BuildMessages(prompts.RiskKnowledge(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}
	s.Finish(out, model.ModeRiskKnowledge)
	return nil
}
