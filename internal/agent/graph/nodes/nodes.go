// Package nodes implements the graph nodes: the top-level orchestrator, the
// domain routers and the terminal handlers.
package nodes

import (
	"context"
	"strings"

	"github.com/riskpilot-core/server/internal/agent/graph/prompts"
	"github.com/riskpilot-core/server/internal/agent/graph/sticky"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
	"github.com/riskpilot-core/server/pkg/logger"
)

// Graph node names.
const (
	NodeOrchestrator     = "orchestrator"
	NodeClarify          = "clarify"
	NodeRiskRouter       = "risk_router"
	NodeRiskGeneration   = "risk_generation"
	NodeRiskRegister     = "risk_register"
	NodeMatrix           = "matrix_recommendation"
	NodeRiskKnowledge    = "risk_knowledge"
	NodeControlRouter    = "control_router"
	NodeGenerateControl  = "generate_control"
	NodeControlLibrary   = "control_library"
	NodeControlKnowledge = "control_knowledge"
	NodeKnowledge        = "knowledge"
	NodeAudit            = "audit_facilitator"
)

const apology = "I'm sorry, something went wrong while I was handling that. Please try again."

const genericClarify = "Could you tell me a bit more about what you'd like to do? I can help with risks, controls, audits, or general compliance questions."

// Deps carries everything the nodes need. A single Deps value backs the
// whole compiled graph.
type Deps struct {
	Classifier model.ChatModel
	Responder  model.ChatModel
	Sticky     sticky.Predicate

	Searcher vector.Searcher
	Risks    store.RiskStore
	Controls store.ControlStore
	Profiles store.ProfileStore
	Audits   store.AuditStore

	Loop          model.ToolLoopConfig
	HistoryWindow int
}

func (d *Deps) orgVars(s *model.TurnState) prompts.OrgVars {
	return prompts.OrgVars{
		OrganizationName: s.User.OrganizationName,
		Location:         s.User.Location,
		Domain:           s.User.Domain,
	}
}

// Safe wraps a node handler with the blanket recovery policy: no node may
// let a failure reach the graph engine. On error or panic the turn still
// terminates with an apologetic reply, history appended and the route reset.
func Safe(name string, fn func(ctx context.Context, s *model.TurnState) error) func(ctx context.Context, s *model.TurnState) (*model.TurnState, error) {
	return func(ctx context.Context, s *model.TurnState) (out *model.TurnState, err error) {
		defer func() {
			if r := recover(); r != nil {
				logx.Error().Str("node", name).Interface("panic", r).Msg("node panicked")
				if s.Output == "" {
					s.Finish(apology, s.ActiveMode)
				}
				out, err = s, nil
			}
		}()
		if err := fn(ctx, s); err != nil {
			logx.Error().Err(err).Str("node", name).Msg("node failed")
			if s.Output == "" {
				s.Finish(apology, s.ActiveMode)
			}
		}
		return s, nil
	}
}

// Clarify is the terminal node for ambiguous turns: it asks the route's
// question and ends the turn without touching the active mode.
func (d *Deps) Clarify(_ context.Context, s *model.TurnState) error {
	q := s.Route.Question
	if q == "" {
		q = genericClarify
	}
	s.Finish(q, s.ActiveMode)
	return nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
