package nodes

import (
	"context"
	"strings"

	"github.com/riskpilot-core/server/internal/agent/graph/conversations"
	"github.com/riskpilot-core/server/internal/agent/graph/parsers"
	"github.com/riskpilot-core/server/internal/agent/graph/prompts"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/pkg/logger"
)

// Deterministic routing cues checked before any model call. Order matters:
// audit cues win over control cues, control over risk.
var (
	auditCues   = []string{"audit", "auditor", "evidence", "checklist", "audit plan"}
	controlCues = []string{"control", "controls", "security control", "iso control", "annex a", "control library", "generate control", "create control", "implementation", "control framework"}
	riskCues    = []string{"risk", "risk register", "matrix", "3x3", "4x4", "5x5", "likelihood", "impact", "categories", "generate"}
)

// stickyTargets maps an active sub-handler mode to the route that resumes
// it.
var stickyTargets = map[string]string{
	model.ModeRiskGeneration:       model.TargetRiskGeneration,
	model.ModeRiskRegister:         model.TargetRiskRegister,
	model.ModeMatrixRecommendation: model.TargetMatrixRecommendation,
	model.ModeRiskKnowledge:        model.TargetRiskKnowledge,
}

// StickyModes lists the modes eligible for follow-up stickiness.
func StickyModes() []string {
	modes := make([]string, 0, len(stickyTargets))
	for m := range stickyTargets {
		modes = append(modes, m)
	}
	return modes
}

// Orchestrator classifies the turn into a domain route. It never sets the
// active mode; that belongs to routers and handlers.
func (d *Deps) Orchestrator(ctx context.Context, s *model.TurnState) error {
	s.ResetRoute()
	s.Output = ""

	// Short refinement follow-ups resume the previous handler without
	// reclassifying.
	if target, ok := stickyTargets[s.ActiveMode]; ok && d.Sticky != nil && d.Sticky.IsFollowUp(s.ActiveMode, s.Input) {
		logx.Debug().Str("mode", s.ActiveMode).Msg("sticky follow-up, resuming handler")
		s.Route = model.Route{Domain: model.DomainRisk, Target: target}
		return nil
	}

	lower := strings.ToLower(s.Input)
	switch {
	case containsAny(lower, auditCues):
		s.Route = model.Route{Domain: model.DomainAudit}
		return nil
	case containsAny(lower, controlCues):
		s.Route = model.Route{Domain: model.DomainControl}
		return nil
	case containsAny(lower, riskCues):
		s.Route = model.Route{Domain: model.DomainRisk}
		return nil
	}

	msgs := conversations.BuildMessages(prompts.OrchestratorClassifier(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := d.Classifier.Generate(ctx, msgs)
	if err != nil {
		// Routing failures never propagate; the turn degrades to a
		// clarifying question.
		logx.Warn().Err(err).Msg("orchestrator classification failed")
		s.Route = model.ClarifyRoute(genericClarify)
		return nil
	}

	c := parsers.ParseClassification(out.Content)
	if !c.ShouldRoute() {
		q := c.ClarifyingQuestion
		if q == "" {
			q = genericClarify
		}
		s.Route = model.ClarifyRoute(q)
		return nil
	}

	switch c.Target {
	case "risk":
		s.Route = model.Route{Domain: model.DomainRisk, Params: c.Params}
	case "control":
		s.Route = model.Route{Domain: model.DomainControl, Params: c.Params}
	case "audit":
		s.Route = model.Route{Domain: model.DomainAudit, Params: c.Params}
	case "knowledge":
		s.Route = model.Route{Domain: model.DomainKnowledge, Params: c.Params}
	default:
		logx.Warn().Str("target", c.Target).Msg("classifier named an unknown target")
		s.Route = model.ClarifyRoute(genericClarify)
	}
	return nil
}
