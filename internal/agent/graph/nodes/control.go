package nodes

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/google/uuid"

	"github.com/riskpilot-core/server/internal/agent/graph/agentrun"
	"github.com/riskpilot-core/server/internal/agent/graph/conversations"
	"github.com/riskpilot-core/server/internal/agent/graph/parsers"
	"github.com/riskpilot-core/server/internal/agent/graph/prompts"
	"github.com/riskpilot-core/server/internal/agent/graph/tools"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/pkg/logger"
)

var (
	riskIDPattern = regexp.MustCompile(`(?i)(r-\d+|risk-\d+)`)
	annexPattern  = regexp.MustCompile(`(?i)a\.?\s*(\d+)\.?\s*(\d+)?`)
)

// Category names recognised by the fallback extractor when the classifier
// returns no structured parameters.
var knownRiskCategories = []string{
	"financial", "operational", "strategic", "compliance", "technology",
	"cyber security", "data privacy", "human resources", "environmental",
	"legal", "reputational", "supply chain",
}

// ControlRouter resolves which control specialist handles the turn. The
// verdict carries structured parameters when the classifier extracted them;
// otherwise the raw input is mined with pattern fallbacks.
func (d *Deps) ControlRouter(ctx context.Context, s *model.TurnState) error {
	s.ActiveMode = model.ModeControlRouter

	msgs := conversations.BuildMessages(prompts.ControlClassifier(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := d.Classifier.Generate(ctx, msgs)
	if err != nil {
		logx.Warn().Err(err).Msg("control routing failed")
		s.Route = model.ClarifyRoute("Could you clarify what you'd like to do with controls? I can generate controls, look them up in your library, or answer questions about them.")
		return nil
	}

	decision := parsers.ParseControlDecision(out.Content)
	if !decision.ShouldRoute() {
		q := decision.ClarifyingQuestion
		if q == "" {
			q = "Could you clarify what you'd like to do with controls?"
		}
		s.Route = model.ClarifyRoute(q)
		return nil
	}

	switch decision.SubDomain {
	case "generate_control":
		params := generationParams(decision.Parameters, s.Input)
		s.Route = model.Route{Domain: model.DomainControl, Target: model.TargetGenerateControl, Params: params}
		s.SetContext("control_parameters", params)
	case "control_library":
		params := libraryParams(decision.Parameters, s.Input)
		s.Route = model.Route{Domain: model.DomainControl, Target: model.TargetControlLibrary, Params: params}
		s.SetContext("control_parameters", params)
	case "control_knowledge":
		s.Route = model.Route{Domain: model.DomainControl, Target: model.TargetControlKnowledge}
	default:
		logx.Warn().Str("sub_domain", decision.SubDomain).Msg("control classifier named an unknown sub-domain")
		s.Route = model.ClarifyRoute("Could you clarify what you'd like to do with controls?")
	}
	return nil
}

// generationParams resolves the scoping mode for control generation:
// structured classifier parameters first, then pattern fallbacks against the
// raw input, then "all".
func generationParams(structured map[string]any, input string) map[string]any {
	params := map[string]any{}
	if len(structured) > 0 {
		params["mode"] = stringParam(structured, "mode", "all")
		for _, k := range []string{"risk_category", "risk_id", "risk_description"} {
			if v := stringParam(structured, k, ""); v != "" {
				params[k] = v
			}
		}
		return params
	}

	lower := strings.ToLower(input)
	if strings.Contains(lower, "risk") {
		for _, cat := range knownRiskCategories {
			if strings.Contains(lower, cat) {
				params["mode"] = "category"
				params["risk_category"] = titleCase(cat)
				return params
			}
		}
		if m := riskIDPattern.FindString(input); m != "" {
			params["mode"] = "risk_id"
			params["risk_id"] = strings.ToUpper(m)
			return params
		}
	}
	params["mode"] = "all"
	return params
}

// libraryParams keeps only lookup parameters: mode and risk_category are
// generation concerns and must not leak into library searches.
func libraryParams(structured map[string]any, input string) map[string]any {
	params := map[string]any{}
	for k, v := range structured {
		if k == "mode" || k == "risk_category" {
			continue
		}
		params[k] = v
	}
	if _, ok := params["annex_reference"]; !ok {
		if ref := extractAnnexReference(input); ref != "" {
			params["annex_reference"] = ref
		}
	}
	return params
}

// extractAnnexReference pulls an Annex A reference like A.9.2 out of free
// text, tolerating spacing and missing dots.
func extractAnnexReference(input string) string {
	m := annexPattern.FindStringSubmatch(input)
	if m == nil {
		return ""
	}
	ref := "A." + m[1]
	if m[2] != "" {
		ref += "." + m[2]
	}
	return ref
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// GenerateControl designs controls for the risks in scope. The artifacts
// are parsed out of the reply and attached to the turn context for explicit
// user selection; nothing is persisted here.
func (d *Deps) GenerateControl(ctx context.Context, s *model.TurnState) error {
	searchTool := tools.NewSemanticRiskSearch(d.Searcher)

	mode := stringParam(s.Route.Params, "mode", "all")
	scope := describeScope(mode, s.Route.Params)

	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    []tool.InvokableTool{searchTool},
		MaxSteps: d.Loop.MaxSteps,
		Timeout:  d.Loop.Timeout,
		Fallback: "I drafted controls for the risks in scope but could not finish formatting them. Please ask again.",
		UserID:   s.User.UserID,
	}
	msgs := conversations.BuildMessages(prompts.ControlGeneration(d.orgVars(s), mode, scope), s.History, d.HistoryWindow, s.Input)
	out, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}

	controls := parseGeneratedControls(out, stringParam(s.Route.Params, "risk_id", ""))
	if len(controls) == 0 {
		// Unparseable reply still ends the turn with whatever the model said.
		logx.Warn().Str("node", NodeGenerateControl).Msg("no control artifacts in reply")
		s.Finish(out, model.ModeGenerateControl)
		return nil
	}
	s.SetContext("generated_controls", controls)
	s.Finish(fmt.Sprintf("I designed %d controls for %s. Review them and tell me which ones to save to your control library.", len(controls), scope), model.ModeGenerateControl)
	return nil
}

// parseGeneratedControls decodes the reply into control artifacts, stamping
// each with a fresh id and the in-scope risk id.
func parseGeneratedControls(raw, riskID string) []model.Control {
	var controls []model.Control
	if !parsers.Unmarshal(raw, &controls) {
		return nil
	}
	kept := controls[:0]
	for _, c := range controls {
		if c.Title == "" && c.Description == "" {
			continue
		}
		c.ID = uuid.NewString()
		if riskID != "" && !slices.Contains(c.LinkedRiskIDs, riskID) {
			c.LinkedRiskIDs = append(c.LinkedRiskIDs, riskID)
		}
		kept = append(kept, c)
	}
	return kept
}

func describeScope(mode string, params map[string]any) string {
	switch mode {
	case "category":
		return fmt.Sprintf("risks in the %s category", stringParam(params, "risk_category", "requested"))
	case "risk_id":
		return fmt.Sprintf("risk %s", stringParam(params, "risk_id", "the requested risk"))
	case "risk_description":
		return fmt.Sprintf("the described risk: %s", stringParam(params, "risk_description", ""))
	default:
		return "the full risk register"
	}
}

// ControlLibrary looks up existing controls, exact by Annex A reference
// when one was extracted.
func (d *Deps) ControlLibrary(ctx context.Context, s *model.TurnState) error {
	searchTool := tools.NewSemanticControlSearch(d.Searcher, d.Controls)

	input := s.Input
	if ref := stringParam(s.Route.Params, "annex_reference", ""); ref != "" {
		input = fmt.Sprintf("%s\n(Annex A reference in scope: %s)", s.Input, ref)
	}

	steps := d.Loop.MaxSteps
	if steps > 4 {
		steps = 4
	}
	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    []tool.InvokableTool{searchTool},
		MaxSteps: steps,
		Timeout:  d.Loop.Timeout,
		Fallback: "I searched your control library but could not compose a summary. Try asking for a control by name or Annex A reference.",
		UserID:   s.User.UserID,
	}
	msgs := conversations.BuildMessages(prompts.ControlLibrary(d.orgVars(s)), s.History, d.HistoryWindow, input)
	out, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}
	s.Finish(out, model.ModeControlLibrary)
	return nil
}

// ControlKnowledge answers conceptual control questions.
func (d *Deps) ControlKnowledge(ctx context.Context, s *model.TurnState) error {
	kbTool := tools.NewKnowledgeBaseSearch(d.Searcher)
	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    []tool.InvokableTool{kbTool},
		MaxSteps: d.Loop.MaxSteps,
		Timeout:  d.Loop.Timeout,
		Fallback: "Ask me about specific Annex A controls or control selection and I'll look them up.",
		UserID:   s.User.UserID,
	}
	msgs := conversations.BuildMessages(prompts.ControlKnowledge(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}
	s.Finish(out, model.ModeControlKnowledge)
	return nil
}
