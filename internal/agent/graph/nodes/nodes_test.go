package nodes

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpilot-core/server/internal/agent/graph/sticky"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
)

// stubModel returns scripted replies, counting calls and recording inputs.
type stubModel struct {
	replies []string
	err     error
	calls   int
	gotMsgs [][]*schema.Message
}

func (m *stubModel) Generate(_ context.Context, msgs []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.gotMsgs = append(m.gotMsgs, msgs)
	i := m.calls
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	m.calls++
	return schema.AssistantMessage(m.replies[i], nil), nil
}

func newDeps(t *testing.T, classifier, responder model.ChatModel) *Deps {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &Deps{
		Classifier:    classifier,
		Responder:     responder,
		Sticky:        sticky.NewKeywordGuard(StickyModes()),
		Searcher:      vector.NewMemoryIndex(vector.NewHashEmbedder(64)),
		Risks:         st,
		Controls:      st,
		Profiles:      st,
		Audits:        st,
		Loop:          model.ToolLoopConfig{MaxSteps: 8},
		HistoryWindow: 5,
	}
}

func turn(input, activeMode string) *model.TurnState {
	return model.NewTurnState(model.TurnInput{
		SessionID: "s1",
		Message:   input,
		User:      model.UserData{UserID: "u1", OrganizationName: "Acme", Location: "Berlin", Domain: "fintech"},
	}, nil, nil, activeMode)
}

func TestOrchestratorDeterministicAuditCue(t *testing.T) {
	classifier := &stubModel{replies: []string{"should not be called"}}
	d := newDeps(t, classifier, nil)

	s := turn("where do we stand with the audit?", "")
	require.NoError(t, d.Orchestrator(context.Background(), s))

	assert.Equal(t, model.DomainAudit, s.Route.Domain)
	assert.Equal(t, 0, classifier.calls, "cue words route without a model call")
}

func TestOrchestratorClassifiesAboveGate(t *testing.T) {
	classifier := &stubModel{replies: []string{`{"action":"route","target":"knowledge","confidence":0.93}`}}
	d := newDeps(t, classifier, nil)

	s := turn("summarize what clause 5 asks of leadership", "")
	require.NoError(t, d.Orchestrator(context.Background(), s))

	assert.Equal(t, model.DomainKnowledge, s.Route.Domain)
	assert.Equal(t, 1, classifier.calls)
}

func TestOrchestratorConfidenceGate(t *testing.T) {
	classifier := &stubModel{replies: []string{`{"action":"route","target":"knowledge","confidence":0.79}`}}
	d := newDeps(t, classifier, nil)

	s := turn("hmm, not sure yet", "")
	require.NoError(t, d.Orchestrator(context.Background(), s))

	assert.Equal(t, model.DomainClarify, s.Route.Domain, "below-threshold verdicts always clarify")
	assert.NotEmpty(t, s.Route.Question)
}

func TestOrchestratorFencedVerdict(t *testing.T) {
	classifier := &stubModel{replies: []string{"```json\n{\"action\":\"route\",\"target\":\"knowledge\",\"confidence\":0.9}\n```"}}
	d := newDeps(t, classifier, nil)

	s := turn("tell me about clause nine", "")
	require.NoError(t, d.Orchestrator(context.Background(), s))
	assert.Equal(t, model.DomainKnowledge, s.Route.Domain)
}

func TestOrchestratorModelErrorClarifies(t *testing.T) {
	classifier := &stubModel{err: errors.New("upstream down")}
	d := newDeps(t, classifier, nil)

	s := turn("help me decide something", "")
	require.NoError(t, d.Orchestrator(context.Background(), s))
	assert.Equal(t, model.DomainClarify, s.Route.Domain)
}

func TestOrchestratorStickyFollowUpSkipsClassification(t *testing.T) {
	classifier := &stubModel{replies: []string{"should not be called"}}
	d := newDeps(t, classifier, nil)

	s := turn("filter by category", model.ModeRiskRegister)
	require.NoError(t, d.Orchestrator(context.Background(), s))

	assert.Equal(t, model.DomainRisk, s.Route.Domain)
	assert.Equal(t, model.TargetRiskRegister, s.Route.Target)
	assert.Equal(t, 0, classifier.calls, "sticky follow-up must not reclassify")
}

func TestOrchestratorNonStickyModeReclassifies(t *testing.T) {
	classifier := &stubModel{replies: []string{`{"action":"route","target":"knowledge","confidence":0.9}`}}
	d := newDeps(t, classifier, nil)

	s := turn("filter by topic please", model.ModeKnowledge)
	require.NoError(t, d.Orchestrator(context.Background(), s))
	assert.Equal(t, 1, classifier.calls)
}

func TestOrchestratorResetsStaleRoute(t *testing.T) {
	classifier := &stubModel{replies: []string{`{"action":"route","target":"knowledge","confidence":0.9}`}}
	d := newDeps(t, classifier, nil)

	s := turn("explain the standard to me", "")
	s.Route = model.Route{Domain: model.DomainControl, Target: model.TargetControlLibrary, Params: map[string]any{"stale": true}}
	require.NoError(t, d.Orchestrator(context.Background(), s))

	assert.Equal(t, model.DomainKnowledge, s.Route.Domain)
	assert.Empty(t, s.Route.Target)
	assert.Nil(t, s.Route.Params["stale"])
}

func TestRiskRouterDefaultsToKnowledge(t *testing.T) {
	classifier := &stubModel{replies: []string{"not json at all"}}
	d := newDeps(t, classifier, nil)

	s := turn("something about risk", "")
	s.Route = model.Route{Domain: model.DomainRisk}
	require.NoError(t, d.RiskRouter(context.Background(), s))

	assert.Equal(t, model.TargetRiskKnowledge, s.Route.Target)
	assert.Equal(t, model.ModeRiskRouter, s.ActiveMode)
}

func TestRiskRouterParseableIntentHonoredWithoutGate(t *testing.T) {
	// Confidence far below 0.8 still routes: the risk domain is permissive.
	classifier := &stubModel{replies: []string{`{"intent":"risk_generation","confidence":0.2}`}}
	d := newDeps(t, classifier, nil)

	s := turn("come up with new risks", "")
	s.Route = model.Route{Domain: model.DomainRisk}
	require.NoError(t, d.RiskRouter(context.Background(), s))
	assert.Equal(t, model.TargetRiskGeneration, s.Route.Target)
}

func TestRiskRouterHonorsPresetTarget(t *testing.T) {
	classifier := &stubModel{replies: []string{"should not be called"}}
	d := newDeps(t, classifier, nil)

	s := turn("sort by impact", model.ModeRiskRegister)
	s.Route = model.Route{Domain: model.DomainRisk, Target: model.TargetRiskRegister}
	require.NoError(t, d.RiskRouter(context.Background(), s))

	assert.Equal(t, model.TargetRiskRegister, s.Route.Target)
	assert.Equal(t, 0, classifier.calls)
}

func TestKnowledgeHandlerFinishesTurn(t *testing.T) {
	responder := &stubModel{replies: []string{"ISO 27001 is an ISMS standard."}}
	d := newDeps(t, nil, responder)

	s := turn("what is iso 27001?", "")
	require.NoError(t, d.Knowledge(context.Background(), s))

	assert.Equal(t, "ISO 27001 is an ISMS standard.", s.Output)
	assert.Equal(t, model.ModeKnowledge, s.ActiveMode)
	assert.True(t, s.Route.IsZero(), "terminal handlers reset the route")
	require.Len(t, s.History, 1)
	assert.Equal(t, "what is iso 27001?", s.History[0].User)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	responder := &stubModel{replies: []string{"answer"}}
	d := newDeps(t, nil, responder)

	prior := []model.Exchange{{User: "old q", Assistant: "old a"}}
	s := model.NewTurnState(model.TurnInput{SessionID: "s1", Message: "new q", User: model.UserData{UserID: "u1"}}, prior, nil, "")
	require.NoError(t, d.Knowledge(context.Background(), s))

	require.Len(t, s.History, 2)
	assert.Equal(t, "old q", s.History[0].User, "existing entries untouched")
	assert.Equal(t, "new q", s.History[1].User)
}

func TestSafeConvertsPanicToApology(t *testing.T) {
	wrapped := Safe("boom", func(context.Context, *model.TurnState) error {
		panic("unexpected")
	})
	s := turn("hello", model.ModeKnowledge)
	out, err := wrapped(context.Background(), s)

	require.NoError(t, err, "failures never reach the graph engine")
	require.NotNil(t, out, "recovered node still hands the state downstream")
	assert.Same(t, s, out)
	assert.Equal(t, apology, out.Output)
	require.Len(t, out.History, 1)
	assert.True(t, out.Route.IsZero())
}

func TestSafeConvertsErrorToApology(t *testing.T) {
	wrapped := Safe("bad", func(context.Context, *model.TurnState) error {
		return errors.New("backend down")
	})
	s := turn("hello", "")
	out, err := wrapped(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, apology, out.Output)
}

func TestSafeLeavesSuccessfulOutput(t *testing.T) {
	wrapped := Safe("ok", func(_ context.Context, s *model.TurnState) error {
		s.Finish("all good", model.ModeKnowledge)
		return nil
	})
	s := turn("hello", "")
	out, err := wrapped(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "all good", out.Output)
}

func TestClarifyNodeAsksQuestion(t *testing.T) {
	d := newDeps(t, nil, nil)
	s := turn("ambiguous", model.ModeKnowledge)
	s.Route = model.ClarifyRoute("Which framework do you mean?")
	require.NoError(t, d.Clarify(context.Background(), s))

	assert.Equal(t, "Which framework do you mean?", s.Output)
	assert.Equal(t, model.ModeKnowledge, s.ActiveMode, "clarify keeps the active mode")
	assert.True(t, s.Route.IsZero())
}
