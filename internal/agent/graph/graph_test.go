package graph

import (
	"context"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpilot-core/server/internal/agent/graph/nodes"
	"github.com/riskpilot-core/server/internal/agent/graph/sticky"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
)

type stubModel struct {
	replies []string
	calls   int
}

func (m *stubModel) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	i := m.calls
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	m.calls++
	return schema.AssistantMessage(m.replies[i], nil), nil
}

type memRepo struct {
	histories map[string][]model.Exchange
	snaps     map[string]model.SessionSnapshot
}

func newMemRepo() *memRepo {
	return &memRepo{
		histories: map[string][]model.Exchange{},
		snaps:     map[string]model.SessionSnapshot{},
	}
}

func (r *memRepo) AddExchange(_ context.Context, id string, ex model.Exchange) error {
	r.histories[id] = append(r.histories[id], ex)
	return nil
}

func (r *memRepo) LoadHistory(_ context.Context, id string) ([]model.Exchange, error) {
	return r.histories[id], nil
}

func (r *memRepo) LoadSnapshot(_ context.Context, id string) (model.SessionSnapshot, error) {
	snap, ok := r.snaps[id]
	if !ok {
		return model.SessionSnapshot{Context: map[string]any{}}, nil
	}
	return snap, nil
}

func (r *memRepo) SaveSnapshot(_ context.Context, id string, snap model.SessionSnapshot) error {
	r.snaps[id] = snap
	return nil
}

func (r *memRepo) ClearSession(_ context.Context, id string) error {
	delete(r.histories, id)
	delete(r.snaps, id)
	return nil
}

func newRunner(t *testing.T, classifier, responder model.ChatModel) (*Runner, *memRepo) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	deps := &nodes.Deps{
		Classifier:    classifier,
		Responder:     responder,
		Sticky:        sticky.NewKeywordGuard(nodes.StickyModes()),
		Searcher:      vector.NewMemoryIndex(vector.NewHashEmbedder(64)),
		Risks:         st,
		Controls:      st,
		Profiles:      st,
		Audits:        st,
		Loop:          model.ToolLoopConfig{MaxSteps: 8},
		HistoryWindow: 5,
	}
	repo := newMemRepo()
	runner, err := NewRunner(context.Background(), deps, repo, Config{})
	require.NoError(t, err)
	return runner, repo
}

func input(msg string) model.TurnInput {
	return model.TurnInput{
		SessionID: "s1",
		Message:   msg,
		User:      model.UserData{UserID: "u1", OrganizationName: "Acme", Location: "Berlin", Domain: "fintech"},
	}
}

func TestTurnRoutesAnnexLookupToControlLibrary(t *testing.T) {
	classifier := &stubModel{replies: []string{
		`{"action":"route","sub_domain":"control_library","confidence":0.9,"parameters":{"annex_reference":"A.9.2","mode":"all","risk_category":"Technology"}}`,
	}}
	responder := &stubModel{replies: []string{"One control maps to A.9.2: quarterly access reviews."}}
	runner, repo := newRunner(t, classifier, responder)

	res, err := runner.Run(context.Background(), input("find controls related to A.9.2"))
	require.NoError(t, err)

	assert.Contains(t, res.Response, "A.9.2")
	params, ok := res.Context["control_parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A.9.2", params["annex_reference"])
	_, hasMode := params["mode"]
	assert.False(t, hasMode)

	snap := repo.snaps["s1"]
	assert.Equal(t, model.ModeControlLibrary, snap.ActiveMode)
	require.Len(t, repo.histories["s1"], 1)
	assert.Equal(t, res.Response, repo.histories["s1"][0].Assistant)
}

func TestTurnStickyFollowUpResumesRegister(t *testing.T) {
	classifier := &stubModel{replies: []string{"should not be called"}}
	responder := &stubModel{replies: []string{"Filtered to 2 technology risks."}}
	runner, repo := newRunner(t, classifier, responder)

	repo.snaps["s1"] = model.SessionSnapshot{
		Context:    map[string]any{},
		ActiveMode: model.ModeRiskRegister,
	}
	repo.histories["s1"] = []model.Exchange{{User: "show my risks", Assistant: "You have 5 risks."}}

	res, err := runner.Run(context.Background(), input("filter by category"))
	require.NoError(t, err)

	assert.Equal(t, "Filtered to 2 technology risks.", res.Response)
	assert.Equal(t, 0, classifier.calls, "sticky follow-up bypasses classification")
	assert.Equal(t, model.ModeRiskRegister, repo.snaps["s1"].ActiveMode)
	assert.Len(t, repo.histories["s1"], 2)
}

func TestTurnLowConfidenceEndsInClarify(t *testing.T) {
	classifier := &stubModel{replies: []string{
		`{"action":"route","target":"knowledge","confidence":0.5,"clarifying_question":"What would you like to know?"}`,
	}}
	runner, repo := newRunner(t, classifier, &stubModel{replies: []string{"unused"}})

	res, err := runner.Run(context.Background(), input("hmm, so, yeah"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.Response)
	assert.Contains(t, res.Response, "?")
	require.Len(t, repo.histories["s1"], 1, "clarify turns still append history")
}

func TestTurnAuditKeywordReachesFacilitator(t *testing.T) {
	responder := &stubModel{replies: []string{"Let's start with clause 4.1."}}
	runner, repo := newRunner(t, &stubModel{replies: []string{"unused"}}, responder)

	res, err := runner.Run(context.Background(), input("start my audit"))
	require.NoError(t, err)

	// With an empty checklist the audit is trivially complete.
	assert.NotEmpty(t, res.Response)
	assert.Equal(t, model.ModeAuditFacilitator, repo.snaps["s1"].ActiveMode)
}

func TestTurnContextSurvivesAcrossTurns(t *testing.T) {
	classifier := &stubModel{replies: []string{
		`{"action":"route","sub_domain":"control_library","confidence":0.9,"parameters":{"annex_reference":"A.9.2"}}`,
		`{"action":"route","target":"knowledge","confidence":0.9}`,
	}}
	responder := &stubModel{replies: []string{"Found it.", "ISO 27001 is a standard."}}
	runner, repo := newRunner(t, classifier, responder)

	_, err := runner.Run(context.Background(), input("find controls related to A.9.2"))
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), input("explain the standard to me"))
	require.NoError(t, err)

	snap := repo.snaps["s1"]
	params, ok := snap.Context["control_parameters"].(map[string]any)
	require.True(t, ok, "scratchpad keys survive unrelated turns")
	assert.Equal(t, "A.9.2", params["annex_reference"])
	assert.Len(t, repo.histories["s1"], 2)
}

func TestTurnRiskGenerationEndToEnd(t *testing.T) {
	// The risk cue short-circuits the top-level classifier, so the only
	// classifier call is the risk intent router's.
	classifier := &stubModel{replies: []string{`{"intent":"risk_generation","confidence":0.9}`}}
	responder := &stubModel{replies: []string{"Here are 5 financial risks for Acme."}}
	runner, repo := newRunner(t, classifier, responder)

	res, err := runner.Run(context.Background(), input("Generate 5 financial risks for my org"))
	require.NoError(t, err)

	assert.Contains(t, res.Response, "financial risks")
	assert.Equal(t, 1, classifier.calls)
	assert.Equal(t, model.ModeRiskGeneration, repo.snaps["s1"].ActiveMode)
}

func TestRunnerReset(t *testing.T) {
	runner, repo := newRunner(t, &stubModel{replies: []string{`{"action":"route","target":"knowledge","confidence":0.9}`}}, &stubModel{replies: []string{"hi"}})

	_, err := runner.Run(context.Background(), input("explain the standard"))
	require.NoError(t, err)
	require.NotEmpty(t, repo.histories["s1"])

	require.NoError(t, runner.Reset(context.Background(), "s1"))
	assert.Empty(t, repo.histories["s1"])
}
