package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpilot-core/server/internal/agent/model"
)

func TestControlRouterLibraryWithAnnexReference(t *testing.T) {
	classifier := &stubModel{replies: []string{
		`{"action":"route","sub_domain":"control_library","confidence":0.9,"parameters":{"annex_reference":"A.9.2","mode":"all","risk_category":"Technology"}}`,
	}}
	d := newDeps(t, classifier, nil)

	s := turn("find controls related to A.9.2", "")
	s.Route = model.Route{Domain: model.DomainControl}
	require.NoError(t, d.ControlRouter(context.Background(), s))

	assert.Equal(t, model.TargetControlLibrary, s.Route.Target)
	assert.Equal(t, "A.9.2", s.Route.Params["annex_reference"])
	_, hasMode := s.Route.Params["mode"]
	_, hasCategory := s.Route.Params["risk_category"]
	assert.False(t, hasMode, "mode never leaks into library lookups")
	assert.False(t, hasCategory, "risk_category never leaks into library lookups")

	ctxParams, ok := s.Context["control_parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A.9.2", ctxParams["annex_reference"])
}

func TestControlRouterConfidenceGate(t *testing.T) {
	classifier := &stubModel{replies: []string{
		`{"action":"route","sub_domain":"generate_control","confidence":0.6}`,
	}}
	d := newDeps(t, classifier, nil)

	s := turn("do something with controls maybe", "")
	s.Route = model.Route{Domain: model.DomainControl}
	require.NoError(t, d.ControlRouter(context.Background(), s))

	assert.Equal(t, model.DomainClarify, s.Route.Domain)
}

func TestControlRouterClarifyVerdict(t *testing.T) {
	classifier := &stubModel{replies: []string{
		`{"action":"clarify","confidence":0.5,"clarifying_question":"Saved controls or general guidance?"}`,
	}}
	d := newDeps(t, classifier, nil)

	s := turn("tell me about A.5.23 controls", "")
	s.Route = model.Route{Domain: model.DomainControl}
	require.NoError(t, d.ControlRouter(context.Background(), s))

	assert.Equal(t, model.DomainClarify, s.Route.Domain)
	assert.Equal(t, "Saved controls or general guidance?", s.Route.Question)
}

func TestGenerationParamsStructured(t *testing.T) {
	params := generationParams(map[string]any{"mode": "category", "risk_category": "Financial"}, "whatever")
	assert.Equal(t, "category", params["mode"])
	assert.Equal(t, "Financial", params["risk_category"])
}

func TestGenerationParamsRiskIDFallback(t *testing.T) {
	params := generationParams(nil, "generate controls for risk r-003")
	assert.Equal(t, "risk_id", params["mode"])
	assert.Equal(t, "R-003", params["risk_id"])
}

func TestGenerationParamsCategoryFallback(t *testing.T) {
	params := generationParams(nil, "create controls for financial risks")
	assert.Equal(t, "category", params["mode"])
	assert.Equal(t, "Financial", params["risk_category"])
}

func TestGenerationParamsDefaultAll(t *testing.T) {
	params := generationParams(nil, "generate controls please")
	assert.Equal(t, "all", params["mode"])
}

func TestExtractAnnexReference(t *testing.T) {
	cases := map[string]string{
		"find controls for A.9.2":  "A.9.2",
		"what maps to a 5.23?":     "A.5.23",
		"show annex A9 controls":   "A.9",
		"no reference here at all": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractAnnexReference(in), in)
	}
}

func TestControlLibraryHandler(t *testing.T) {
	responder := &stubModel{replies: []string{"You have one control mapped to A.9.2: Access reviews."}}
	d := newDeps(t, nil, responder)

	s := turn("find controls related to A.9.2", "")
	s.Route = model.Route{Domain: model.DomainControl, Target: model.TargetControlLibrary, Params: map[string]any{"annex_reference": "A.9.2"}}
	require.NoError(t, d.ControlLibrary(context.Background(), s))

	assert.Contains(t, s.Output, "A.9.2")
	assert.Equal(t, model.ModeControlLibrary, s.ActiveMode)
	assert.True(t, s.Route.IsZero())
	require.Len(t, s.History, 1)
}

func TestGenerateControlCapturesArtifacts(t *testing.T) {
	reply := "```json\n" + `[
		{"control_id":"C-001","title":"Quarterly access reviews","description":"Review privileged access every quarter.","category":"Access Control","annexA_map":["A.9.2"]},
		{"control_id":"C-002","title":"MFA everywhere","description":"Require MFA on all remote access.","category":"Access Control","annexA_map":["A.9.4"],"linked_risk_ids":["R-7"]}
	]` + "\n```"
	responder := &stubModel{replies: []string{reply}}
	d := newDeps(t, nil, responder)

	s := turn("generate controls for R-7", "")
	s.Route = model.Route{Domain: model.DomainControl, Target: model.TargetGenerateControl, Params: map[string]any{"mode": "risk_id", "risk_id": "R-7"}}
	require.NoError(t, d.GenerateControl(context.Background(), s))

	controls, ok := s.Context["generated_controls"].([]model.Control)
	require.True(t, ok, "artifacts attached to the turn context")
	require.Len(t, controls, 2)
	for _, c := range controls {
		assert.NotEmpty(t, c.ID)
		assert.Contains(t, c.LinkedRiskIDs, "R-7")
	}
	assert.Equal(t, 1, len(controls[1].LinkedRiskIDs), "in-scope risk id not duplicated")
	assert.Contains(t, s.Output, "2 controls")
	assert.Equal(t, model.ModeGenerateControl, s.ActiveMode)
}

func TestGenerateControlUnparseableReplyFallsBack(t *testing.T) {
	responder := &stubModel{replies: []string{"I could not retrieve any risks to design controls for."}}
	d := newDeps(t, nil, responder)

	s := turn("generate controls", "")
	s.Route = model.Route{Domain: model.DomainControl, Target: model.TargetGenerateControl}
	require.NoError(t, d.GenerateControl(context.Background(), s))

	_, ok := s.Context["generated_controls"]
	assert.False(t, ok)
	assert.Contains(t, s.Output, "could not retrieve")
}
