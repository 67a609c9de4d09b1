package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpilot-core/server/internal/agent/graph"
	"github.com/riskpilot-core/server/internal/agent/graph/nodes"
	"github.com/riskpilot-core/server/internal/agent/graph/sticky"
	"github.com/riskpilot-core/server/internal/agent/graph/tools"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/audit"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
)

type stubModel struct {
	reply string
}

func (m *stubModel) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

type memRepo struct {
	histories map[string][]model.Exchange
	snaps     map[string]model.SessionSnapshot
}

func (r *memRepo) AddExchange(_ context.Context, id string, ex model.Exchange) error {
	r.histories[id] = append(r.histories[id], ex)
	return nil
}

func (r *memRepo) LoadHistory(_ context.Context, id string) ([]model.Exchange, error) {
	return r.histories[id], nil
}

func (r *memRepo) LoadSnapshot(_ context.Context, id string) (model.SessionSnapshot, error) {
	if snap, ok := r.snaps[id]; ok {
		return snap, nil
	}
	return model.SessionSnapshot{Context: map[string]any{}}, nil
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

func newTestServer(t *testing.T) (*Server, *vector.MemoryIndex) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	index := vector.NewMemoryIndex(vector.NewHashEmbedder(64))
	deps := &nodes.Deps{
		Classifier:    &stubModel{reply: `{"action":"route","target":"knowledge","confidence":0.9}`},
		Responder:     &stubModel{reply: "Happy to help with your ISMS."},
		Sticky:        sticky.NewKeywordGuard(nodes.StickyModes()),
		Searcher:      index,
		Risks:         st,
		Controls:      st,
		Profiles:      st,
		Audits:        st,
		Loop:          model.ToolLoopConfig{MaxSteps: 8},
		HistoryWindow: 5,
	}
	repo := &memRepo{histories: map[string][]model.Exchange{}, snaps: map[string]model.SessionSnapshot{}}
	runner, err := graph.NewRunner(context.Background(), deps, repo, graph.Config{})
	require.NoError(t, err)
	return New(runner, Stores{Risks: st, Controls: st, Audits: st}, index), index
}

func doJSON(t *testing.T, s *Server, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRequiresUserHeader(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/chat", "", `{"session_id":"s1","message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatValidation(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/chat", "u1", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/chat", "u1",
		`{"session_id":"s1","message":"explain the standard to me","organization_name":"Acme","domain":"fintech"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res graph.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Happy to help with your ISMS.", res.Response)
	require.Len(t, res.History, 1)
}

func TestAuditChecklistFlow(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/audit/checklist", "u1", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/audit/items/next?type=clause", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var item audit.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "4.1", item.ISOReference)

	rec = doJSON(t, s, http.MethodPost, "/audit/items/"+item.ItemID+"/answer", "u1", `{"answer":"Documented."}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/audit/progress", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var prog struct {
		Progress audit.Snapshot `json:"progress"`
		Phase    string         `json:"phase"`
		Complete bool           `json:"complete"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
	assert.Equal(t, 1, prog.Progress.Clause.Answered)
	assert.False(t, prog.Complete)
}

func TestAuditAnswerMissingItem(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/audit/items/nope/answer", "u1", `{"answer":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditEvidenceRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, doJSON(t, s, http.MethodPost, "/audit/checklist", "u1", "").Code)

	rec := doJSON(t, s, http.MethodGet, "/audit/items/next?type=clause", "u1", "")
	var item audit.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	rec = doJSON(t, s, http.MethodPost, "/audit/items/"+item.ItemID+"/evidence", "u1",
		`{"file_name":"scope.pdf","file_url":"s3://b/scope.pdf","note":"Signed"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/audit/items", "u1", "")
	var items []audit.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	var withEv *audit.Item
	for i := range items {
		if items[i].ItemID == item.ItemID {
			withEv = &items[i]
		}
	}
	require.NotNil(t, withEv)
	require.Len(t, withEv.Evidences, 1)
	assert.Equal(t, "scope.pdf", withEv.Evidences[0].FileName)
}

func TestRiskLifecycle(t *testing.T) {
	s, index := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/risks", "u1",
		`{"risks":[{"risk_id":"R-001","title":"Phishing campaigns","description":"Credential theft through targeted emails","category":"People","likelihood":"High","impact":"High","treatment":"mitigate"},{"risk_id":"R-002","title":"Unpatched servers","description":"Known CVEs on internet-facing hosts","category":"Technology","likelihood":"Medium","impact":"Very High","treatment":"mitigate"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved struct {
		Status     string `json:"status"`
		SavedCount int    `json:"saved_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, 2, saved.SavedCount)

	rec = doJSON(t, s, http.MethodGet, "/risks", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var risks []model.Risk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &risks))
	require.Len(t, risks, 2)
	assert.NotEmpty(t, risks[0].ID)

	hits, err := index.Search(context.Background(), tools.CollectionRisks,
		"phishing credential theft", vector.TenantFilter("u1"), 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits, "saved risks are searchable on later turns")
	assert.Equal(t, "R-001", hits[0].Metadata["risk_id"])

	rec = doJSON(t, s, http.MethodPatch, "/risks/R-001", "u1", `{"field":"treatment","value":"transfer"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/risks/R-001", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var r model.Risk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "transfer", r.Treatment)

	rec = doJSON(t, s, http.MethodDelete, "/risks/R-002", "u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/risks/R-002", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRiskRouteErrors(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/risks", "u1", `{"risks":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/risks", "u1",
		`{"risks":[{"risk_id":"R-001","title":"Phishing","description":"x","category":"People"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPatch, "/risks/R-001", "u1", `{"field":"risk_id","value":"R-9"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "identity fields are not updatable")

	rec = doJSON(t, s, http.MethodPatch, "/risks/R-404", "u1", `{"field":"treatment","value":"accept"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlLifecycle(t *testing.T) {
	s, index := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/controls", "u1",
		`{"controls":[{"control_id":"C-001","title":"MFA everywhere","description":"Multi-factor authentication on all privileged access","category":"Access Control","annexA_map":["A.9.2","A.9.4"],"linked_risk_ids":["R-001"]},{"control_id":"C-002","title":"Patch cadence","description":"Monthly patch window with emergency path","category":"Operations","annexA_map":["A.12.6"]}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/controls", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var controls []model.Control
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &controls))
	require.Len(t, controls, 2)

	rec = doJSON(t, s, http.MethodGet, "/controls?annex=A.9.2", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &controls))
	require.Len(t, controls, 1)
	assert.Equal(t, "C-001", controls[0].ControlID)

	hits, err := index.Search(context.Background(), tools.CollectionControls,
		"multi-factor authentication privileged access", vector.TenantFilter("u1"), 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits, "saved controls are searchable on later turns")
	assert.Equal(t, "C-001", hits[0].Metadata["control_id"])

	rec = doJSON(t, s, http.MethodDelete, "/controls/C-002", "u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/controls/C-002", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantHeaderScopesRisks(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/risks", "u1",
		`{"risks":[{"risk_id":"R-001","title":"Phishing","description":"x","category":"People"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/risks", "u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var risks []model.Risk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &risks))
	assert.Empty(t, risks, "other tenants see no risks")
}

func TestTenantHeaderScopesAudit(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, doJSON(t, s, http.MethodPost, "/audit/checklist", "u1", "").Code)

	rec := doJSON(t, s, http.MethodGet, "/audit/items", "u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []audit.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Empty(t, items, "other tenants see no items")
}
