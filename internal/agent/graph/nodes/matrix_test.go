package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpilot-core/server/internal/agent/model"
)

func TestSnapSize(t *testing.T) {
	cases := map[int]int{0: 5, 2: 3, 3: 3, 4: 4, 5: 5, 7: 5, -1: 5}
	for in, want := range cases {
		assert.Equal(t, want, snapSize(in), "size %d", in)
	}
}

func TestEnsureLevelsPadsAndRenumbers(t *testing.T) {
	levels := ensureLevels([]model.ScaleLevel{{Label: "Custom low"}}, 3, likelihoodTitles)
	require.Len(t, levels, 3)
	assert.Equal(t, 1, levels[0].Level)
	assert.Equal(t, "Custom low", levels[0].Label)
	assert.Equal(t, "Unlikely", levels[1].Label)
	assert.Equal(t, 3, levels[2].Level)
	assert.NotEmpty(t, levels[2].Description)
}

func TestEnsureLevelsTrims(t *testing.T) {
	in := make([]model.ScaleLevel, 6)
	levels := ensureLevels(in, 4, impactTitles)
	require.Len(t, levels, 4)
	assert.Equal(t, 4, levels[3].Level)
}

func TestNormalizeMatrixDefaultsAndCaps(t *testing.T) {
	rec := model.MatrixRecommendation{Size: 9}
	normalizeMatrix(&rec, model.UserData{OrganizationName: "Acme", Domain: "fintech"})

	assert.Equal(t, 5, rec.Size)
	assert.Len(t, rec.LikelihoodLevels, 5)
	assert.Len(t, rec.ImpactLevels, 5)
	assert.Len(t, rec.Categories, maxMatrixCategories, "default categories are capped")
	assert.Equal(t, "Acme", rec.Context.OrganizationName)
	assert.Equal(t, "fintech", rec.Context.Industry)
}

func TestMatrixRecommendationNode(t *testing.T) {
	responder := &stubModel{replies: []string{`{
		"size": 4,
		"likelihood_levels": [{"level":1,"label":"Rare","description":"d"}],
		"impact_levels": [],
		"categories": [{"name":"Technology Risk","description":"d"}],
		"rationale": "A 4x4 fits a scaling fintech."
	}`}}
	d := newDeps(t, nil, responder)

	s := turn("recommend a matrix for us", "")
	s.Route = model.Route{Domain: model.DomainRisk, Target: model.TargetMatrixRecommendation}
	require.NoError(t, d.MatrixRecommendation(context.Background(), s))

	assert.Contains(t, s.Output, "4x4")
	assert.Equal(t, model.ModeMatrixRecommendation, s.ActiveMode)
	assert.Equal(t, "4x4", s.Context["matrix_size"])

	rec, ok := s.Context["matrix_recommendation"].(model.MatrixRecommendation)
	require.True(t, ok)
	assert.Len(t, rec.LikelihoodLevels, 4, "scales padded to the snapped size")
	assert.Len(t, rec.ImpactLevels, 4)
}

func TestMatrixRecommendationUnparseableFallsBack(t *testing.T) {
	responder := &stubModel{replies: []string{"I think a five by five would be nice."}}
	d := newDeps(t, nil, responder)

	s := turn("recommend a matrix", "")
	require.NoError(t, d.MatrixRecommendation(context.Background(), s))

	assert.Contains(t, s.Output, "5x5", "unparseable output degrades to the standard framework")
	rec := s.Context["matrix_recommendation"].(model.MatrixRecommendation)
	assert.Equal(t, 5, rec.Size)
	assert.NotEmpty(t, rec.Categories)
}
