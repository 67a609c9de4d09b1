package nodes

import (
	"context"
	"fmt"

	"github.com/riskpilot-core/server/internal/agent/graph/conversations"
	"github.com/riskpilot-core/server/internal/agent/graph/parsers"
	"github.com/riskpilot-core/server/internal/agent/graph/prompts"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/pkg/logger"
)

const maxMatrixCategories = 10

var (
	likelihoodTitles = []string{"Rare", "Unlikely", "Possible", "Likely", "Almost Certain"}
	impactTitles     = []string{"Insignificant", "Minor", "Moderate", "Major", "Severe"}

	defaultRiskCategories = []string{
		"Strategic Risk", "Operational Risk", "Financial Risk", "Compliance Risk",
		"Reputational Risk", "Health and Safety Risk", "Environmental Risk", "Technology Risk",
		"Cybersecurity Risk", "Supply Chain Risk", "Market Risk", "Regulatory Risk",
	}
)

// MatrixRecommendation asks the model for a matrix proposal and then
// normalises it deterministically: the size snaps to 3, 4 or 5, the level
// scales are padded or trimmed to exactly that size, and the category list
// is defaulted and capped. The normalised matrix survives in the session
// scratchpad for later turns.
func (d *Deps) MatrixRecommendation(ctx context.Context, s *model.TurnState) error {
	msgs := conversations.BuildMessages(prompts.MatrixRecommendation(d.orgVars(s)), s.History, d.HistoryWindow, s.Input)
	out, err := d.Responder.Generate(ctx, msgs)
	if err != nil {
		return err
	}

	var rec model.MatrixRecommendation
	if !parsers.Unmarshal(out.Content, &rec) {
		logx.Warn().Msg("matrix recommendation was unparseable, using standard framework")
		rec = model.MatrixRecommendation{Size: 5}
	}
	normalizeMatrix(&rec, s.User)

	s.SetContext("matrix_recommendation", rec)
	s.SetContext("matrix_size", fmt.Sprintf("%dx%d", rec.Size, rec.Size))

	reply := fmt.Sprintf("I've created a %dx%d risk matrix framework for %s with %d risk categories.",
		rec.Size, rec.Size, orgName(s), len(rec.Categories))
	if rec.Rationale != "" {
		reply += " " + rec.Rationale
	}
	reply += " The risk profile dashboard will show the categories with their customizable scales."

	s.Finish(reply, model.ModeMatrixRecommendation)
	return nil
}

func orgName(s *model.TurnState) string {
	if s.User.OrganizationName != "" {
		return s.User.OrganizationName
	}
	return "your organization"
}

func normalizeMatrix(rec *model.MatrixRecommendation, user model.UserData) {
	rec.Size = snapSize(rec.Size)
	rec.LikelihoodLevels = ensureLevels(rec.LikelihoodLevels, rec.Size, likelihoodTitles)
	rec.ImpactLevels = ensureLevels(rec.ImpactLevels, rec.Size, impactTitles)

	if len(rec.Categories) == 0 {
		for _, name := range defaultRiskCategories {
			rec.Categories = append(rec.Categories, model.MatrixCategory{Name: name})
		}
	}
	if len(rec.Categories) > maxMatrixCategories {
		rec.Categories = rec.Categories[:maxMatrixCategories]
	}

	if rec.Context.OrganizationName == "" {
		rec.Context.OrganizationName = user.OrganizationName
	}
	if rec.Context.Industry == "" {
		rec.Context.Industry = user.Domain
	}
}

// snapSize clamps an arbitrary proposed dimension onto the supported 3, 4
// or 5.
func snapSize(size int) int {
	switch {
	case size <= 0:
		return 5
	case size <= 3:
		return 3
	case size == 4:
		return 4
	default:
		return 5
	}
}

// ensureLevels trims or pads the scale to exactly count entries and
// renumbers the levels from 1.
func ensureLevels(levels []model.ScaleLevel, count int, baseTitles []string) []model.ScaleLevel {
	if len(levels) > count {
		levels = levels[:count]
	}
	for len(levels) < count {
		levels = append(levels, model.ScaleLevel{})
	}
	for i := range levels {
		levels[i].Level = i + 1
		if levels[i].Label == "" {
			levels[i].Label = baseTitles[min(i, len(baseTitles)-1)]
		}
		if levels[i].Description == "" {
			levels[i].Description = "Contextual description"
		}
	}
	return levels
}
