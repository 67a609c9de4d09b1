package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
)

type riskSearchArgs struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	TopK     int    `json:"top_k"`
	UserID   string `json:"user_id"`
}

// NewSemanticRiskSearch searches the tenant's risk register semantically.
func NewSemanticRiskSearch(searcher vector.Searcher) tool.InvokableTool {
	return utils.NewTool(&schema.ToolInfo{
		Name: "semantic_risk_search",
		Desc: "Search the organization's risk register by meaning.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What risks to look for.",
				Required: true,
			},
			"category": {
				Type: schema.String,
				Desc: "Optional risk category to restrict results to.",
			},
			"top_k": {
				Type: schema.Integer,
				Desc: "How many results to return (default 5).",
			},
		}),
	}, func(ctx context.Context, args *riskSearchArgs) (*store.Result, error) {
		filter := vector.TenantFilter(args.UserID)
		if args.Category != "" {
			filter["category"] = args.Category
		}
		hits, err := searcher.Search(ctx, CollectionRisks, args.Query, filter, args.TopK)
		if err != nil {
			r := store.Fail("risk search failed: " + err.Error())
			return &r, nil
		}
		r := store.OK("risk register matches", hits)
		return &r, nil
	})
}

type profileArgs struct {
	UserID string `json:"user_id"`
}

// NewGetRiskProfiles returns the organisation's recorded risk profiles.
func NewGetRiskProfiles(profiles store.ProfileStore) tool.InvokableTool {
	return utils.NewTool(&schema.ToolInfo{
		Name: "get_risk_profiles",
		Desc: "Fetch the organization's risk appetite profiles.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, func(ctx context.Context, args *profileArgs) (*store.Result, error) {
		ps, err := profiles.ListProfiles(ctx, args.UserID)
		if err != nil {
			r := store.Fail("could not load risk profiles: " + err.Error())
			return &r, nil
		}
		if len(ps) == 0 {
			r := store.OK("no risk profiles recorded", []store.RiskProfile{})
			return &r, nil
		}
		r := store.OK("risk profiles", ps)
		return &r, nil
	})
}
