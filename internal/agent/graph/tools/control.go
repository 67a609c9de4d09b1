package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
)

type controlSearchArgs struct {
	Query          string `json:"query"`
	AnnexReference string `json:"annex_reference"`
	TopK           int    `json:"top_k"`
	UserID         string `json:"user_id"`
}

// NewSemanticControlSearch searches the tenant's control library. An Annex A
// reference takes the exact-lookup path against the document store; anything
// else goes through the semantic index.
func NewSemanticControlSearch(searcher vector.Searcher, controls store.ControlStore) tool.InvokableTool {
	return utils.NewTool(&schema.ToolInfo{
		Name: "semantic_control_search",
		Desc: "Search the organization's control library by meaning or by Annex A reference.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type: schema.String,
				Desc: "What controls to look for.",
			},
			"annex_reference": {
				Type: schema.String,
				Desc: "Exact Annex A reference such as A.9.2; overrides the semantic query.",
			},
			"top_k": {
				Type: schema.Integer,
				Desc: "How many results to return (default 5).",
			},
		}),
	}, func(ctx context.Context, args *controlSearchArgs) (*store.Result, error) {
		if args.AnnexReference != "" {
			found, err := controls.ListControlsByAnnex(ctx, args.UserID, args.AnnexReference)
			if err != nil {
				r := store.Fail("annex lookup failed: " + err.Error())
				return &r, nil
			}
			r := store.OK("controls mapped to "+args.AnnexReference, found)
			return &r, nil
		}
		hits, err := searcher.Search(ctx, CollectionControls, args.Query, vector.TenantFilter(args.UserID), args.TopK)
		if err != nil {
			r := store.Fail("control search failed: " + err.Error())
			return &r, nil
		}
		r := store.OK("control library matches", hits)
		return &r, nil
	})
}
