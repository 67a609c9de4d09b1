// Package tools defines the callable tools bound to sub-agent loops. Every
// tool takes a user_id argument; the loop injects it so tenant scoping never
// depends on the model remembering to pass it.
package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
)

const (
	CollectionKnowledge = "knowledge"
	CollectionRisks     = "risks"
	CollectionControls  = "controls"
)

type knowledgeSearchArgs struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	TopK     int    `json:"top_k"`
	UserID   string `json:"user_id"`
}

// NewKnowledgeBaseSearch searches the shared ISO 27001 knowledge base.
// Category narrows to clause or Annex A content; the knowledge base itself
// is not tenant-scoped.
func NewKnowledgeBaseSearch(searcher vector.Searcher) tool.InvokableTool {
	return utils.NewTool(&schema.ToolInfo{
		Name: "knowledge_base_search",
		Desc: "Search the ISO 27001 knowledge base for clause and Annex A content.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to search for.",
				Required: true,
			},
			"category": {
				Type: schema.String,
				Desc: "Restrict results: clauses, annex_a, or all.",
				Enum: []string{"clauses", "annex_a", "all"},
			},
			"top_k": {
				Type: schema.Integer,
				Desc: "How many results to return (default 5).",
			},
		}),
	}, func(ctx context.Context, args *knowledgeSearchArgs) (*store.Result, error) {
		var filter vector.Filter
		if args.Category != "" && args.Category != "all" {
			filter = vector.Filter{"category": args.Category}
		}
		hits, err := searcher.Search(ctx, CollectionKnowledge, args.Query, filter, args.TopK)
		if err != nil {
			r := store.Fail("knowledge base search failed: " + err.Error())
			return &r, nil
		}
		r := store.OK("knowledge base results", hits)
		return &r, nil
	})
}
