package tools

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/riskpilot-core/server/internal/audit"
	"github.com/riskpilot-core/server/internal/store"
)

// MutatingAuditTools names the audit tools that change item state. After any
// of these runs, the facilitator re-fetches progress from the store instead
// of trusting the tool's own payload.
var MutatingAuditTools = map[string]bool{
	"submit_audit_answer": true,
	"skip_audit_item":     true,
	"reset_audit_item":    true,
	"exclude_audit_item":  true,
	"delete_audit_item":   true,
}

type auditItemArgs struct {
	ItemID string `json:"item_id"`
	UserID string `json:"user_id"`
}

type auditTypeArgs struct {
	ItemType string `json:"item_type"`
	UserID   string `json:"user_id"`
}

type auditAnswerArgs struct {
	ItemID string `json:"item_id"`
	Answer string `json:"answer"`
	UserID string `json:"user_id"`
}

type auditEvidenceArgs struct {
	ItemID   string `json:"item_id"`
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	Note     string `json:"note"`
	UserID   string `json:"user_id"`
}

type auditRemoveEvidenceArgs struct {
	ItemID     string `json:"item_id"`
	EvidenceID string `json:"evidence_id"`
	UserID     string `json:"user_id"`
}

func itemIDParam() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"item_id": {
			Type:     schema.String,
			Desc:     "Checklist item id or ISO reference (e.g. 6.1 or A.5.15).",
			Required: true,
		},
	}
}

func envelope(err error, ok store.Result) (*store.Result, error) {
	if err == nil {
		return &ok, nil
	}
	var r store.Result
	if errors.Is(err, store.ErrNotFound) {
		r = store.Fail("item not found")
	} else {
		r = store.Fail("audit store error: " + err.Error())
	}
	return &r, nil
}

// NewAuditTools builds the facilitator's full toolset over the audit store.
func NewAuditTools(st store.AuditStore) []tool.InvokableTool {
	progress := utils.NewTool(&schema.ToolInfo{
		Name:        "get_audit_progress",
		Desc:        "Fetch clause and Annex A progress counts for the audit checklist.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, func(ctx context.Context, args *auditItemArgs) (*store.Result, error) {
		snap, err := st.Progress(ctx, args.UserID)
		return envelope(err, store.OK("audit progress", snap))
	})

	next := utils.NewTool(&schema.ToolInfo{
		Name: "get_next_audit_item",
		Desc: "Fetch the next actionable checklist item of the given type.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"item_type": {
				Type:     schema.String,
				Desc:     "Which checklist to draw from.",
				Enum:     []string{"clause", "annex"},
				Required: true,
			},
		}),
	}, func(ctx context.Context, args *auditTypeArgs) (*store.Result, error) {
		t := audit.ItemType(args.ItemType)
		if t != audit.TypeClause && t != audit.TypeAnnex {
			t = audit.TypeClause
		}
		item, err := st.NextActionable(ctx, args.UserID, t)
		if errors.Is(err, store.ErrNotFound) {
			r := store.OK("no remaining items of this type", nil)
			return &r, nil
		}
		return envelope(err, store.OK("next item", item))
	})

	get := utils.NewTool(&schema.ToolInfo{
		Name:        "get_audit_item",
		Desc:        "Fetch one checklist item with its answer and evidence.",
		ParamsOneOf: schema.NewParamsOneOfByParams(itemIDParam()),
	}, func(ctx context.Context, args *auditItemArgs) (*store.Result, error) {
		item, err := st.GetItem(ctx, args.UserID, args.ItemID)
		return envelope(err, store.OK("item", item))
	})

	submit := utils.NewTool(&schema.ToolInfo{
		Name: "submit_audit_answer",
		Desc: "Record the user's answer for a checklist item and mark it answered.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"item_id": {
				Type:     schema.String,
				Desc:     "Checklist item id or ISO reference.",
				Required: true,
			},
			"answer": {
				Type:     schema.String,
				Desc:     "The user's answer text.",
				Required: true,
			},
		}),
	}, func(ctx context.Context, args *auditAnswerArgs) (*store.Result, error) {
		err := st.SubmitAnswer(ctx, args.UserID, args.ItemID, args.Answer)
		return envelope(err, store.OK("answer recorded", nil))
	})

	statusTools := []struct {
		name, desc string
		fn         func(ctx context.Context, userID, itemID string) error
		okMsg      string
	}{
		{"skip_audit_item", "Skip a checklist item for now; it comes back after pending items.", st.MarkSkipped, "item skipped"},
		{"reset_audit_item", "Reset a checklist item to pending, clearing its answer.", st.ResetToPending, "item reset to pending"},
		{"exclude_audit_item", "Exclude a checklist item from audit scope.", st.Exclude, "item excluded"},
		{"delete_audit_item", "Permanently delete a checklist item. Only on explicit user request.", st.DeleteItem, "item deleted"},
	}

	out := []tool.InvokableTool{progress, next, get, submit}
	for _, def := range statusTools {
		fn := def.fn
		okMsg := def.okMsg
		out = append(out, utils.NewTool(&schema.ToolInfo{
			Name:        def.name,
			Desc:        def.desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(itemIDParam()),
		}, func(ctx context.Context, args *auditItemArgs) (*store.Result, error) {
			return envelope(fn(ctx, args.UserID, args.ItemID), store.OK(okMsg, nil))
		}))
	}

	addEvidence := utils.NewTool(&schema.ToolInfo{
		Name: "add_audit_evidence",
		Desc: "Attach an evidence record to a checklist item.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"item_id": {
				Type:     schema.String,
				Desc:     "Checklist item id or ISO reference.",
				Required: true,
			},
			"file_name": {
				Type:     schema.String,
				Desc:     "Evidence file name.",
				Required: true,
			},
			"file_url": {
				Type: schema.String,
				Desc: "Where the evidence is stored.",
			},
			"note": {
				Type: schema.String,
				Desc: "Optional note describing the evidence.",
			},
		}),
	}, func(ctx context.Context, args *auditEvidenceArgs) (*store.Result, error) {
		err := st.AppendEvidence(ctx, args.UserID, args.ItemID, audit.Evidence{
			FileName: args.FileName,
			FileURL:  args.FileURL,
			Note:     args.Note,
		})
		return envelope(err, store.OK("evidence recorded", nil))
	})

	removeEvidence := utils.NewTool(&schema.ToolInfo{
		Name: "remove_audit_evidence",
		Desc: "Remove an evidence record from a checklist item.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"item_id": {
				Type:     schema.String,
				Desc:     "Checklist item id or ISO reference.",
				Required: true,
			},
			"evidence_id": {
				Type:     schema.String,
				Desc:     "Id of the evidence record to remove.",
				Required: true,
			},
		}),
	}, func(ctx context.Context, args *auditRemoveEvidenceArgs) (*store.Result, error) {
		err := st.RemoveEvidence(ctx, args.UserID, args.ItemID, args.EvidenceID)
		return envelope(err, store.OK("evidence removed", nil))
	})

	return append(out, addEvidence, removeEvidence)
}
