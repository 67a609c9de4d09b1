package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/riskpilot-core/server/internal/agent/graph/agentrun"
	"github.com/riskpilot-core/server/internal/agent/graph/conversations"
	"github.com/riskpilot-core/server/internal/agent/graph/prompts"
	"github.com/riskpilot-core/server/internal/agent/graph/tools"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/audit"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/pkg/logger"
)

const (
	submitCallToAction = "Please use the submit button below to record your answer."

	auditCompletionNotedKey = "audit_completion_noted"
)

// AuditFacilitator walks the user through the readiness checklist. The
// phase and progress are recomputed from the store every turn; the previous
// turn's stored phase is never trusted because dashboards and admins mutate
// items outside the conversation.
func (d *Deps) AuditFacilitator(ctx context.Context, s *model.TurnState) error {
	snap, err := d.Audits.Progress(ctx, s.User.UserID)
	if err != nil {
		return err
	}

	if audit.Complete(snap) {
		reply := "Your readiness audit is up to date. " + audit.ProgressLine(snap)
		if !boolContext(s, auditCompletionNotedKey) {
			reply = audit.CompletionNote(snap) + " " + audit.ProgressLine(snap)
			s.SetContext(auditCompletionNotedKey, true)
		}
		s.SetContext("audit", snap)
		s.SetContext("audit_complete", true)
		s.Finish(reply, model.ModeAuditFacilitator)
		return nil
	}
	delete(s.Context, "audit_complete")

	phase := audit.ComputePhase(snap)
	itemType := audit.TypeClause
	if phase == audit.PhaseAnnexes {
		itemType = audit.TypeAnnex
	}

	next, err := d.Audits.NextActionable(ctx, s.User.UserID, itemType)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	auditTools := tools.NewAuditTools(d.Audits)

	// Mutating tool calls invalidate the progress computed above; flag the
	// turn so the summary is re-fetched from the store, not from tool
	// payloads.
	stale := false
	loop := &agentrun.Loop{
		Model:    d.Responder,
		Tools:    auditTools,
		MaxSteps: d.Loop.MaxSteps,
		Timeout:  d.Loop.Timeout,
		Fallback: "Let's continue with your readiness audit.",
		UserID:   s.User.UserID,
		OnToolExecuted: func(_ context.Context, name string) {
			if tools.MutatingAuditTools[name] {
				stale = true
			}
		},
	}

	vars := prompts.AuditVars{
		Org:           d.orgVars(s),
		Phase:         string(phase),
		ClauseSummary: summarize(snap.Clause),
		AnnexSummary:  summarize(snap.Annex),
		NextReference: next.ISOReference,
		NextTitle:     next.Title,
		NextDesc:      next.Description,
	}
	msgs := conversations.BuildMessages(prompts.AuditFacilitator(vars), s.History, d.HistoryWindow, s.Input)
	text, err := loop.Run(ctx, msgs)
	if err != nil {
		return err
	}

	if stale {
		if fresh, err := d.Audits.Progress(ctx, s.User.UserID); err == nil {
			snap = fresh
		} else {
			logx.Warn().Err(err).Msg("progress re-fetch after mutation failed")
		}
	}

	text = d.applyAnswerCue(text, next)
	text = appendProgressLine(text, snap)

	if audit.Complete(snap) && !boolContext(s, auditCompletionNotedKey) {
		text = text + "\n\n" + audit.CompletionNote(snap)
		s.SetContext(auditCompletionNotedKey, true)
		s.SetContext("audit_complete", true)
	}

	s.SetContext("audit", snap)
	s.Finish(text, model.ModeAuditFacilitator)
	return nil
}

// applyAnswerCue resolves the awaiting-answer marker. The sentinel is
// authoritative: when present it is stripped and replaced by the fixed
// call-to-action. Without it, a question mark while an item is open forces
// the same call-to-action as a backstop.
func (d *Deps) applyAnswerCue(text string, next audit.Item) string {
	if strings.Contains(text, prompts.AwaitAnswerSentinel) {
		text = strings.TrimSpace(strings.ReplaceAll(text, prompts.AwaitAnswerSentinel, ""))
		return text + "\n\n" + submitCallToAction
	}
	awaiting := next.ItemID != "" &&
		(next.Status == audit.StatusPending || next.Status == audit.StatusSkipped)
	if awaiting && strings.Contains(text, "?") && !strings.Contains(text, submitCallToAction) {
		return text + "\n\n" + submitCallToAction
	}
	return text
}

// appendProgressLine adds the deterministic progress summary unless the
// reply already carries it.
func appendProgressLine(text string, snap audit.Snapshot) string {
	line := audit.ProgressLine(snap)
	if strings.Contains(strings.ToLower(text), strings.ToLower(line)) {
		return text
	}
	return text + "\n\n" + line
}

func summarize(p audit.TypeProgress) string {
	return fmt.Sprintf("%d answered, %d pending, %d skipped out of %d total",
		p.Answered, p.Pending, p.Skipped, p.Total)
}

func boolContext(s *model.TurnState, key string) bool {
	v, ok := s.Context[key].(bool)
	return ok && v
}
