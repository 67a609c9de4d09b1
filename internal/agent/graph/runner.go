package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/riskpilot-core/server/internal/agent/graph/nodes"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/pkg/logger"
)

// TurnResult is what one conversation turn returns to the caller.
type TurnResult struct {
	Response string           `json:"response"`
	History  []model.Exchange `json:"conversation_history"`
	Context  map[string]any   `json:"risk_context"`
}

// Runner executes turns against the compiled graph and persists session
// state around each one. Turns within one session are expected to be
// serialized by the caller.
type Runner struct {
	repo     model.ConversationRepository
	runnable compose.Runnable[*model.TurnState, *model.TurnState]
}

func NewRunner(ctx context.Context, deps *nodes.Deps, repo model.ConversationRepository, cfg Config) (*Runner, error) {
	runnable, err := NewBuilder(deps, cfg).Build(ctx)
	if err != nil {
		return nil, err
	}
	return &Runner{repo: repo, runnable: runnable}, nil
}

// Run restores the session, executes one turn and persists the outcome.
func (r *Runner) Run(ctx context.Context, in model.TurnInput) (*TurnResult, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	snap, err := r.repo.LoadSnapshot(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	history, err := r.repo.LoadHistory(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	state := model.NewTurnState(in, history, snap.Context, snap.ActiveMode)
	out, err := r.runnable.Invoke(ctx, state)
	if err != nil {
		// Handlers absorb their own failures; reaching here means the
		// engine itself misbehaved.
		return nil, fmt.Errorf("invoke graph: %w", err)
	}

	if n := len(out.History); n > 0 {
		if err := r.repo.AddExchange(ctx, in.SessionID, out.History[n-1]); err != nil {
			logx.Error().Err(err).Str("session", in.SessionID).Msg("persist exchange failed")
		}
	}
	if err := r.repo.SaveSnapshot(ctx, in.SessionID, model.SessionSnapshot{
		Context:    out.Context,
		ActiveMode: out.ActiveMode,
	}); err != nil {
		logx.Error().Err(err).Str("session", in.SessionID).Msg("persist snapshot failed")
	}

	return &TurnResult{Response: out.Output, History: out.History, Context: out.Context}, nil
}

// Reset wipes a session's transcript and snapshot.
func (r *Runner) Reset(ctx context.Context, sessionID string) error {
	return r.repo.ClearSession(ctx, sessionID)
}
