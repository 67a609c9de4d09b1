package model

import "context"

// SessionSnapshot is the cross-turn state persisted alongside the transcript.
type SessionSnapshot struct {
	Context    map[string]any `json:"context"`
	ActiveMode string         `json:"active_mode"`
}

// ConversationRepository persists transcripts and session snapshots. Writes
// are last-write-wins per session; the repository refreshes the session TTL
// on every touch.
type ConversationRepository interface {
	AddExchange(ctx context.Context, sessionID string, ex Exchange) error
	LoadHistory(ctx context.Context, sessionID string) ([]Exchange, error)
	LoadSnapshot(ctx context.Context, sessionID string) (SessionSnapshot, error)
	SaveSnapshot(ctx context.Context, sessionID string, snap SessionSnapshot) error
	ClearSession(ctx context.Context, sessionID string) error
}
