// Package store persists risks, controls, organisation risk profiles and
// the audit checklist. All queries are tenant-scoped by user id.
package store

import (
	"context"
	"errors"

	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/audit"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidField is returned when an update names a field that is not
// updatable.
var ErrInvalidField = errors.New("store: field not updatable")

// Result is the envelope tool handlers return to the model. Tool callers
// check Success per call; a failed call degrades that step, never the turn.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a success envelope.
func OK(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail builds a failure envelope.
func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// RiskProfile is one organisation-level risk appetite statement used to
// steer risk generation.
type RiskProfile struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Appetite    string `json:"appetite"`
}

// RiskStore persists the per-tenant risk register.
type RiskStore interface {
	SaveRisks(ctx context.Context, userID string, risks []model.Risk) error
	ListRisks(ctx context.Context, userID string) ([]model.Risk, error)
	GetRisk(ctx context.Context, userID, riskID string) (model.Risk, error)
	UpdateRiskField(ctx context.Context, userID, riskID, field, value string) error
	DeleteRisk(ctx context.Context, userID, riskID string) error
}

// ControlStore persists the per-tenant control library.
type ControlStore interface {
	SaveControls(ctx context.Context, userID string, controls []model.Control) error
	ListControls(ctx context.Context, userID string) ([]model.Control, error)
	ListControlsByAnnex(ctx context.Context, userID, annexRef string) ([]model.Control, error)
	GetControl(ctx context.Context, userID, controlID string) (model.Control, error)
	DeleteControl(ctx context.Context, userID, controlID string) error
}

// ProfileStore persists organisation risk profiles.
type ProfileStore interface {
	SaveProfile(ctx context.Context, p RiskProfile) error
	ListProfiles(ctx context.Context, userID string) ([]RiskProfile, error)
}

// AuditStore persists the audit checklist and its evidence. Progress is
// always recomputed from the item rows, never cached.
type AuditStore interface {
	SeedChecklist(ctx context.Context, userID string, items []audit.Item) error
	ListItems(ctx context.Context, userID string) ([]audit.Item, error)
	GetItem(ctx context.Context, userID, itemID string) (audit.Item, error)
	// NextActionable returns the first pending item of the given type in
	// checklist order, falling back to the first skipped item when nothing
	// is pending. ErrNotFound means the type has no remaining work.
	NextActionable(ctx context.Context, userID string, t audit.ItemType) (audit.Item, error)
	Progress(ctx context.Context, userID string) (audit.Snapshot, error)

	SubmitAnswer(ctx context.Context, userID, itemID, answer string) error
	MarkSkipped(ctx context.Context, userID, itemID string) error
	ResetToPending(ctx context.Context, userID, itemID string) error
	Exclude(ctx context.Context, userID, itemID string) error
	DeleteItem(ctx context.Context, userID, itemID string) error

	AppendEvidence(ctx context.Context, userID, itemID string, ev audit.Evidence) error
	RemoveEvidence(ctx context.Context, userID, itemID, evidenceID string) error
}
