// Package audit models the ISO 27001 readiness checklist: clause and
// Annex A items, per-type progress and the two-phase facilitation sequence.
package audit

import (
	"fmt"
	"time"
)

// Status is an item's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAnswered Status = "answered"
	StatusSkipped  Status = "skipped"
	StatusExcluded Status = "excluded"
)

// ItemType distinguishes clause checklist entries from Annex A controls.
type ItemType string

const (
	TypeClause ItemType = "clause"
	TypeAnnex  ItemType = "annex"
)

// Phase is the facilitation phase derived from progress each turn.
type Phase string

const (
	PhaseClauses Phase = "clauses"
	PhaseAnnexes Phase = "annexes"
)

// Evidence is one attachment recorded against an item.
type Evidence struct {
	ID        string         `json:"id"`
	FileName  string         `json:"file_name"`
	FileURL   string         `json:"file_url"`
	Note      string         `json:"note,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Item is one checklist entry.
type Item struct {
	ItemID       string     `json:"item_id"`
	Type         ItemType   `json:"type"`
	ISOReference string     `json:"iso_reference"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       Status     `json:"status"`
	Answer       string     `json:"answer,omitempty"`
	Evidences    []Evidence `json:"evidences,omitempty"`
}

// TypeProgress aggregates item counts for one item type. It is always
// recomputed from the item set, never stored.
type TypeProgress struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Answered int `json:"answered"`
	Skipped  int `json:"skipped"`
	Excluded int `json:"excluded"`
}

// Remaining counts items still needing attention. Skipped items come back
// around; answered and excluded never do.
func (p TypeProgress) Remaining() int {
	return p.Pending + p.Skipped
}

// Done reports whether this type needs no further work. An empty type
// counts as done.
func (p TypeProgress) Done() bool {
	return p.Total == 0 || p.Remaining() == 0
}

// Snapshot is the per-turn progress view across both item types.
type Snapshot struct {
	Clause TypeProgress `json:"clause"`
	Annex  TypeProgress `json:"annex"`
}

// Compute derives a snapshot from the current item set. Excluded annex items
// are dropped from the active total so percentages reflect only in-scope
// controls; excluded clause items stay counted because clauses are
// mandatory.
func Compute(items []Item) Snapshot {
	var s Snapshot
	for _, it := range items {
		switch it.Type {
		case TypeClause:
			tally(&s.Clause, it.Status, false)
		case TypeAnnex:
			tally(&s.Annex, it.Status, true)
		}
	}
	return s
}

func tally(p *TypeProgress, st Status, excludeFromTotal bool) {
	switch st {
	case StatusPending:
		p.Pending++
	case StatusAnswered:
		p.Answered++
	case StatusSkipped:
		p.Skipped++
	case StatusExcluded:
		p.Excluded++
		if excludeFromTotal {
			return
		}
	}
	p.Total++
}

// ComputePhase re-derives the current phase from progress alone. The phase
// is never trusted across turns: external mutations (a dashboard marking
// items answered, an admin excluding controls) must be reflected
// immediately.
func ComputePhase(s Snapshot) Phase {
	// Annex-only checklists start in the annex phase directly.
	if s.Clause.Total == 0 && s.Annex.Total > 0 {
		return PhaseAnnexes
	}
	if s.Clause.Remaining() == 0 && s.Annex.Total > 0 {
		return PhaseAnnexes
	}
	// Corrective fallback: no annex items at all means clause work is the
	// only thing left, whatever the previous phase claimed.
	return PhaseClauses
}

// Complete reports whether the whole audit is finished.
func Complete(s Snapshot) bool {
	return s.Clause.Done() && s.Annex.Done()
}

// ProgressLine renders the deterministic one-line summary appended to
// facilitator replies.
func ProgressLine(s Snapshot) string {
	return fmt.Sprintf("Progress: clauses %d/%d answered (%d remaining), Annex A %d/%d answered (%d remaining).",
		s.Clause.Answered, s.Clause.Total, s.Clause.Remaining(),
		s.Annex.Answered, s.Annex.Total, s.Annex.Remaining())
}

// CompletionNote is the one-time message appended when the audit finishes.
// The wording distinguishes a checklist that never had Annex A controls from
// one where every control was resolved.
func CompletionNote(s Snapshot) string {
	if s.Annex.Total == 0 && s.Annex.Excluded == 0 {
		return "The audit checklist is complete. All clause items are resolved; no Annex A controls were assigned to this checklist."
	}
	return "The audit checklist is complete. All clause items and all in-scope Annex A controls have been resolved."
}
