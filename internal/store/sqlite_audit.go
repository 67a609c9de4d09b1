package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/riskpilot-core/server/internal/audit"
)

func (s *SQLiteStore) SeedChecklist(ctx context.Context, userID string, items []audit.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, it := range items {
		if it.ItemID == "" {
			it.ItemID = uuid.NewString()
		}
		if it.Status == "" {
			it.Status = audit.StatusPending
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_items (item_id, user_id, seq, type, iso_reference, title, description, status, answer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_id) DO NOTHING`,
			it.ItemID, userID, i, it.Type, it.ISOReference, it.Title, it.Description, it.Status, it.Answer)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListItems(ctx context.Context, userID string) ([]audit.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, type, iso_reference, title, description, status, answer
		FROM audit_items WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.Item
	for rows.Next() {
		var it audit.Item
		if err := rows.Scan(&it.ItemID, &it.Type, &it.ISOReference, &it.Title,
			&it.Description, &it.Status, &it.Answer); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		evs, err := s.listEvidence(ctx, out[i].ItemID)
		if err != nil {
			return nil, err
		}
		out[i].Evidences = evs
	}
	return out, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, userID, itemID string) (audit.Item, error) {
	var it audit.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, type, iso_reference, title, description, status, answer
		FROM audit_items WHERE user_id = ? AND (item_id = ? OR iso_reference = ?)`,
		userID, itemID, itemID).
		Scan(&it.ItemID, &it.Type, &it.ISOReference, &it.Title, &it.Description, &it.Status, &it.Answer)
	if err == sql.ErrNoRows {
		return audit.Item{}, ErrNotFound
	}
	if err != nil {
		return audit.Item{}, err
	}
	it.Evidences, err = s.listEvidence(ctx, it.ItemID)
	return it, err
}

func (s *SQLiteStore) NextActionable(ctx context.Context, userID string, t audit.ItemType) (audit.Item, error) {
	var it audit.Item
	// Pending items first in checklist order, then skipped items come back
	// around for a second pass.
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, type, iso_reference, title, description, status, answer
		FROM audit_items
		WHERE user_id = ? AND type = ? AND status IN ('pending', 'skipped')
		ORDER BY CASE status WHEN 'pending' THEN 0 ELSE 1 END, seq
		LIMIT 1`, userID, t).
		Scan(&it.ItemID, &it.Type, &it.ISOReference, &it.Title, &it.Description, &it.Status, &it.Answer)
	if err == sql.ErrNoRows {
		return audit.Item{}, ErrNotFound
	}
	if err != nil {
		return audit.Item{}, err
	}
	it.Evidences, err = s.listEvidence(ctx, it.ItemID)
	return it, err
}

func (s *SQLiteStore) Progress(ctx context.Context, userID string) (audit.Snapshot, error) {
	items, err := s.ListItems(ctx, userID)
	if err != nil {
		return audit.Snapshot{}, err
	}
	return audit.Compute(items), nil
}

func (s *SQLiteStore) SubmitAnswer(ctx context.Context, userID, itemID, answer string) error {
	return s.setStatus(ctx, userID, itemID, audit.StatusAnswered, &answer)
}

func (s *SQLiteStore) MarkSkipped(ctx context.Context, userID, itemID string) error {
	return s.setStatus(ctx, userID, itemID, audit.StatusSkipped, nil)
}

func (s *SQLiteStore) ResetToPending(ctx context.Context, userID, itemID string) error {
	empty := ""
	return s.setStatus(ctx, userID, itemID, audit.StatusPending, &empty)
}

func (s *SQLiteStore) Exclude(ctx context.Context, userID, itemID string) error {
	return s.setStatus(ctx, userID, itemID, audit.StatusExcluded, nil)
}

func (s *SQLiteStore) setStatus(ctx context.Context, userID, itemID string, st audit.Status, answer *string) error {
	var res sql.Result
	var err error
	if answer != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE audit_items SET status = ?, answer = ?
			WHERE user_id = ? AND (item_id = ? OR iso_reference = ?)`,
			st, *answer, userID, itemID, itemID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE audit_items SET status = ?
			WHERE user_id = ? AND (item_id = ? OR iso_reference = ?)`,
			st, userID, itemID, itemID)
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) DeleteItem(ctx context.Context, userID, itemID string) error {
	it, err := s.GetItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audit_evidence WHERE item_id = ?`, it.ItemID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_items WHERE user_id = ? AND item_id = ?`, userID, it.ItemID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) AppendEvidence(ctx context.Context, userID, itemID string, ev audit.Evidence) error {
	it, err := s.GetItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	meta := "{}"
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_evidence (id, item_id, user_id, file_name, file_url, note, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, it.ItemID, userID, ev.FileName, ev.FileURL, ev.Note, ev.CreatedAt, meta)
	return err
}

func (s *SQLiteStore) RemoveEvidence(ctx context.Context, userID, itemID, evidenceID string) error {
	it, err := s.GetItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_evidence WHERE item_id = ? AND id = ?`, it.ItemID, evidenceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) listEvidence(ctx context.Context, itemID string) ([]audit.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, file_url, note, created_at, metadata
		FROM audit_evidence WHERE item_id = ? ORDER BY created_at`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.Evidence
	for rows.Next() {
		var ev audit.Evidence
		var meta string
		if err := rows.Scan(&ev.ID, &ev.FileName, &ev.FileURL, &ev.Note, &ev.CreatedAt, &meta); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &ev.Metadata)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
