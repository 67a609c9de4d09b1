package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/riskpilot-core/server/internal/agent/model"
)

// SQLiteStore implements the document stores on an embedded sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// table-lock errors under concurrent handlers.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS risks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		risk_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		likelihood TEXT NOT NULL DEFAULT '',
		impact TEXT NOT NULL DEFAULT '',
		treatment TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		linked_controls TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_risks_user ON risks(user_id, risk_id);

	CREATE TABLE IF NOT EXISTS controls (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		control_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		annex_a_map TEXT NOT NULL DEFAULT '[]',
		linked_risk_ids TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_controls_user ON controls(user_id, control_id);

	CREATE TABLE IF NOT EXISTS risk_profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		appetite TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS audit_items (
		item_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		iso_reference TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		answer TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_items_user ON audit_items(user_id, type, seq);

	CREATE TABLE IF NOT EXISTS audit_evidence (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_url TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_audit_evidence_item ON audit_evidence(item_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func marshalList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalList(raw string) []string {
	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil || len(v) == 0 {
		return nil
	}
	return v
}

func (s *SQLiteStore) SaveRisks(ctx context.Context, userID string, risks []model.Risk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, r := range risks {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO risks (id, user_id, risk_id, title, description, category, likelihood, impact, treatment, owner, linked_controls)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title=excluded.title, description=excluded.description, category=excluded.category,
				likelihood=excluded.likelihood, impact=excluded.impact, treatment=excluded.treatment,
				owner=excluded.owner, linked_controls=excluded.linked_controls`,
			r.ID, userID, r.RiskID, r.Title, r.Description, r.Category,
			r.Likelihood, r.Impact, r.Treatment, r.Owner, marshalList(r.LinkedControls))
		if err != nil {
			return fmt.Errorf("save risk %s: %w", r.RiskID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRisks(ctx context.Context, userID string) ([]model.Risk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, risk_id, title, description, category, likelihood, impact, treatment, owner, linked_controls
		FROM risks WHERE user_id = ? ORDER BY risk_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Risk
	for rows.Next() {
		var r model.Risk
		var linked string
		if err := rows.Scan(&r.ID, &r.RiskID, &r.Title, &r.Description, &r.Category,
			&r.Likelihood, &r.Impact, &r.Treatment, &r.Owner, &linked); err != nil {
			return nil, err
		}
		r.LinkedControls = unmarshalList(linked)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRisk(ctx context.Context, userID, riskID string) (model.Risk, error) {
	var r model.Risk
	var linked string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, risk_id, title, description, category, likelihood, impact, treatment, owner, linked_controls
		FROM risks WHERE user_id = ? AND (risk_id = ? OR id = ?)`, userID, riskID, riskID).
		Scan(&r.ID, &r.RiskID, &r.Title, &r.Description, &r.Category,
			&r.Likelihood, &r.Impact, &r.Treatment, &r.Owner, &linked)
	if err == sql.ErrNoRows {
		return model.Risk{}, ErrNotFound
	}
	if err != nil {
		return model.Risk{}, err
	}
	r.LinkedControls = unmarshalList(linked)
	return r, nil
}

var riskFields = map[string]string{
	"title":       "title",
	"description": "description",
	"category":    "category",
	"likelihood":  "likelihood",
	"impact":      "impact",
	"treatment":   "treatment",
	"owner":       "owner",
}

func (s *SQLiteStore) UpdateRiskField(ctx context.Context, userID, riskID, field, value string) error {
	col, ok := riskFields[field]
	if !ok {
		return fmt.Errorf("risk field %q: %w", field, ErrInvalidField)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE risks SET `+col+` = ? WHERE user_id = ? AND (risk_id = ? OR id = ?)`,
		value, userID, riskID, riskID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) DeleteRisk(ctx context.Context, userID, riskID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM risks WHERE user_id = ? AND (risk_id = ? OR id = ?)`, userID, riskID, riskID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) SaveControls(ctx context.Context, userID string, controls []model.Control) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, c := range controls {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO controls (id, user_id, control_id, title, description, category, annex_a_map, linked_risk_ids, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title=excluded.title, description=excluded.description, category=excluded.category,
				annex_a_map=excluded.annex_a_map, linked_risk_ids=excluded.linked_risk_ids, status=excluded.status`,
			c.ID, userID, c.ControlID, c.Title, c.Description, c.Category,
			marshalList(c.AnnexAMap), marshalList(c.LinkedRiskIDs), c.Status)
		if err != nil {
			return fmt.Errorf("save control %s: %w", c.ControlID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListControls(ctx context.Context, userID string) ([]model.Control, error) {
	return s.queryControls(ctx, `SELECT id, control_id, title, description, category, annex_a_map, linked_risk_ids, status
		FROM controls WHERE user_id = ? ORDER BY control_id`, userID)
}

func (s *SQLiteStore) ListControlsByAnnex(ctx context.Context, userID, annexRef string) ([]model.Control, error) {
	// annex_a_map is a JSON array of references; a quoted LIKE match keeps
	// A.9.2 from matching A.9.22.
	return s.queryControls(ctx, `SELECT id, control_id, title, description, category, annex_a_map, linked_risk_ids, status
		FROM controls WHERE user_id = ? AND annex_a_map LIKE ? ORDER BY control_id`,
		userID, `%"`+annexRef+`"%`)
}

func (s *SQLiteStore) queryControls(ctx context.Context, q string, args ...any) ([]model.Control, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Control
	for rows.Next() {
		var c model.Control
		var annex, linked string
		if err := rows.Scan(&c.ID, &c.ControlID, &c.Title, &c.Description, &c.Category,
			&annex, &linked, &c.Status); err != nil {
			return nil, err
		}
		c.AnnexAMap = unmarshalList(annex)
		c.LinkedRiskIDs = unmarshalList(linked)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetControl(ctx context.Context, userID, controlID string) (model.Control, error) {
	controls, err := s.queryControls(ctx, `SELECT id, control_id, title, description, category, annex_a_map, linked_risk_ids, status
		FROM controls WHERE user_id = ? AND (control_id = ? OR id = ?)`, userID, controlID, controlID)
	if err != nil {
		return model.Control{}, err
	}
	if len(controls) == 0 {
		return model.Control{}, ErrNotFound
	}
	return controls[0], nil
}

func (s *SQLiteStore) DeleteControl(ctx context.Context, userID, controlID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM controls WHERE user_id = ? AND (control_id = ? OR id = ?)`, userID, controlID, controlID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p RiskProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_profiles (id, user_id, name, description, appetite)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, appetite=excluded.appetite`,
		p.ID, p.UserID, p.Name, p.Description, p.Appetite)
	return err
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, userID string) ([]RiskProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, appetite FROM risk_profiles WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RiskProfile
	for rows.Next() {
		var p RiskProfile
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Appetite); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
