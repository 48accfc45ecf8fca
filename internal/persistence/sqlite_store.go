package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mvilaca/triage/pkg/api"
)

// SQLiteStore implements ProcessStore and VersionStore on SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Rows keep the fields the store filters on as columns and the rest of the
// aggregate as a gob blob.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ ProcessStore = (*SQLiteStore)(nil)

var _ VersionStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS processes (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			identity_document TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			token TEXT,
			rev INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS processes_active_identity
			ON processes (tenant_id, identity_document)
			WHERE status IN ('IN_PROGRESS', 'PENDING_SUPERVISOR')
			AND identity_document != '';
		CREATE INDEX IF NOT EXISTS processes_tenant_status
			ON processes (tenant_id, status);
		CREATE UNIQUE INDEX IF NOT EXISTS processes_token
			ON processes (token) WHERE token IS NOT NULL;

		CREATE TABLE IF NOT EXISTS process_steps (
			process_id TEXT NOT NULL,
			step_type TEXT NOT NULL,
			step_order INTEGER NOT NULL,
			rev INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (process_id, step_type)
		);

		CREATE TABLE IF NOT EXISTS versions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			professional_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			is_current INTEGER NOT NULL DEFAULT 0,
			pending INTEGER NOT NULL DEFAULT 1,
			payload BLOB NOT NULL,
			UNIQUE (professional_id, number)
		);
		CREATE INDEX IF NOT EXISTS versions_professional
			ON versions (professional_id, number);`,
	)
	return err
}

// isUniqueViolation detects constraint errors from the sqlite driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func tokenValue(p *api.Process) any {
	if p.Token == nil || p.Token.Value == "" {
		return nil
	}
	return p.Token.Value
}

func (s *SQLiteStore) SaveProcess(ctx context.Context, p *api.Process) error {
	payload, err := EncodeProcess(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO processes (id, tenant_id, identity_document, status, token, rev, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.TenantID,
		p.Identification.IdentityDocument,
		string(p.Status),
		tokenValue(p),
		p.Rev,
		payload,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveProcess
		}
		return err
	}

	for _, step := range p.Steps {
		stepPayload, err := EncodeStep(step)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO process_steps (process_id, step_type, step_order, rev, payload)
			VALUES (?, ?, ?, ?, ?)`,
			p.ID, string(step.Type), step.Order, step.Rev, stepPayload,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// loadSteps attaches the step rows to a decoded process.
func (s *SQLiteStore) loadSteps(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, p *api.Process) error {
	rows, err := q.QueryContext(ctx, `
		SELECT rev, payload FROM process_steps
		WHERE process_id = ?
		ORDER BY step_order`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rev int64
		var payload []byte
		if err := rows.Scan(&rev, &payload); err != nil {
			return err
		}
		step, err := DecodeStep(payload)
		if err != nil {
			return err
		}
		step.Rev = rev
		p.Steps = append(p.Steps, step)
	}
	return rows.Err()
}

func (s *SQLiteStore) getProcessWhere(ctx context.Context, where string, arg any) (*api.Process, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT rev, payload FROM processes WHERE `+where, arg)

	var rev int64
	var payload []byte
	if err := row.Scan(&rev, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProcessNotFound
		}
		return nil, err
	}

	p, err := DecodeProcess(payload)
	if err != nil {
		return nil, err
	}
	p.Rev = rev
	if err := s.loadSteps(ctx, s.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) GetProcess(ctx context.Context, id string) (*api.Process, error) {
	return s.getProcessWhere(ctx, `id = ?`, id)
}

func (s *SQLiteStore) FindByToken(ctx context.Context, token string) (*api.Process, error) {
	if token == "" {
		return nil, ErrProcessNotFound
	}
	return s.getProcessWhere(ctx, `token = ?`, token)
}

func (s *SQLiteStore) FindActiveByIdentity(ctx context.Context, tenantID, document string) (*api.Process, error) {
	if document == "" {
		return nil, ErrProcessNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM processes
		WHERE tenant_id = ? AND identity_document = ?
		AND status IN ('IN_PROGRESS', 'PENDING_SUPERVISOR')`,
		tenantID, document)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProcessNotFound
		}
		return nil, err
	}
	return s.GetProcess(ctx, id)
}

func (s *SQLiteStore) ListProcesses(ctx context.Context, filter api.ProcessFilter) ([]*api.Process, error) {
	query := `SELECT id FROM processes`
	var args []any
	var clauses []string

	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	processes := make([]*api.Process, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProcess(ctx, id)
		if err != nil {
			return nil, err
		}
		processes = append(processes, p)
	}
	return processes, nil
}

func (s *SQLiteStore) UpdateProcess(ctx context.Context, p *api.Process) error {
	payload, err := EncodeProcess(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE processes
		SET tenant_id = ?, identity_document = ?, status = ?, token = ?, rev = rev + 1, payload = ?
		WHERE id = ? AND rev = ?`,
		p.TenantID,
		p.Identification.IdentityDocument,
		string(p.Status),
		tokenValue(p),
		payload,
		p.ID,
		p.Rev,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.missingOrConflict(ctx, p.ID)
	}

	for _, step := range p.Steps {
		stepPayload, err := EncodeStep(step)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE process_steps
			SET step_order = ?, rev = rev + 1, payload = ?
			WHERE process_id = ? AND step_type = ? AND rev = ?`,
			step.Order, stepPayload, p.ID, string(step.Type), step.Rev,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	p.Rev++
	for _, step := range p.Steps {
		step.Rev++
	}
	return nil
}

func (s *SQLiteStore) UpdateStep(ctx context.Context, processID string, step *api.Step) error {
	payload, err := EncodeStep(step)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE process_steps
		SET step_order = ?, rev = rev + 1, payload = ?
		WHERE process_id = ? AND step_type = ? AND rev = ?`,
		step.Order, payload, processID, string(step.Type), step.Rev,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		row := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM process_steps WHERE process_id = ? AND step_type = ?`,
			processID, string(step.Type))
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrProcessNotFound
		}
		return ErrConflict
	}

	step.Rev++
	return nil
}

// missingOrConflict distinguishes a vanished row from a revision mismatch.
func (s *SQLiteStore) missingOrConflict(ctx context.Context, id string) error {
	var exists int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processes WHERE id = ?`, id)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrProcessNotFound
	}
	return ErrConflict
}
