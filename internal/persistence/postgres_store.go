package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mvilaca/triage/pkg/api"
)

// PostgresStore implements ProcessStore and VersionStore on PostgreSQL.
//
// Like the SQLite store it expects a plain *sql.DB; the caller imports a
// driver (pgx stdlib, lib/pq). Statements use $n placeholders but otherwise
// mirror the SQLite store.
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements the interfaces.
var _ ProcessStore = (*PostgresStore)(nil)

var _ VersionStore = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database and
// returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS processes (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			identity_document TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			token TEXT,
			rev BIGINT NOT NULL,
			payload BYTEA NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS processes_active_identity
			ON processes (tenant_id, identity_document)
			WHERE status IN ('IN_PROGRESS', 'PENDING_SUPERVISOR')
			AND identity_document <> '';
		CREATE INDEX IF NOT EXISTS processes_tenant_status
			ON processes (tenant_id, status);
		CREATE UNIQUE INDEX IF NOT EXISTS processes_token
			ON processes (token) WHERE token IS NOT NULL;

		CREATE TABLE IF NOT EXISTS process_steps (
			process_id TEXT NOT NULL,
			step_type TEXT NOT NULL,
			step_order INTEGER NOT NULL,
			rev BIGINT NOT NULL,
			payload BYTEA NOT NULL,
			PRIMARY KEY (process_id, step_type)
		);

		CREATE TABLE IF NOT EXISTS versions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			professional_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			is_current BOOLEAN NOT NULL DEFAULT FALSE,
			pending BOOLEAN NOT NULL DEFAULT TRUE,
			payload BYTEA NOT NULL,
			UNIQUE (professional_id, number)
		);`,
	)
	return err
}

func isPGUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value")
}

func (s *PostgresStore) SaveProcess(ctx context.Context, p *api.Process) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID,
		p.TenantID,
		p.Identification.IdentityDocument,
		string(p.Status),
		tokenValue(p),
		p.Rev,
		payload,
	)
	if err != nil {
		if isPGUniqueViolation(err) {
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
			VALUES ($1, $2, $3, $4, $5)`,
			p.ID, string(step.Type), step.Order, step.Rev, stepPayload,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) getProcessWhere(ctx context.Context, where string, arg any) (*api.Process, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rev, payload FROM processes WHERE `+where, arg)

	var id string
	var rev int64
	var payload []byte
	if err := row.Scan(&id, &rev, &payload); err != nil {
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT rev, payload FROM process_steps
		WHERE process_id = $1
		ORDER BY step_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var stepRev int64
		var stepPayload []byte
		if err := rows.Scan(&stepRev, &stepPayload); err != nil {
			return nil, err
		}
		step, err := DecodeStep(stepPayload)
		if err != nil {
			return nil, err
		}
		step.Rev = stepRev
		p.Steps = append(p.Steps, step)
	}
	return p, rows.Err()
}

func (s *PostgresStore) GetProcess(ctx context.Context, id string) (*api.Process, error) {
	return s.getProcessWhere(ctx, `id = $1`, id)
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*api.Process, error) {
	if token == "" {
		return nil, ErrProcessNotFound
	}
	return s.getProcessWhere(ctx, `token = $1`, token)
}

func (s *PostgresStore) FindActiveByIdentity(ctx context.Context, tenantID, document string) (*api.Process, error) {
	if document == "" {
		return nil, ErrProcessNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM processes
		WHERE tenant_id = $1 AND identity_document = $2
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

func (s *PostgresStore) ListProcesses(ctx context.Context, filter api.ProcessFilter) ([]*api.Process, error) {
	query := `SELECT id FROM processes`
	var args []any
	var clauses []string

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		clauses = append(clauses, "tenant_id = $1")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 1 {
			clauses = append(clauses, "status = $1")
		} else {
			clauses = append(clauses, "status = $2")
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

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

func (s *PostgresStore) UpdateProcess(ctx context.Context, p *api.Process) error {
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
		SET tenant_id = $1, identity_document = $2, status = $3, token = $4, rev = rev + 1, payload = $5
		WHERE id = $6 AND rev = $7`,
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
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM processes WHERE id = $1`, p.ID)
		var exists int
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrProcessNotFound
		}
		return ErrConflict
	}

	for _, step := range p.Steps {
		stepPayload, err := EncodeStep(step)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE process_steps
			SET step_order = $1, rev = rev + 1, payload = $2
			WHERE process_id = $3 AND step_type = $4 AND rev = $5`,
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

func (s *PostgresStore) UpdateStep(ctx context.Context, processID string, step *api.Step) error {
	payload, err := EncodeStep(step)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE process_steps
		SET step_order = $1, rev = rev + 1, payload = $2
		WHERE process_id = $3 AND step_type = $4 AND rev = $5`,
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
		row := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM process_steps WHERE process_id = $1 AND step_type = $2`,
			processID, string(step.Type))
		var exists int
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

func (s *PostgresStore) SaveVersion(ctx context.Context, v *api.Version) error {
	payload, err := EncodeVersion(v)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO versions (id, tenant_id, professional_id, number, is_current, pending, payload)
		VALUES ($1, $2, $3, $4, FALSE, TRUE, $5)`,
		v.ID, v.TenantID, v.ProfessionalID, v.Number, payload,
	)
	if err != nil {
		if isPGUniqueViolation(err) {
			return ErrDuplicateVersion
		}
		return err
	}
	return nil
}

func (s *PostgresStore) getVersionWhere(ctx context.Context, q sqlQueryRow, where string, args ...any) (*api.Version, error) {
	row := q.QueryRowContext(ctx, `
		SELECT is_current, payload FROM versions WHERE `+where, args...)

	var current bool
	var payload []byte
	if err := row.Scan(&current, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}

	v, err := DecodeVersion(payload)
	if err != nil {
		return nil, err
	}
	v.Current = current
	return v, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, id string) (*api.Version, error) {
	return s.getVersionWhere(ctx, s.db, `id = $1`, id)
}

func (s *PostgresStore) CurrentVersion(ctx context.Context, professionalID string) (*api.Version, error) {
	return s.getVersionWhere(ctx, s.db, `professional_id = $1 AND is_current`, professionalID)
}

func (s *PostgresStore) ListVersions(ctx context.Context, professionalID string) ([]*api.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT is_current, payload FROM versions
		WHERE professional_id = $1
		ORDER BY number`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*api.Version
	for rows.Next() {
		var current bool
		var payload []byte
		if err := rows.Scan(&current, &payload); err != nil {
			return nil, err
		}
		v, err := DecodeVersion(payload)
		if err != nil {
			return nil, err
		}
		v.Current = current
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) MarkApplied(ctx context.Context, versionID, actorID string, at time.Time) (*api.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	v, err := s.getVersionWhere(ctx, tx, `id = $1 FOR UPDATE`, versionID)
	if err != nil {
		return nil, err
	}
	if !v.Pending() {
		return nil, ErrNotPending
	}

	applied := at
	v.AppliedAt = &applied
	v.AppliedBy = actorID

	payload, err := EncodeVersion(v)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE versions SET is_current = FALSE
		WHERE professional_id = $1 AND is_current`, v.ProfessionalID,
	); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE versions SET is_current = TRUE, pending = FALSE, payload = $1
		WHERE id = $2 AND pending`, payload, versionID,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotPending
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	v.Current = true
	return v, nil
}

func (s *PostgresStore) MarkRejected(ctx context.Context, versionID, reason, actorID string, at time.Time) (*api.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	v, err := s.getVersionWhere(ctx, tx, `id = $1 FOR UPDATE`, versionID)
	if err != nil {
		return nil, err
	}
	if !v.Pending() {
		return nil, ErrNotPending
	}

	rejected := at
	v.RejectedAt = &rejected
	v.RejectedBy = actorID
	v.RejectionReason = reason

	payload, err := EncodeVersion(v)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE versions SET pending = FALSE, payload = $1
		WHERE id = $2 AND pending`, payload, versionID,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotPending
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return v, nil
}
