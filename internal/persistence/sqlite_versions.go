package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mvilaca/triage/pkg/api"
)

func (s *SQLiteStore) SaveVersion(ctx context.Context, v *api.Version) error {
	payload, err := EncodeVersion(v)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO versions (id, tenant_id, professional_id, number, is_current, pending, payload)
		VALUES (?, ?, ?, ?, 0, 1, ?)`,
		v.ID, v.TenantID, v.ProfessionalID, v.Number, payload,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateVersion
		}
		return err
	}
	return nil
}

type sqlQueryRow interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getVersionWhere(ctx context.Context, q sqlQueryRow, where string, args ...any) (*api.Version, error) {
	row := q.QueryRowContext(ctx, `
		SELECT is_current, payload FROM versions WHERE `+where, args...)

	var current int
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
	v.Current = current != 0
	return v, nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, id string) (*api.Version, error) {
	return getVersionWhere(ctx, s.db, `id = ?`, id)
}

func (s *SQLiteStore) CurrentVersion(ctx context.Context, professionalID string) (*api.Version, error) {
	return getVersionWhere(ctx, s.db, `professional_id = ? AND is_current = 1`, professionalID)
}

func (s *SQLiteStore) ListVersions(ctx context.Context, professionalID string) ([]*api.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT is_current, payload FROM versions
		WHERE professional_id = ?
		ORDER BY number`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*api.Version
	for rows.Next() {
		var current int
		var payload []byte
		if err := rows.Scan(&current, &payload); err != nil {
			return nil, err
		}
		v, err := DecodeVersion(payload)
		if err != nil {
			return nil, err
		}
		v.Current = current != 0
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) MarkApplied(ctx context.Context, versionID, actorID string, at time.Time) (*api.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	v, err := getVersionWhere(ctx, tx, `id = ?`, versionID)
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

	// Flip the previous current version and promote this one in the same
	// transaction; the exactly-one-current invariant never has a visible
	// intermediate state.
	if _, err := tx.ExecContext(ctx, `
		UPDATE versions SET is_current = 0
		WHERE professional_id = ? AND is_current = 1`, v.ProfessionalID,
	); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE versions SET is_current = 1, pending = 0, payload = ?
		WHERE id = ? AND pending = 1`, payload, versionID,
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

func (s *SQLiteStore) MarkRejected(ctx context.Context, versionID, reason, actorID string, at time.Time) (*api.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	v, err := getVersionWhere(ctx, tx, `id = ?`, versionID)
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
		UPDATE versions SET pending = 0, payload = ?
		WHERE id = ? AND pending = 1`, payload, versionID,
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
