package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// ArtifactStore is the storage service holding uploaded files. The engine
// never inspects file bytes; it tracks references and asks the store to
// reclaim artifacts that ended up pending on a rejected or cancelled
// process.
type ArtifactStore interface {
	// Reclaim releases the storage behind an artifact reference. It must be
	// idempotent: reclaiming an already-reclaimed reference is not an error.
	Reclaim(ctx context.Context, ref string) error
}

// Directory is the canonical professional record and its nested collections.
// It is consumed exclusively by the versioning engine.
type Directory interface {
	// Snapshot returns the current full snapshot of a professional, or
	// ErrNotFound when the professional does not exist.
	Snapshot(ctx context.Context, professionalID string) (Value, error)

	// ApplySnapshot applies a snapshot field-by-field to the live
	// professional entity, creating the entity under the given id if it does
	// not exist yet.
	ApplySnapshot(ctx context.Context, tenantID, professionalID string, snap Value) error

	// FindByIdentityDocument returns the id of the professional holding the
	// given identity document within the tenant, or "" when none does.
	FindByIdentityDocument(ctx context.Context, tenantID, document string) (string, error)
}

// TokenSource issues opaque public-access token values. Implementations must
// guarantee uniqueness per unexpired token; hashing/formatting policy is
// theirs.
type TokenSource interface {
	Issue(ctx context.Context) (string, error)
}

// RandomTokenSource issues 32-byte random hex tokens. It is the default
// TokenSource when none is configured.
type RandomTokenSource struct{}

func (RandomTokenSource) Issue(ctx context.Context) (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
