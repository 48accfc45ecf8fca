package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvilaca/triage/internal/persistence"
	"github.com/mvilaca/triage/pkg/api"
)

func (e *engineImpl) BuildSnapshot(ctx context.Context, professionalID string) (api.Value, error) {
	if e.directory == nil {
		return api.Value{}, fmt.Errorf("no directory configured: %w", api.ErrFeatureNotSupported)
	}
	snap, err := e.directory.Snapshot(ctx, professionalID)
	if err != nil {
		return api.Value{}, fmt.Errorf("building snapshot of %s: %w", professionalID, err)
	}
	return snap, nil
}

// checkSections validates the top-level shape of a snapshot: it must be an
// object, every field must be a known section name, and every section must be
// enabled for this deployment.
func (e *engineImpl) checkSections(snap api.Value) error {
	if snap.Kind != api.KindObject {
		return fmt.Errorf("snapshot must be an object: %w", api.ErrValidationFailed)
	}
	known := make(map[string]bool)
	for _, s := range api.DefaultSections() {
		known[s] = true
	}
	for name := range snap.Fields {
		if !known[name] {
			return fmt.Errorf("unknown snapshot section %q: %w", name, api.ErrValidationFailed)
		}
		if !e.sections[name] {
			return fmt.Errorf("snapshot section %q is not enabled: %w", name, api.ErrFeatureNotSupported)
		}
	}
	return nil
}

func (e *engineImpl) CreateVersion(ctx context.Context, params api.CreateVersionParams) (*api.Version, error) {
	if params.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required: %w", api.ErrValidationFailed)
	}
	if err := e.checkSections(params.Snapshot); err != nil {
		return nil, err
	}

	// Identity-document uniqueness within the tenant.
	if doc := identityDocument(params.Snapshot); doc != "" && e.directory != nil {
		holder, err := e.directory.FindByIdentityDocument(ctx, params.TenantID, doc)
		if err != nil {
			return nil, fmt.Errorf("checking identity document: %w", err)
		}
		if holder != "" && holder != params.ProfessionalID {
			return nil, fmt.Errorf("identity document already belongs to professional %s: %w", holder, api.ErrValidationFailed)
		}
	}

	professionalID := params.ProfessionalID
	if professionalID == "" {
		// Pre-allocate the id now; the directory entity is created under it
		// when the version is applied.
		professionalID = uuid.NewString()
	}

	baseline := api.Null()
	if cur, err := e.versions.CurrentVersion(ctx, professionalID); err == nil {
		baseline = cur.Snapshot
	} else if !errors.Is(err, persistence.ErrVersionNotFound) {
		return nil, storeErr(err)
	}

	number := 1
	existing, err := e.versions.ListVersions(ctx, professionalID)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(existing) > 0 {
		number = existing[len(existing)-1].Number + 1
	}

	now := e.now()
	v := &api.Version{
		ID:             uuid.NewString(),
		TenantID:       params.TenantID,
		ProfessionalID: professionalID,
		Number:         number,
		Snapshot:       params.Snapshot.Clone(),
		Diffs:          ComputeDiffs(baseline, params.Snapshot),
		Source:         params.Source,
		SourceRef:      params.SourceRef,
		CreatedAt:      now,
		CreatedBy:      params.Actor.ID,
	}

	// A lost race on the version number surfaces as a duplicate here and is
	// mapped to a retryable conflict.
	if err := e.versions.SaveVersion(ctx, v); err != nil {
		return nil, storeErr(err)
	}
	return v, nil
}

func (e *engineImpl) GetVersion(ctx context.Context, id string) (*api.Version, error) {
	v, err := e.versions.GetVersion(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return v, nil
}

func (e *engineImpl) ListVersions(ctx context.Context, professionalID string) ([]*api.Version, error) {
	vs, err := e.versions.ListVersions(ctx, professionalID)
	if err != nil {
		return nil, storeErr(err)
	}
	return vs, nil
}

func (e *engineImpl) ApplyVersion(ctx context.Context, versionID string, actor api.Actor) (*api.Version, error) {
	v, err := e.versions.GetVersion(ctx, versionID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !v.Pending() {
		return nil, fmt.Errorf("version %s: %w", versionID, api.ErrVersionNotPending)
	}
	if err := e.checkSections(v.Snapshot); err != nil {
		return nil, err
	}
	if e.directory == nil {
		return nil, fmt.Errorf("no directory configured: %w", api.ErrFeatureNotSupported)
	}

	if err := e.directory.ApplySnapshot(ctx, v.TenantID, v.ProfessionalID, v.Snapshot); err != nil {
		return nil, fmt.Errorf("applying snapshot of version %s: %w", versionID, err)
	}
	applied, err := e.versions.MarkApplied(ctx, versionID, actor.ID, e.now())
	if err != nil {
		return nil, storeErr(err)
	}
	e.observer.OnVersionApplied(ctx, applied)
	return applied, nil
}

func (e *engineImpl) RejectVersion(ctx context.Context, versionID, reason string, actor api.Actor) (*api.Version, error) {
	rejected, err := e.versions.MarkRejected(ctx, versionID, reason, actor.ID, e.now())
	if err != nil {
		return nil, storeErr(err)
	}
	return rejected, nil
}

// identityDocument extracts personal_info.identity_document from a snapshot.
func identityDocument(snap api.Value) string {
	personal, ok := snap.Field(api.SectionPersonalInfo)
	if !ok {
		return ""
	}
	return personal.StringField("identity_document")
}
