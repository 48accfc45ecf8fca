package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mvilaca/triage/pkg/api"
)

func TestCreateVersionPreAllocatesProfessional(t *testing.T) {
	env := newTestEnv(t)

	v, err := env.eng.CreateVersion(context.Background(), api.CreateVersionParams{
		TenantID: "acme",
		Snapshot: snapshotFor("Maria Souza", "12345678900"),
		Source:   api.SourceScreening,
		Actor:    recruiter,
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	if v.ProfessionalID == "" {
		t.Fatal("professional id not allocated")
	}
	if v.Number != 1 {
		t.Fatalf("number = %d, want 1", v.Number)
	}
	if !v.Pending() {
		t.Fatal("new version should be pending")
	}
	if v.Current {
		t.Fatal("new version must not be current")
	}
	// Against the empty baseline every leaf is an addition.
	for _, d := range v.Diffs {
		if d.Kind != api.ChangeAdded {
			t.Errorf("diff %s kind = %s, want %s", d.Path, d.Kind, api.ChangeAdded)
		}
	}
}

func TestApplyVersionMakesCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v := appliedVersion(t, env.eng, "", snapshotFor("Maria Souza", "12345678900"))

	if !v.Current {
		t.Fatal("applied version is not current")
	}
	if v.AppliedAt == nil || v.AppliedBy != recruiter.ID {
		t.Errorf("apply stamp missing: at=%v by=%q", v.AppliedAt, v.AppliedBy)
	}
	// The directory received the snapshot.
	snap, err := env.dir.Snapshot(ctx, v.ProfessionalID)
	if err != nil {
		t.Fatalf("directory snapshot: %v", err)
	}
	personal, _ := snap.Field(api.SectionPersonalInfo)
	if personal.StringField("full_name") != "Maria Souza" {
		t.Errorf("directory snapshot = %+v", snap)
	}

	// Applying twice is refused.
	_, err = env.eng.ApplyVersion(ctx, v.ID, recruiter)
	if !errors.Is(err, api.ErrVersionNotPending) {
		t.Fatalf("err = %v, want ErrVersionNotPending", err)
	}
}

func TestSecondVersionDiffsAgainstCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := appliedVersion(t, env.eng, "", snapshotFor("Maria Souza", "12345678900"))

	second, err := env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID:       "acme",
		ProfessionalID: first.ProfessionalID,
		Snapshot:       snapshotFor("Maria Souza Lima", "12345678900"),
		Source:         api.SourceDirectEdit,
		Actor:          reviewer,
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	if second.Number != 2 {
		t.Fatalf("number = %d, want 2", second.Number)
	}
	if len(second.Diffs) != 1 {
		t.Fatalf("diffs = %+v, want exactly one", second.Diffs)
	}
	d := second.Diffs[0]
	if d.Path != "personal_info.full_name" || d.Kind != api.ChangeModified {
		t.Fatalf("diff = %+v", d)
	}
	if d.Old != "Maria Souza" || d.New != "Maria Souza Lima" {
		t.Fatalf("diff values = %v -> %v", d.Old, d.New)
	}

	// Applying the second version flips the current pointer.
	if _, err := env.eng.ApplyVersion(ctx, second.ID, reviewer); err != nil {
		t.Fatalf("ApplyVersion failed: %v", err)
	}
	versions, err := env.eng.ListVersions(ctx, first.ProfessionalID)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d versions", len(versions))
	}
	if versions[0].Current || !versions[1].Current {
		t.Fatalf("current flags = %v/%v, want false/true", versions[0].Current, versions[1].Current)
	}
}

func TestRejectVersionLeavesDirectoryUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID: "acme",
		Snapshot: snapshotFor("Maria Souza", "12345678900"),
		Source:   api.SourceScreening,
		Actor:    recruiter,
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	rejected, err := env.eng.RejectVersion(ctx, v.ID, "typo in name", reviewer)
	if err != nil {
		t.Fatalf("RejectVersion failed: %v", err)
	}
	if rejected.RejectedAt == nil || rejected.RejectionReason != "typo in name" {
		t.Errorf("rejection stamp missing: %+v", rejected)
	}
	if env.dir.applied != 0 {
		t.Errorf("directory received %d applies, want 0", env.dir.applied)
	}

	// Neither applying nor re-rejecting is possible afterwards.
	if _, err := env.eng.ApplyVersion(ctx, v.ID, recruiter); !errors.Is(err, api.ErrVersionNotPending) {
		t.Fatalf("apply after reject: err = %v, want ErrVersionNotPending", err)
	}
	if _, err := env.eng.RejectVersion(ctx, v.ID, "again", reviewer); !errors.Is(err, api.ErrVersionNotPending) {
		t.Fatalf("second reject: err = %v, want ErrVersionNotPending", err)
	}
}

func TestCreateVersionValidatesSections(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Sections = []string{api.SectionPersonalInfo}
	})
	ctx := context.Background()

	// A known but disabled section.
	_, err := env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID: "acme",
		Snapshot: api.Object(map[string]api.Value{
			api.SectionBankAccounts: api.Array(),
		}),
		Source: api.SourceImport,
		Actor:  recruiter,
	})
	if !errors.Is(err, api.ErrFeatureNotSupported) {
		t.Fatalf("err = %v, want ErrFeatureNotSupported", err)
	}

	// An unknown section name.
	_, err = env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID: "acme",
		Snapshot: api.Object(map[string]api.Value{
			"hobbies": api.Array(),
		}),
		Source: api.SourceImport,
		Actor:  recruiter,
	})
	if !errors.Is(err, api.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}

	// A non-object snapshot.
	_, err = env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID: "acme",
		Snapshot: api.String("nope"),
		Source:   api.SourceImport,
		Actor:    recruiter,
	})
	if !errors.Is(err, api.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
}

func TestCreateVersionEnforcesIdentityUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	existing := appliedVersion(t, env.eng, "", snapshotFor("Maria Souza", "12345678900"))

	// Another professional claiming the same identity document is refused.
	_, err := env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID: "acme",
		Snapshot: snapshotFor("Impostor", "12345678900"),
		Source:   api.SourceDirectEdit,
		Actor:    recruiter,
	})
	if !errors.Is(err, api.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}

	// The holder themselves may keep using it.
	_, err = env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID:       "acme",
		ProfessionalID: existing.ProfessionalID,
		Snapshot:       snapshotFor("Maria S. Lima", "12345678900"),
		Source:         api.SourceDirectEdit,
		Actor:          recruiter,
	})
	if err != nil {
		t.Fatalf("CreateVersion for holder failed: %v", err)
	}
}

func TestBuildSnapshotReadsDirectory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v := appliedVersion(t, env.eng, "", snapshotFor("Maria Souza", "12345678900"))

	snap, err := env.eng.BuildSnapshot(ctx, v.ProfessionalID)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	if !snap.Equal(v.Snapshot) {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}

	_, err = env.eng.BuildSnapshot(ctx, "missing")
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
