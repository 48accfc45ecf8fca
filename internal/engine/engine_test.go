package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mvilaca/triage/internal/persistence"
	"github.com/mvilaca/triage/internal/reclaim"
	"github.com/mvilaca/triage/pkg/api"
)

//
// Helpers
//

// testClock is a controllable clock for expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeDirectory is an in-memory Directory that records applied snapshots.
type fakeDirectory struct {
	mu      sync.Mutex
	snaps   map[string]api.Value
	applied int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{snaps: map[string]api.Value{}}
}

func (d *fakeDirectory) Snapshot(ctx context.Context, professionalID string) (api.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.snaps[professionalID]
	if !ok {
		return api.Value{}, api.ErrNotFound
	}
	return snap.Clone(), nil
}

func (d *fakeDirectory) ApplySnapshot(ctx context.Context, tenantID, professionalID string, snap api.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snaps[professionalID] = snap.Clone()
	d.applied++
	return nil
}

func (d *fakeDirectory) FindByIdentityDocument(ctx context.Context, tenantID, document string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, snap := range d.snaps {
		personal, _ := snap.Field(api.SectionPersonalInfo)
		if personal.StringField("identity_document") == document {
			return id, nil
		}
	}
	return "", nil
}

type testEnv struct {
	eng   api.Engine
	store *persistence.InMemoryStore
	queue *reclaim.InMemoryQueue
	dir   *fakeDirectory
	clock *testClock
}

func newTestEnv(t *testing.T, mod ...func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		store: persistence.NewInMemoryStore(),
		queue: reclaim.NewInMemoryQueue(16),
		dir:   newFakeDirectory(),
		clock: newTestClock(),
	}
	cfg := Config{
		Persistence: persistence.Persistence{
			Processes: env.store,
			Versions:  env.store,
		},
		Directory: env.dir,
		Reclaim:   env.queue,
		Clock:     env.clock.Now,
	}
	for _, m := range mod {
		m(&cfg)
	}
	env.eng = New(cfg)
	return env
}

var (
	recruiter  = api.Actor{ID: "recruiter-1"}
	reviewer   = api.Actor{ID: "reviewer-1"}
	supervisor = api.Actor{ID: "supervisor-1", Supervisor: true}
)

func createProcess(t *testing.T, eng api.Engine, plan ...api.StepType) *api.Process {
	t.Helper()

	if len(plan) == 0 {
		plan = []api.StepType{
			api.StepConversation,
			api.StepProfessionalData,
			api.StepDocumentUpload,
			api.StepDocumentReview,
		}
	}
	p, err := eng.CreateProcess(context.Background(), api.CreateProcessParams{
		TenantID: "acme",
		Identification: api.Identification{
			FullName:         "Maria Souza",
			IdentityDocument: "12345678900",
		},
		Plan:    plan,
		OwnerID: recruiter.ID,
		Actor:   recruiter,
	})
	if err != nil {
		t.Fatalf("CreateProcess failed: %v", err)
	}
	return p
}

// snapshotFor builds a minimal valid snapshot for tests.
func snapshotFor(name, document string) api.Value {
	return api.Object(map[string]api.Value{
		api.SectionPersonalInfo: api.Object(map[string]api.Value{
			"full_name":         api.String(name),
			"identity_document": api.String(document),
		}),
	})
}

// appliedVersion creates and applies a version, returning it.
func appliedVersion(t *testing.T, eng api.Engine, professionalID string, snap api.Value) *api.Version {
	t.Helper()

	ctx := context.Background()
	v, err := eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID:       "acme",
		ProfessionalID: professionalID,
		Snapshot:       snap,
		Source:         api.SourceScreening,
		Actor:          recruiter,
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	v, err = eng.ApplyVersion(ctx, v.ID, recruiter)
	if err != nil {
		t.Fatalf("ApplyVersion failed: %v", err)
	}
	return v
}
