package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/mvilaca/triage/internal/testutil"
	"github.com/mvilaca/triage/pkg/api"
)

// fullStore is what every backend in this package implements.
type fullStore interface {
	ProcessStore
	VersionStore
}

type storeFactory func(t *testing.T) fullStore

func memoryStore(t *testing.T) fullStore {
	t.Helper()
	return NewInMemoryStore()
}

func sqliteStore(t *testing.T) fullStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

// redisStore connects to the shared test container; the test is skipped when
// no container runtime is available. A unique key prefix per test isolates
// state within the shared instance.
func redisStore(t *testing.T) fullStore {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testutil.RedisAddress(t)})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRedisStore(client, "triage:test:"+uuid.NewString()+":")
}

var storeFactories = map[string]storeFactory{
	"memory": memoryStore,
	"sqlite": sqliteStore,
	"redis":  redisStore,
}

func sampleProcess(id, document string) *api.Process {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &api.Process{
		ID:       id,
		TenantID: "acme",
		Identification: api.Identification{
			FullName:         "Maria Souza",
			IdentityDocument: document,
		},
		Status:  api.StatusInProgress,
		Plan:    []api.StepType{api.StepConversation, api.StepDocumentUpload},
		Current: api.StepConversation,
		Steps: []*api.Step{
			{
				ID:           id + "-s0",
				Type:         api.StepConversation,
				Order:        0,
				Status:       api.StepInProgress,
				Conversation: &api.ConversationState{},
			},
			{
				ID:     id + "-s1",
				Type:   api.StepDocumentUpload,
				Order:  1,
				Status: api.StepPending,
				DocumentUpload: &api.DocumentUploadState{
					Configured:        true,
					RequiredDocuments: 1,
					Documents: []*api.Document{
						{
							ID:       id + "-d0",
							Type:     "identity_front",
							Required: true,
							Status:   api.DocPendingUpload,
							History: []api.ReviewEntry{
								{ActorID: "reviewer-1", Action: api.HistoryCorrection, Note: "blurry", At: now},
							},
						},
					},
				},
			},
		},
		Alerts: []*api.Alert{
			{ID: id + "-a0", Reason: "check references", RaisedBy: "recruiter-1", RaisedAt: now, Resolved: true},
		},
		OwnerID:   "recruiter-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleVersion(id, professionalID string, number int) *api.Version {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &api.Version{
		ID:             id,
		TenantID:       "acme",
		ProfessionalID: professionalID,
		Number:         number,
		Snapshot: api.Object(map[string]api.Value{
			api.SectionPersonalInfo: api.Object(map[string]api.Value{
				"full_name": api.String("Maria Souza"),
			}),
		}),
		Diffs: []api.Diff{
			{Path: "personal_info.full_name", New: "Maria Souza", Kind: api.ChangeAdded},
		},
		Source:    api.SourceScreening,
		CreatedAt: now,
		CreatedBy: "recruiter-1",
	}
}

func TestProcessAggregateRoundTrip(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			p := sampleProcess("p-1", "12345678900")
			if err := store.SaveProcess(ctx, p); err != nil {
				t.Fatalf("SaveProcess failed: %v", err)
			}

			got, err := store.GetProcess(ctx, "p-1")
			if err != nil {
				t.Fatalf("GetProcess failed: %v", err)
			}
			if got.TenantID != "acme" || got.Identification.FullName != "Maria Souza" {
				t.Errorf("process fields lost: %+v", got)
			}
			if len(got.Steps) != 2 {
				t.Fatalf("got %d steps, want 2", len(got.Steps))
			}
			if got.Steps[0].Type != api.StepConversation || got.Steps[1].Type != api.StepDocumentUpload {
				t.Errorf("step order lost: %v %v", got.Steps[0].Type, got.Steps[1].Type)
			}
			state := got.Steps[1].DocumentUpload
			if state == nil || !state.Configured || len(state.Documents) != 1 {
				t.Fatalf("document state lost: %+v", state)
			}
			doc := state.Documents[0]
			if len(doc.History) != 1 || doc.History[0].Note != "blurry" {
				t.Errorf("document history lost: %+v", doc.History)
			}
			if len(got.Alerts) != 1 || !got.Alerts[0].Resolved {
				t.Errorf("alerts lost: %+v", got.Alerts)
			}

			if _, err := store.GetProcess(ctx, "missing"); !errors.Is(err, ErrProcessNotFound) {
				t.Fatalf("err = %v, want ErrProcessNotFound", err)
			}
		})
	}
}

func TestActiveIdentityUniqueness(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			if err := store.SaveProcess(ctx, sampleProcess("p-1", "12345678900")); err != nil {
				t.Fatalf("SaveProcess failed: %v", err)
			}

			err := store.SaveProcess(ctx, sampleProcess("p-2", "12345678900"))
			if !errors.Is(err, ErrDuplicateActiveProcess) {
				t.Fatalf("err = %v, want ErrDuplicateActiveProcess", err)
			}

			// A different document is fine.
			if err := store.SaveProcess(ctx, sampleProcess("p-3", "99900011122")); err != nil {
				t.Fatalf("SaveProcess with other identity failed: %v", err)
			}

			got, err := store.FindActiveByIdentity(ctx, "acme", "12345678900")
			if err != nil {
				t.Fatalf("FindActiveByIdentity failed: %v", err)
			}
			if got.ID != "p-1" {
				t.Fatalf("found %s, want p-1", got.ID)
			}

			// Terminal processes stop blocking the identity.
			got.Status = api.StatusCancelled
			if err := store.UpdateProcess(ctx, got); err != nil {
				t.Fatalf("UpdateProcess failed: %v", err)
			}
			if _, err := store.FindActiveByIdentity(ctx, "acme", "12345678900"); !errors.Is(err, ErrProcessNotFound) {
				t.Fatalf("err = %v, want ErrProcessNotFound after terminal", err)
			}
			if err := store.SaveProcess(ctx, sampleProcess("p-4", "12345678900")); err != nil {
				t.Fatalf("SaveProcess after terminal failed: %v", err)
			}
		})
	}
}

func TestFindByToken(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			p := sampleProcess("p-1", "12345678900")
			p.Token = &api.AccessToken{Value: "tok-abc", IssuedAt: p.CreatedAt}
			if err := store.SaveProcess(ctx, p); err != nil {
				t.Fatalf("SaveProcess failed: %v", err)
			}

			got, err := store.FindByToken(ctx, "tok-abc")
			if err != nil {
				t.Fatalf("FindByToken failed: %v", err)
			}
			if got.ID != "p-1" {
				t.Fatalf("found %s, want p-1", got.ID)
			}

			if _, err := store.FindByToken(ctx, "nope"); !errors.Is(err, ErrProcessNotFound) {
				t.Fatalf("err = %v, want ErrProcessNotFound", err)
			}
			if _, err := store.FindByToken(ctx, ""); !errors.Is(err, ErrProcessNotFound) {
				t.Fatalf("empty token: err = %v, want ErrProcessNotFound", err)
			}

			// Replacing the token moves the mapping.
			got.Token = &api.AccessToken{Value: "tok-def", IssuedAt: got.CreatedAt}
			if err := store.UpdateProcess(ctx, got); err != nil {
				t.Fatalf("UpdateProcess failed: %v", err)
			}
			if _, err := store.FindByToken(ctx, "tok-abc"); !errors.Is(err, ErrProcessNotFound) {
				t.Fatalf("old token: err = %v, want ErrProcessNotFound", err)
			}
			if got, err := store.FindByToken(ctx, "tok-def"); err != nil || got.ID != "p-1" {
				t.Fatalf("new token lookup: got %v, err %v", got, err)
			}
		})
	}
}

func TestListProcessesFiltering(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			p1 := sampleProcess("p-1", "111")
			p2 := sampleProcess("p-2", "222")
			p2.TenantID = "globex"
			p3 := sampleProcess("p-3", "333")
			p3.Status = api.StatusRejected
			for _, p := range []*api.Process{p1, p2, p3} {
				if err := store.SaveProcess(ctx, p); err != nil {
					t.Fatalf("SaveProcess failed: %v", err)
				}
			}

			all, err := store.ListProcesses(ctx, api.ProcessFilter{})
			if err != nil {
				t.Fatalf("ListProcesses failed: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("got %d processes, want 3", len(all))
			}

			acme, err := store.ListProcesses(ctx, api.ProcessFilter{TenantID: "acme"})
			if err != nil {
				t.Fatalf("ListProcesses failed: %v", err)
			}
			if len(acme) != 2 {
				t.Fatalf("tenant filter: got %d, want 2", len(acme))
			}

			rejected, err := store.ListProcesses(ctx, api.ProcessFilter{TenantID: "acme", Status: api.StatusRejected})
			if err != nil {
				t.Fatalf("ListProcesses failed: %v", err)
			}
			if len(rejected) != 1 || rejected[0].ID != "p-3" {
				t.Fatalf("combined filter: %+v", rejected)
			}
		})
	}
}

func TestUpdateProcessRevisionCheck(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			if err := store.SaveProcess(ctx, sampleProcess("p-1", "111")); err != nil {
				t.Fatalf("SaveProcess failed: %v", err)
			}

			a, err := store.GetProcess(ctx, "p-1")
			if err != nil {
				t.Fatalf("GetProcess failed: %v", err)
			}
			b, err := store.GetProcess(ctx, "p-1")
			if err != nil {
				t.Fatalf("GetProcess failed: %v", err)
			}

			a.Status = api.StatusPendingSupervisor
			if err := store.UpdateProcess(ctx, a); err != nil {
				t.Fatalf("first UpdateProcess failed: %v", err)
			}
			if a.Rev != 1 {
				t.Errorf("caller rev = %d, want 1 after update", a.Rev)
			}

			b.Status = api.StatusCancelled
			if err := store.UpdateProcess(ctx, b); !errors.Is(err, ErrConflict) {
				t.Fatalf("stale update: err = %v, want ErrConflict", err)
			}

			got, err := store.GetProcess(ctx, "p-1")
			if err != nil {
				t.Fatalf("GetProcess failed: %v", err)
			}
			if got.Status != api.StatusPendingSupervisor {
				t.Fatalf("status = %s, lost first writer's update", got.Status)
			}
		})
	}
}

func TestUpdateStepIndependentOfOtherSteps(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			if err := store.SaveProcess(ctx, sampleProcess("p-1", "111")); err != nil {
				t.Fatalf("SaveProcess failed: %v", err)
			}

			a, _ := store.GetProcess(ctx, "p-1")
			b, _ := store.GetProcess(ctx, "p-1")

			// Two actors update different steps concurrently; neither sees a
			// conflict.
			convo := a.Step(api.StepConversation)
			convo.Status = api.StepCompleted
			if err := store.UpdateStep(ctx, "p-1", convo); err != nil {
				t.Fatalf("UpdateStep conversation failed: %v", err)
			}

			upload := b.Step(api.StepDocumentUpload)
			upload.DocumentUpload.UploadedDocuments = 1
			if err := store.UpdateStep(ctx, "p-1", upload); err != nil {
				t.Fatalf("UpdateStep upload failed: %v", err)
			}

			got, err := store.GetProcess(ctx, "p-1")
			if err != nil {
				t.Fatalf("GetProcess failed: %v", err)
			}
			if got.Step(api.StepConversation).Status != api.StepCompleted {
				t.Error("conversation update lost")
			}
			if got.Step(api.StepDocumentUpload).DocumentUpload.UploadedDocuments != 1 {
				t.Error("upload update lost")
			}

			// The same step under a stale revision conflicts.
			stale := a.Step(api.StepConversation)
			stale.Rev = 0
			if err := store.UpdateStep(ctx, "p-1", stale); !errors.Is(err, ErrConflict) {
				t.Fatalf("stale step update: err = %v, want ErrConflict", err)
			}
		})
	}
}

func TestVersionLifecycle(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			v1 := sampleVersion("v-1", "prof-1", 1)
			if err := store.SaveVersion(ctx, v1); err != nil {
				t.Fatalf("SaveVersion failed: %v", err)
			}

			// The same number for the same professional is refused.
			dup := sampleVersion("v-dup", "prof-1", 1)
			if err := store.SaveVersion(ctx, dup); !errors.Is(err, ErrDuplicateVersion) {
				t.Fatalf("err = %v, want ErrDuplicateVersion", err)
			}

			got, err := store.GetVersion(ctx, "v-1")
			if err != nil {
				t.Fatalf("GetVersion failed: %v", err)
			}
			if got.Current {
				t.Error("unapplied version is current")
			}
			if len(got.Diffs) != 1 || got.Diffs[0].Path != "personal_info.full_name" {
				t.Errorf("diffs lost: %+v", got.Diffs)
			}

			if _, err := store.CurrentVersion(ctx, "prof-1"); !errors.Is(err, ErrVersionNotFound) {
				t.Fatalf("current before apply: err = %v, want ErrVersionNotFound", err)
			}

			at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
			applied, err := store.MarkApplied(ctx, "v-1", "reviewer-1", at)
			if err != nil {
				t.Fatalf("MarkApplied failed: %v", err)
			}
			if !applied.Current || applied.AppliedBy != "reviewer-1" {
				t.Errorf("applied = %+v", applied)
			}

			cur, err := store.CurrentVersion(ctx, "prof-1")
			if err != nil {
				t.Fatalf("CurrentVersion failed: %v", err)
			}
			if cur.ID != "v-1" {
				t.Fatalf("current = %s, want v-1", cur.ID)
			}

			// Applying again is refused.
			if _, err := store.MarkApplied(ctx, "v-1", "reviewer-1", at); !errors.Is(err, ErrNotPending) {
				t.Fatalf("second apply: err = %v, want ErrNotPending", err)
			}

			// A second applied version takes over the current flag.
			v2 := sampleVersion("v-2", "prof-1", 2)
			if err := store.SaveVersion(ctx, v2); err != nil {
				t.Fatalf("SaveVersion v2 failed: %v", err)
			}
			if _, err := store.MarkApplied(ctx, "v-2", "reviewer-1", at.Add(time.Hour)); err != nil {
				t.Fatalf("MarkApplied v2 failed: %v", err)
			}

			versions, err := store.ListVersions(ctx, "prof-1")
			if err != nil {
				t.Fatalf("ListVersions failed: %v", err)
			}
			if len(versions) != 2 {
				t.Fatalf("got %d versions, want 2", len(versions))
			}
			currents := 0
			for _, v := range versions {
				if v.Current {
					currents++
					if v.ID != "v-2" {
						t.Errorf("current = %s, want v-2", v.ID)
					}
				}
			}
			if currents != 1 {
				t.Fatalf("%d current versions, want exactly 1", currents)
			}
		})
	}
}

func TestMarkRejected(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			if err := store.SaveVersion(ctx, sampleVersion("v-1", "prof-1", 1)); err != nil {
				t.Fatalf("SaveVersion failed: %v", err)
			}

			at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
			rejected, err := store.MarkRejected(ctx, "v-1", "typo", "reviewer-1", at)
			if err != nil {
				t.Fatalf("MarkRejected failed: %v", err)
			}
			if rejected.RejectedAt == nil || rejected.RejectionReason != "typo" {
				t.Errorf("rejected = %+v", rejected)
			}

			if _, err := store.MarkApplied(ctx, "v-1", "reviewer-1", at); !errors.Is(err, ErrNotPending) {
				t.Fatalf("apply after reject: err = %v, want ErrNotPending", err)
			}
			if _, err := store.MarkRejected(ctx, "v-1", "again", "reviewer-1", at); !errors.Is(err, ErrNotPending) {
				t.Fatalf("second reject: err = %v, want ErrNotPending", err)
			}
		})
	}
}
