package runstore

import (
	"testing"
	"time"

	"github.com/forgeworks/appforge/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string) *domain.GenerationRun {
	now := time.Now()
	return &domain.GenerationRun{
		ID:        id,
		Status:    domain.RunPending,
		Prompt:    "build a todo service",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	store := testStore(t)
	if err := store.CreateRun(testRun("r1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := store.GetRun("r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != domain.RunPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.Prompt != "build a todo service" {
		t.Errorf("prompt = %q", got.Prompt)
	}
}

func TestUpdateRunStatus(t *testing.T) {
	store := testStore(t)
	if err := store.CreateRun(testRun("r1")); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateRunStatus("r1", domain.RunRunning, "todo_service", ""); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	got, err := store.GetRun("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunRunning || got.ProjectName != "todo_service" {
		t.Errorf("got %s/%q", got.Status, got.ProjectName)
	}

	// Empty project name must not clobber the stored one.
	if err := store.UpdateRunStatus("r1", domain.RunFailed, "", "sandbox exhausted"); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetRun("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectName != "todo_service" {
		t.Errorf("project name = %q, want preserved", got.ProjectName)
	}
	if got.Error != "sandbox exhausted" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := testStore(t)
	for i, id := range []string{"old", "mid", "new"} {
		run := testRun(id)
		run.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if err := store.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs", len(runs))
	}
	if runs[0].ID != "new" || runs[2].ID != "old" {
		t.Errorf("order = %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := store.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("ListRuns(2) returned %d runs", len(limited))
	}
}

func TestArtifactsAreAppendOnly(t *testing.T) {
	store := testStore(t)
	if err := store.CreateRun(testRun("r1")); err != nil {
		t.Fatal(err)
	}

	recs := []*domain.ArtifactRecord{
		{RunID: "r1", Stage: domain.StageRequirements, Attempt: 1, Kind: domain.ArtifactRequirements, Inline: []byte(`{}`)},
		{RunID: "r1", Stage: domain.StageReviewLoop, Attempt: 1, Kind: domain.ArtifactReviewReport, Inline: []byte(`{}`)},
		{RunID: "r1", Stage: domain.StageReviewLoop, Attempt: 2, Kind: domain.ArtifactReviewReport, Inline: []byte(`{}`)},
	}
	for _, rec := range recs {
		if err := store.AppendArtifact(rec); err != nil {
			t.Fatalf("AppendArtifact: %v", err)
		}
		if rec.ID == 0 {
			t.Error("AppendArtifact did not set the record ID")
		}
	}

	// A duplicate (run, stage, attempt, kind) must be rejected, not replaced.
	dup := &domain.ArtifactRecord{RunID: "r1", Stage: domain.StageReviewLoop, Attempt: 2, Kind: domain.ArtifactReviewReport, Inline: []byte(`{"v":2}`)}
	if err := store.AppendArtifact(dup); err == nil {
		t.Fatal("duplicate artifact was accepted")
	}

	got, err := store.ListArtifacts("r1")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d artifacts, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Error("artifacts not in append order")
		}
	}
}

func TestArtifactBlobRef(t *testing.T) {
	store := testStore(t)
	if err := store.CreateRun(testRun("r1")); err != nil {
		t.Fatal(err)
	}

	rec := &domain.ArtifactRecord{
		RunID:   "r1",
		Stage:   domain.StageImplementation,
		Attempt: 1,
		Kind:    domain.ArtifactCodeBundle,
		BlobRef: "blob:abc123",
	}
	if err := store.AppendArtifact(rec); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListArtifacts("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].BlobRef != "blob:abc123" {
		t.Errorf("blob ref = %q", got[0].BlobRef)
	}
	if len(got[0].Inline) != 0 {
		t.Errorf("inline payload = %q, want empty", got[0].Inline)
	}
}

func TestSandboxAttempts(t *testing.T) {
	store := testStore(t)
	if err := store.CreateRun(testRun("r1")); err != nil {
		t.Fatal(err)
	}

	attempts := []*domain.SandboxAttempt{
		{Number: 1, Deployed: true, HealthOK: true, TestsPassed: 2, TestsFailed: 1, TestsTotal: 3, RawOutput: "1 failed"},
		{Number: 2, Deployed: true, HealthOK: true, TestsPassed: 3, TestsTotal: 3, RawOutput: "3 passed"},
	}
	for _, a := range attempts {
		if err := store.SaveSandboxAttempt("r1", a); err != nil {
			t.Fatalf("SaveSandboxAttempt: %v", err)
		}
	}

	got, err := store.ListSandboxAttempts("r1")
	if err != nil {
		t.Fatalf("ListSandboxAttempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d attempts", len(got))
	}
	if got[0].Number != 1 || got[1].Number != 2 {
		t.Error("attempts out of order")
	}
	if got[0].Succeeded() {
		t.Error("attempt 1 should not count as success")
	}
	if !got[1].Succeeded() {
		t.Error("attempt 2 should count as success")
	}
}

func TestForeignKeyEnforced(t *testing.T) {
	store := testStore(t)
	rec := &domain.ArtifactRecord{RunID: "ghost", Stage: domain.StageRequirements, Attempt: 1, Kind: domain.ArtifactRequirements}
	if err := store.AppendArtifact(rec); err == nil {
		t.Fatal("artifact for unknown run was accepted")
	}
}

func TestStaleFailedBlobRefs(t *testing.T) {
	store := testStore(t)

	staleFailed := testRun("r1")
	staleFailed.Status = domain.RunFailed
	staleFailed.UpdatedAt = time.Now().Add(-48 * time.Hour)

	freshFailed := testRun("r2")
	freshFailed.Status = domain.RunFailed

	staleCompleted := testRun("r3")
	staleCompleted.Status = domain.RunCompleted
	staleCompleted.UpdatedAt = time.Now().Add(-48 * time.Hour)

	for _, run := range []*domain.GenerationRun{staleFailed, freshFailed, staleCompleted} {
		if err := store.CreateRun(run); err != nil {
			t.Fatal(err)
		}
		if err := store.AppendArtifact(&domain.ArtifactRecord{
			RunID:   run.ID,
			Stage:   domain.StageImplementation,
			Attempt: 1,
			Kind:    domain.ArtifactCodeBundle,
			BlobRef: "blob:sha256:" + run.ID,
		}); err != nil {
			t.Fatal(err)
		}
	}
	// Inline artifacts never show up, whatever the run state.
	if err := store.AppendArtifact(&domain.ArtifactRecord{
		RunID:   staleFailed.ID,
		Stage:   domain.StageRequirements,
		Attempt: 1,
		Kind:    domain.ArtifactRequirements,
		Inline:  []byte(`{}`),
	}); err != nil {
		t.Fatal(err)
	}

	refs, err := store.StaleFailedBlobRefs(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("StaleFailedBlobRefs: %v", err)
	}
	if len(refs) != 1 || refs[0] != "blob:sha256:r1" {
		t.Errorf("refs = %v, want only the stale failed run's blob", refs)
	}
}

func TestClearBlobRef(t *testing.T) {
	store := testStore(t)
	if err := store.CreateRun(testRun("r1")); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendArtifact(&domain.ArtifactRecord{
		RunID:   "r1",
		Stage:   domain.StageImplementation,
		Attempt: 1,
		Kind:    domain.ArtifactCodeBundle,
		BlobRef: "blob:sha256:gone",
	}); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearBlobRef("blob:sha256:gone"); err != nil {
		t.Fatalf("ClearBlobRef: %v", err)
	}
	records, err := store.ListArtifacts("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].BlobRef != "" {
		t.Errorf("blob ref survived: %+v", records[0])
	}
}
