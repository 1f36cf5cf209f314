package tasks

import (
	"reflect"
	"testing"
	"time"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

func testDataset(t *testing.T) *schema.Dataset {
	t.Helper()
	ds, err := schema.New("q", []string{"a"}, []schema.ColumnType{schema.TypeText})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestRegistry_CreateAndSnapshot(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	id := r.Create(testDataset(t))

	snap, ok := r.Snapshot(id)
	if !ok {
		t.Fatal("expected snapshot for fresh task")
	}
	if snap.Status != StateInitializing {
		t.Errorf("status = %q, want initializing", snap.Status)
	}
	if snap.Percent != 0 {
		t.Errorf("percent = %f, want 0", snap.Percent)
	}
}

func TestRegistry_UnknownTask(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	if _, ok := r.Snapshot("nope"); ok {
		t.Error("expected no snapshot for unknown id")
	}
	if _, _, ok := r.Result("nope"); ok {
		t.Error("expected no result for unknown id")
	}
}

func TestRegistry_FragmentMonotonicity(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	id := r.Create(testDataset(t))
	r.RegisterFragment(id, "doc#1")

	status := func() FragmentStatus {
		snap, _ := r.Snapshot(id)
		return snap.Fragments["doc#1"]
	}

	r.MarkFragment(id, "doc#1", FragmentProcessing)
	if got := status(); got != FragmentProcessing {
		t.Fatalf("status = %q, want processing", got)
	}

	// Regression to pending is ignored.
	r.MarkFragment(id, "doc#1", FragmentPending)
	if got := status(); got != FragmentProcessing {
		t.Errorf("status regressed to %q", got)
	}

	r.MarkFragment(id, "doc#1", FragmentRelevant)
	if got := status(); got != FragmentRelevant {
		t.Fatalf("status = %q, want completed_relevant", got)
	}

	// No transition out of a terminal status.
	r.MarkFragment(id, "doc#1", FragmentIrrelevant)
	r.MarkFragment(id, "doc#1", FragmentProcessing)
	if got := status(); got != FragmentRelevant {
		t.Errorf("terminal status changed to %q", got)
	}
}

func TestRegistry_SnapshotIdempotent(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	id := r.Create(testDataset(t))
	r.RegisterFragment(id, "doc#1")
	r.RegisterFragment(id, "doc#2")
	r.SetState(id, StateProcessing)
	r.MarkFragment(id, "doc#1", FragmentProcessing)

	first, _ := r.Snapshot(id)
	second, _ := r.Snapshot(id)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("successive snapshots differ:\n%+v\n%+v", first, second)
	}
}

func TestRegistry_ProgressProjection(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	id := r.Create(testDataset(t))
	for _, frag := range []string{"d#1", "d#2", "d#3", "d#4"} {
		r.RegisterFragment(id, frag)
	}
	r.SetState(id, StateProcessing)
	r.MarkFragment(id, "d#1", FragmentRelevant)
	r.MarkFragment(id, "d#2", FragmentIrrelevant)
	r.MarkFragment(id, "d#3", FragmentProcessing)

	snap, _ := r.Snapshot(id)
	if snap.TablesProcessed != 3 {
		t.Errorf("processed = %d, want 3 (everything not pending)", snap.TablesProcessed)
	}
	if snap.TablesRelevant != 1 {
		t.Errorf("relevant = %d, want 1", snap.TablesRelevant)
	}
	if snap.Percent != 75 {
		t.Errorf("percent = %f, want 75", snap.Percent)
	}
}

func TestRegistry_Result(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	id := r.Create(testDataset(t))

	if _, ready, ok := r.Result(id); !ok || ready {
		t.Fatalf("expected known but not-ready result, got ready=%v ok=%v", ready, ok)
	}

	r.Complete(id, "a\nx\n")
	csv, ready, ok := r.Result(id)
	if !ok || !ready {
		t.Fatalf("expected ready result, got ready=%v ok=%v", ready, ok)
	}
	if csv != "a\nx\n" {
		t.Errorf("result = %q", csv)
	}
}

func TestRegistry_TerminalStatesSticky(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	id := r.Create(testDataset(t))
	r.Fail(id, "boom")
	r.SetState(id, StateProcessing)
	r.Complete(id, "data")

	snap, _ := r.Snapshot(id)
	if snap.Status != StateError {
		t.Errorf("status = %q, want error to stick", snap.Status)
	}
	if snap.Message != "Extraction failed: boom" {
		t.Errorf("message = %q", snap.Message)
	}
}

func TestRegistry_Retention(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	current := time.Now()
	r.now = func() time.Time { return current }

	id := r.Create(testDataset(t))
	if evicted := r.Sweep(); evicted != 0 {
		t.Fatalf("fresh task evicted: %d", evicted)
	}

	current = current.Add(5*time.Minute + time.Second)
	if evicted := r.Sweep(); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := r.Snapshot(id); ok {
		t.Error("expected not_found after retention sweep")
	}
}

func TestMessageProjection(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "no matches",
			snap: Snapshot{Status: StateCompleted, FilesFound: 0},
			want: "Completed: no matching patent files",
		},
		{
			name: "no tables",
			snap: Snapshot{Status: StateCompleted, FilesFound: 2, TablesFound: 0},
			want: "Completed: no tables found in matching files",
		},
		{
			name: "processing",
			snap: Snapshot{Status: StateProcessing, TablesProcessed: 2, TablesFound: 5, TablesRelevant: 1},
			want: "Processing tables: 2/5 done, 1 relevant",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := message(tt.snap, ""); got != tt.want {
				t.Errorf("message() = %q, want %q", got, tt.want)
			}
		})
	}
}
