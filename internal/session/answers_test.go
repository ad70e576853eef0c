package session

import "testing"

func TestAnswerStoreLatestSelectionWins(t *testing.T) {
	store := NewAnswerStore()

	store.Select("q1", "optA")
	store.Select("q2", "optC")
	store.Select("q1", "optB") // overwrite

	snapshot := store.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snapshot))
	}
	if snapshot["q1"] != "optB" {
		t.Fatalf("q1 = %q, want optB", snapshot["q1"])
	}
	if snapshot["q2"] != "optC" {
		t.Fatalf("q2 = %q, want optC", snapshot["q2"])
	}
	if store.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", store.Count())
	}
}

func TestAnswerStoreSnapshotIsFrozen(t *testing.T) {
	store := NewAnswerStore()
	store.Select("q1", "optA")

	snapshot := store.Snapshot()
	store.Select("q1", "optB")
	store.Select("q2", "optC")

	if snapshot["q1"] != "optA" {
		t.Fatalf("snapshot reflects later mutation: q1 = %q", snapshot["q1"])
	}
	if _, ok := snapshot["q2"]; ok {
		t.Fatal("snapshot reflects selection made after it was taken")
	}
}

func TestAnswerStoreEmpty(t *testing.T) {
	store := NewAnswerStore()
	if store.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", store.Count())
	}
	if len(store.Snapshot()) != 0 {
		t.Fatal("snapshot of empty store not empty")
	}
}
