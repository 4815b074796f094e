package localstore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGet(t *testing.T) {
	store := openTestStore(t)

	if _, ok, err := store.Get("missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := store.Put("k", "v1"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Put("k", "v2"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	value, ok, err := store.Get("k")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if value != "v2" {
		t.Errorf("expected upserted value v2, got %q", value)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	store := openTestStore(t)

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var out []record
	found, err := store.LoadJSON("records", &out)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if found {
		t.Fatal("expected not found for unwritten key")
	}

	in := []record{{Name: "a", Count: 1}, {Name: "b", Count: 2}}
	if err := store.SaveJSON("records", in); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	found, err = store.LoadJSON("records", &out)
	if err != nil || !found {
		t.Fatalf("reload failed: found=%v err=%v", found, err)
	}
	if len(out) != 2 || out[0].Name != "a" || out[1].Count != 2 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := store.Put("k", "persisted"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get("k")
	if err != nil || !ok || value != "persisted" {
		t.Errorf("value lost across reopen: %q ok=%v err=%v", value, ok, err)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	store := openTestStore(t)
	store.Close()

	if err := store.Put("k", "v"); err == nil {
		t.Error("expected error writing to closed store")
	}
	if _, _, err := store.Get("k"); err == nil {
		t.Error("expected error reading from closed store")
	}
}
