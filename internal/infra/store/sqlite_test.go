package store_test

import (
	"path/filepath"
	"testing"

	"github.com/localbeat/localbeat/internal/infra/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "state", "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTestDB(t)

	if _, found, err := db.Get("missing"); err != nil || found {
		t.Errorf("Get(missing) = found=%v err=%v", found, err)
	}

	if err := db.Put("k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, found, err := db.Get("k")
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("Get = %q/%v/%v", got, found, err)
	}

	// Overwrite replaces atomically.
	if err := db.Put("k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, _, _ = db.Get("k")
	if string(got) != "v2" {
		t.Errorf("after overwrite, got %q", got)
	}

	if err := db.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := db.Get("k"); found {
		t.Error("key survived delete")
	}
	if err := db.Delete("k"); err != nil {
		t.Errorf("deleting an absent key errored: %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	db := openTestDB(t)

	type record struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}

	want := record{Name: "x", Count: 3, Tags: []string{"a", "b"}}
	if err := db.PutJSON("rec", want); err != nil {
		t.Fatal(err)
	}

	var got record
	found, err := db.GetJSON("rec", &got)
	if err != nil || !found {
		t.Fatalf("GetJSON = %v/%v", found, err)
	}
	if got.Name != want.Name || got.Count != want.Count || len(got.Tags) != 2 {
		t.Errorf("got %+v, want %+v", got, want)
	}

	var untouched record
	found, err = db.GetJSON("absent", &untouched)
	if err != nil {
		t.Fatal(err)
	}
	if found || untouched.Name != "" {
		t.Errorf("absent key: found=%v value=%+v", found, untouched)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Put("k", []byte("survives")); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	got, found, err := db2.Get("k")
	if err != nil || !found || string(got) != "survives" {
		t.Errorf("after reopen: %q/%v/%v", got, found, err)
	}
}
