package db_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Hussein-Mazeh/vaultlock/internal/db"
)

func openTemp(t *testing.T) (*db.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "state.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { db.Close(d) })
	return d, path
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	_, path := openTemp(t)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected database file to exist at %q: %v", path, err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := db.Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPutGetDelete(t *testing.T) {
	d, _ := openTemp(t)

	if _, err := db.Get(d, "user-1", "kdfConfig"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put(d, "user-1", "kdfConfig", []byte(`{"kdfType":0}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Put(d, "user-1", "kdfConfig", []byte(`{"kdfType":1}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := db.Get(d, "user-1", "kdfConfig")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"kdfType":1}` {
		t.Fatalf("Get = %s", got)
	}
	if _, err := db.Get(d, "user-2", "kdfConfig"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("scopes must not leak, got %v", err)
	}

	if err := db.Delete(d, "user-1", "kdfConfig"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Delete(d, "user-1", "kdfConfig"); err != nil {
		t.Fatalf("Delete of missing row: %v", err)
	}
	if _, err := db.Get(d, "user-1", "kdfConfig"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListNames(t *testing.T) {
	d, _ := openTemp(t)
	for _, n := range []string{"b", "a", "c"} {
		if err := db.Put(d, "scope", n, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", n, err)
		}
	}
	names, err := db.ListNames(d, "scope")
	if err != nil {
		t.Fatalf("ListNames: %v", err)
	}
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Put(d, "global", "activeUser", []byte("u")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	db.Close(d)

	d, err = db.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close(d)
	got, err := db.Get(d, "global", "activeUser")
	if err != nil || string(got) != "u" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}

func TestVacuumKeepsData(t *testing.T) {
	d, _ := openTemp(t)
	if err := db.Put(d, "global", "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Vacuum(d); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	if got, err := db.Get(d, "global", "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get after vacuum = %q, %v", got, err)
	}
	if err := db.Vacuum(nil); err == nil {
		t.Fatal("expected error for nil handle")
	}
}
