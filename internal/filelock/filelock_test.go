package filelock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")
	lock := New(path)

	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
}

func TestTryLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")

	first := New(path)
	if err := first.Lock(); err != nil {
		t.Fatal(err)
	}
	defer first.Unlock()

	second := New(path)
	ok, err := second.TryLock()
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if ok {
		t.Error("TryLock() acquired a lock already held")
	}

	if err := first.Unlock(); err != nil {
		t.Fatal(err)
	}
	ok, err = second.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("TryLock() failed after the holder released")
	}
	second.Unlock()
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	if err := AtomicWrite(path, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("AtomicWrite() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"v":1}` {
		t.Errorf("content = %q", data)
	}

	// Overwrite replaces the whole file.
	if err := AtomicWrite(path, []byte(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != `{"v":2}` {
		t.Errorf("content after overwrite = %q", data)
	}

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestAtomicWritePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := AtomicWrite(path, []byte("x")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %o, want 0644", info.Mode().Perm())
	}
}

func TestLockAndWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")

	if err := LockAndWrite(path, []byte("snapshot")); err != nil {
		t.Fatalf("LockAndWrite() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "snapshot" {
		t.Errorf("content = %q", data)
	}

	// The lock file is cleaned up, not left in the state directory.
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}
}
