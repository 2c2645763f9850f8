package lock

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestCleanArtifacts(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "LOCK"))
	touch(t, filepath.Join(root, "session.db"))
	touch(t, filepath.Join(root, "work", "client.lock"))
	touch(t, filepath.Join(root, "work", "profile", "SingletonLock"))
	touch(t, filepath.Join(root, "work", "profile", "Cookies"))

	removed, err := CleanArtifacts(root, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(root, "LOCK"),
		filepath.Join(root, "work", "client.lock"),
		filepath.Join(root, "work", "profile", "SingletonLock"),
	}
	slices.Sort(removed)
	slices.Sort(want)
	if !slices.Equal(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
	for _, keep := range []string{"session.db", filepath.Join("work", "profile", "Cookies")} {
		if _, err := os.Stat(filepath.Join(root, keep)); err != nil {
			t.Errorf("%s was removed: %v", keep, err)
		}
	}
}

func TestCleanArtifactsDepthBound(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c", "LOCK")
	touch(t, deep)

	removed, err := CleanArtifacts(root, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 0 {
		t.Errorf("removed %v beyond depth bound", removed)
	}
	if _, err := os.Stat(deep); err != nil {
		t.Errorf("deep LOCK removed: %v", err)
	}

	removed, err = CleanArtifacts(root, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 {
		t.Errorf("removed %v, want the deep LOCK", removed)
	}
}

func TestCleanArtifactsMissingRoot(t *testing.T) {
	removed, err := CleanArtifacts(filepath.Join(t.TempDir(), "nope"), 4)
	if err != nil || len(removed) != 0 {
		t.Errorf("CleanArtifacts(missing) = %v, %v", removed, err)
	}
}
