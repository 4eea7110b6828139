package imageclone

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/orbstack/runvm/vmerr"
)

type fakeFetcher struct {
	err error
	got string // last destPath written, for assertions
}

func (f *fakeFetcher) FetchTo(ref, destPath string) error {
	if f.err != nil {
		return f.err
	}
	f.got = destPath
	return os.WriteFile(destPath, []byte("fake image bytes"), 0644)
}

func TestCloneSucceeds(t *testing.T) {
	t.Parallel()

	runDir := t.TempDir()
	fetcher := &fakeFetcher{}

	staged, err := Clone(fetcher, runDir, "ghcr.io/org/img:tag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer staged.Release()

	if _, err := os.Stat(staged.Path); err != nil {
		t.Fatalf("expected cloned file to exist at %s: %v", staged.Path, err)
	}
	if filepath.Dir(staged.Path) == runDir {
		t.Error("expected the clone to land in a fresh subdirectory of runDir, not runDir itself")
	}
}

// §8 resource lifetime: on any error after clone, the engine-owned
// temporary clone directory is unlinked.
func TestCloneCleansUpTempDirOnFetchError(t *testing.T) {
	t.Parallel()

	runDir := t.TempDir()
	fetcher := &fakeFetcher{err: errors.New("network unreachable")}

	_, err := Clone(fetcher, runDir, "ghcr.io/org/img:tag")
	if err == nil {
		t.Fatal("expected an error from a failing fetcher")
	}

	entries, readErr := os.ReadDir(runDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the temporary clone directory to be cleaned up, found: %v", entries)
	}
}

func TestCloneUnavailableFetcherIsUnsupported(t *testing.T) {
	t.Parallel()

	runDir := t.TempDir()
	_, err := Clone(UnavailableFetcher{}, runDir, "ghcr.io/org/img:tag")
	if !vmerr.Is(err, vmerr.Unsupported) {
		t.Fatalf("expected Unsupported, got %v", err)
	}

	entries, readErr := os.ReadDir(runDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the temporary clone directory to be cleaned up, found: %v", entries)
	}
}

func TestReleaseIsIdempotentAndNilSafe(t *testing.T) {
	t.Parallel()

	var nilStaged *Staged
	nilStaged.Release() // must not panic

	runDir := t.TempDir()
	staged, err := Clone(&fakeFetcher{}, runDir, "ghcr.io/org/img:tag")
	if err != nil {
		t.Fatal(err)
	}

	staged.Release()
	staged.Release() // second call must be a no-op, not an error

	entries, readErr := os.ReadDir(runDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the clone directory to be removed after Release, found: %v", entries)
	}
}
