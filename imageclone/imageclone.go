// Package imageclone owns the engine's side of a remote-image-ref disk
// attachment (spec §4.6): fetching the referenced image is the job of an
// external OCI registry client / image builder collaborator (spec §1 lists
// it as explicitly out of scope), but staging the clone into an
// engine-owned temporary directory, locking it the way vmlock locks a VM
// Directory's config file, and unlinking it on any error or at process exit
// belongs here.
package imageclone

import (
	"os"
	"path/filepath"

	"github.com/orbstack/runvm/flock"
	"github.com/orbstack/runvm/vmerr"
)

// Fetcher turns a remote image reference into bytes at destPath. Production
// wiring supplies one backed by the OCI registry client; this package only
// depends on the interface.
type Fetcher interface {
	FetchTo(ref, destPath string) error
}

// Staged is an engine-owned temporary clone of a remote-image-ref disk. The
// clone is the attachment target itself, so garbage collection is by
// unlink after process exit rather than a separate reaper (spec §4.6).
type Staged struct {
	Path string

	dir      string
	lockFile *os.File
}

// Clone fetches ref via fetcher into a fresh temporary directory under
// runDir, locks the resulting image file, and returns a handle whose
// Release unlinks the directory. Any failure after the temporary directory
// is created unlinks it before returning, so a caller never needs to
// clean up a partially-staged clone itself.
func Clone(fetcher Fetcher, runDir, ref string) (staged *Staged, err error) {
	dir, err := os.MkdirTemp(runDir, "clone-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	destPath := filepath.Join(dir, "disk.img")
	if err := fetcher.FetchTo(ref, destPath); err != nil {
		if _, ok := vmerr.KindOf(err); ok {
			// already a taxonomy error (e.g. Unsupported from
			// UnavailableFetcher); preserve its kind rather than masking it.
			return nil, err
		}
		return nil, vmerr.Wrap(vmerr.VMConfigurationError, err, "clone remote image ref %q", ref)
	}

	f, err := flock.Open(destPath)
	if err != nil {
		return nil, err
	}
	if err := flock.Lock(f); err != nil {
		_ = f.Close()
		return nil, vmerr.Wrap(vmerr.DiskAlreadyInUse, err, "lock cloned image for %q", ref)
	}

	return &Staged{Path: destPath, dir: dir, lockFile: f}, nil
}

// Release unlocks and unlinks the staged clone's temporary directory. Safe
// to call on a nil receiver and safe to call more than once.
func (s *Staged) Release() {
	if s == nil || s.dir == "" {
		return
	}
	if s.lockFile != nil {
		_ = flock.Unlock(s.lockFile)
		_ = s.lockFile.Close()
		s.lockFile = nil
	}
	_ = os.RemoveAll(s.dir)
	s.dir = ""
}

// UnavailableFetcher is the Fetcher wired in when no real OCI registry
// client is linked into this build -- it fails every reference with
// Unsupported rather than silently treating a remote-image-ref location as
// a local path.
type UnavailableFetcher struct{}

func (UnavailableFetcher) FetchTo(ref, destPath string) error {
	return vmerr.New(vmerr.Unsupported, "remote image reference %q requires an image subsystem this engine build does not include", ref)
}
