// Package vmlock implements the two advisory-lock scopes the Lifecycle
// Controller needs: a home-directory lock held briefly during MAC collision
// checks, and a per-VM-directory lock held for the VM's entire lifetime.
//
// The critical ordering constraint lives here structurally, not just in
// documentation: AcquireVM takes the already-read config as a parameter, so
// a caller physically cannot acquire the VM lock without first having read
// the config — reading after locking would risk dropping a lock acquired
// earlier on the same path, since advisory locks are per-open-file-description.
package vmlock

import (
	"os"

	"github.com/orbstack/runvm/flock"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

// Home is a held lock on the VM home directory. Release as soon as the VM
// lock is secured.
type Home struct {
	file *os.File
}

// AcquireHome blocks until the home lock is available.
func AcquireHome(homeDir string) (*Home, error) {
	f, err := flock.Open(homeDir + "/.home.lock")
	if err != nil {
		return nil, err
	}
	if err := flock.WaitLock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Home{file: f}, nil
}

func (h *Home) Release() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := flock.Unlock(h.file)
	_ = h.file.Close()
	h.file = nil
	return err
}

// VM is a held exclusive lock on a VM directory's config file.
type VM struct {
	file *os.File
}

// AcquireVM try-locks the VM directory's config file. _ is an intentionally
// unused parameter carrying the already-read config, enforcing the
// read-before-lock ordering at the call site.
func AcquireVM(configPath string, _ *vmtypes.VmConfig) (*VM, error) {
	f, err := flock.Open(configPath)
	if err != nil {
		return nil, err
	}

	if err := flock.Lock(f); err != nil {
		pid, _ := flock.ReadPid(configPath)
		_ = f.Close()
		if pid != 0 {
			return nil, vmerr.New(vmerr.VMAlreadyRunning, "already running (pid %d)", pid)
		}
		return nil, vmerr.Wrap(vmerr.VMAlreadyRunning, err, "could not lock VM directory")
	}

	return &VM{file: f}, nil
}

func (v *VM) Release() error {
	if v == nil || v.file == nil {
		return nil
	}
	err := flock.Unlock(v.file)
	_ = v.file.Close()
	v.file = nil
	return err
}
