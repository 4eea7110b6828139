package netselect

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/orbstack/runvm/util/pspawn"
)

// FilterHelper is the running isolating-packet-filter subprocess and its
// data-plane socket pair end.
type FilterHelper struct {
	Process *os.Process
	Data    *os.File // this engine's end of the socket pair
}

// SpawnFilterHelper starts the filter helper binary for NetworkIsolatedFilter
// or NetworkHostOnly plans, passing the VM's MAC and extra args, and wires
// an anonymous socket pair for the data plane. interactive controls whether
// a privilege-escalation bit is set on the helper binary before spawning,
// mirroring the teacher's interactive-session privhelper setup.
func SpawnFilterHelper(helperPath, mac string, extraArgs []string, interactive bool) (*FilterHelper, error) {
	if interactive {
		if err := ensureSetuid(helperPath); err != nil {
			return nil, fmt.Errorf("set up filter helper privilege bit: %w", err)
		}
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("create filter helper socket pair: %w", err)
	}
	ours := os.NewFile(uintptr(fds[0]), "filter-helper-data")
	theirs := os.NewFile(uintptr(fds[1]), "filter-helper-data-remote")
	defer theirs.Close()

	args := append([]string{"--mac", mac}, extraArgs...)
	cmd := pspawn.Command(helperPath, args...)
	cmd.ExtraFiles = []*os.File{theirs}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = ours.Close()
		return nil, fmt.Errorf("spawn filter helper: %w", err)
	}

	return &FilterHelper{Process: cmd.Process, Data: ours}, nil
}

// Close terminates the helper and releases its socket end. cmd/runvm defers
// it right after spawning the helper.
func (h *FilterHelper) Close() error {
	if h == nil {
		return nil
	}
	if h.Process != nil {
		_ = h.Process.Signal(unix.SIGTERM)
	}
	if h.Data != nil {
		return h.Data.Close()
	}
	return nil
}

func ensureSetuid(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode()|os.ModeSetuid)
}
