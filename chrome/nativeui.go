package chrome

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orbstack/runvm/syncx"
	"github.com/orbstack/runvm/uitypes"
	"github.com/orbstack/runvm/util"
)

// NativeUI drives a native window host process and translates its events
// into the Lifecycle Controller's stop/suspend model. One exists per run
// when Mode == ModeNativeUI; headless and remote-display runs never create
// one.
type NativeUI struct {
	events chan uitypes.UIEvent

	// coalesces a burst of StateChanged notifications into one UI repaint,
	// mirroring the teacher's debounce around its own UI-refresh trigger.
	refresh *syncx.LeadingFuncDebounce
}

// NewNativeUI wires onRefresh to fire at most once per
// refreshCoalesceWindow, per (*syncx.LeadingFuncDebounce)'s leading-edge semantics.
func NewNativeUI(onRefresh func()) *NativeUI {
	return &NativeUI{
		events:  make(chan uitypes.UIEvent, 8),
		refresh: syncx.NewLeadingFuncDebounce(refreshCoalesceWindow, onRefresh),
	}
}

const refreshCoalesceWindow = 100 * time.Millisecond

// Events returns the channel the window host's own event pump posts to.
func (u *NativeUI) Events() chan<- uitypes.UIEvent {
	return u.events
}

// OnStateChanged should be called by the Lifecycle Controller's state
// subscription; it coalesces repaints rather than firing one per transition.
func (u *NativeUI) OnStateChanged() {
	u.refresh.Call()
}

// HandleWindowClosed implements the spec's window-closed policy: convert to
// SIGUSR1 if the VM is suspendable, else SIGINT; if signal delivery itself
// fails, fall back to killing the process outright so the window closing
// can never leave an orphaned VM running with no way to stop it.
func HandleWindowClosed(pid int, suspendable bool) error {
	sig := syscall.SIGINT
	if suspendable {
		sig = syscall.SIGUSR1
	}

	if err := syscall.Kill(pid, sig); err != nil {
		logrus.WithError(err).Warn("window-closed signal delivery failed, terminating process")
		return syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}

// Open launches the platform's native window-host handler for url, used by
// the remote-display mode when running interactively (a local display is
// attached and the user isn't redirected to a terminal-only session).
func Open(url string) error {
	_, err := util.Run("open", url)
	if err != nil {
		return fmt.Errorf("open %q: %w", url, err)
	}
	return nil
}

// PrintURL is the non-interactive remote-display fallback: just print the
// access URL instead of trying to open a local window for it.
func PrintURL(url string) {
	fmt.Fprintln(os.Stdout, url)
}
