package lifecycle

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/orbstack/runvm/types"
)

// installSignalPump wires SIGINT/SIGUSR1/SIGUSR2 into the controller's stop
// queue. SIGUSR1/SIGUSR2 have no default disposition in the Go runtime
// until observed, but we still register them before VM start and never
// earlier, matching the ordering the rest of the controller depends on:
// signal handlers must only ever run once the VM object exists, since
// suspendCurrent and the guest-stop path both dereference it.
func installSignalPump(c *Controller) (Release, error) {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGUSR1, unix.SIGUSR2)

	sawInt := false
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				switch sig {
				case unix.SIGINT:
					if sawInt {
						c.RequestForceStop(types.StopReasonSignal)
					} else {
						sawInt = true
						c.RequestStop(types.StopReasonSignal)
					}
				case unix.SIGUSR1:
					go func() { _ = c.suspendCurrent() }()
				case unix.SIGUSR2:
					c.RequestGuestStop()
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}, nil
}
