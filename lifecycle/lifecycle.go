// Package lifecycle implements the Lifecycle Controller: the state machine
// that takes a VM from a locked, configured directory through start, run,
// and one of {graceful stop, force stop, suspend-to-disk}, multiplexing OS
// signals and control-socket commands onto the same event model.
//
// Two cooperating tasks drive this, mirroring the run loop shape of a
// signal-pump-plus-worker process: the signal pump only ever enqueues a
// StopRequest, never mutates the VM directly; the VM task owns the single
// *vz.VirtualMachine handle and is the only thing that calls into it.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Code-Hex/vz/v3"
	"golang.org/x/sync/errgroup"

	"github.com/orbstack/runvm/devasm"
	"github.com/orbstack/runvm/syncx"
	"github.com/orbstack/runvm/types"
	"github.com/orbstack/runvm/vmdir"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmindex"
	"github.com/orbstack/runvm/vmlock"
	"github.com/orbstack/runvm/vmsock"
	"github.com/orbstack/runvm/vmtypes"
)

// Release is a scoped-acquisition cleanup action. Every allocated OS
// resource (PTYs, cloned-disk directories, the control-socket listener, the
// filter-helper subprocess) registers one; all fire, in reverse order, on
// every exit path.
type Release func()

// Controller owns the VM for its entire lifetime. Exactly one exists per
// process. Signal handlers and the Control Socket Server post events into
// its queue; they never reach into the VM themselves.
type Controller struct {
	mu    syncx.Mutex
	state vmtypes.LifecycleState

	dir   *vmdir.Dir
	index *vmindex.Index

	homeLock *vmlock.Home
	vmLock   *vmlock.VM

	machine *vz.VirtualMachine
	cfg     *vmtypes.VmConfig

	stopCh chan types.StopRequest

	states *syncx.Broadcaster[vmtypes.LifecycleState]

	releases []Release
}

// New creates a controller bound to dir, not yet configured.
func New(dir *vmdir.Dir, index *vmindex.Index) *Controller {
	return &Controller{
		dir:    dir,
		index:  index,
		stopCh: make(chan types.StopRequest, 4),
		states: syncx.NewBroadcaster[vmtypes.LifecycleState](),
	}
}

func (c *Controller) setState(s vmtypes.LifecycleState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.states.TryEmit(s)
}

// State returns the controller's current state.
func (c *Controller) State() vmtypes.LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel of state transitions, for the Chrome Bridge's
// UI helper and the Control Socket Server's status queries.
func (c *Controller) Subscribe() chan vmtypes.LifecycleState {
	return c.states.Subscribe()
}

func (c *Controller) release(r Release) {
	c.releases = append(c.releases, r)
}

// releaseAll runs every registered release action in reverse order, so the
// last-acquired resource is the first released.
func (c *Controller) releaseAll() {
	for i := len(c.releases) - 1; i >= 0; i-- {
		c.releases[i]()
	}
	c.releases = nil
}

// RequestStop enqueues a graceful stop. Safe to call from a signal handler.
func (c *Controller) RequestStop(reason types.StopReason) {
	c.enqueue(types.StopRequest{Type: types.StopTypeGraceful, Reason: reason})
}

// RequestForceStop enqueues an immediate stop.
func (c *Controller) RequestForceStop(reason types.StopReason) {
	c.enqueue(types.StopRequest{Type: types.StopTypeForce, Reason: reason})
}

// RequestGuestStop enqueues a guest-side ACPI-like stop request (SIGUSR2's
// event, also reachable via the control socket's "request-stop" command).
// Unlike RequestForceStop, this never forces the VM down itself -- it only
// asks the guest to shut down, letting Running -> Terminated happen
// naturally if the guest honors the request.
func (c *Controller) RequestGuestStop() {
	c.enqueue(types.StopRequest{Type: types.StopTypeGraceful, Reason: types.StopReasonGuestInitiated})
}

func (c *Controller) enqueue(req types.StopRequest) {
	select {
	case c.stopCh <- req:
	default:
		// queue is full; a stop is already pending, dropping a duplicate is fine
	}
}

// Configure reads the VM's config document, runs collision detection under
// the home lock, and secures the VM lock. It must be called before Start.
//
// Ordering invariant: the config is read, then (and only then) the VM lock
// is acquired — vmlock.AcquireVM's signature enforces this at the call
// site, since it requires the config value as a parameter.
func (c *Controller) Configure(ctx context.Context, homeDir string) (*vmtypes.VmConfig, error) {
	cfg, err := c.dir.ReadConfig()
	if err != nil {
		return nil, err
	}
	c.setState(vmtypes.StateConfigured)

	home, err := vmlock.AcquireHome(homeDir)
	if err != nil {
		return nil, fmt.Errorf("acquire home lock: %w", err)
	}
	c.homeLock = home

	inUse, err := c.index.MACInUseByRunningPeer(cfg.MACAddress, c.dir.Name)
	if err != nil {
		_ = home.Release()
		return nil, err
	}
	if inUse {
		if err := c.dir.RegenerateMAC(cfg); err != nil {
			_ = home.Release()
			return nil, fmt.Errorf("regenerate MAC after collision: %w", err)
		}
	}

	vmLock, err := vmlock.AcquireVM(c.dir.ConfigPath(), cfg)
	if err != nil {
		_ = home.Release()
		return nil, err
	}
	c.vmLock = vmLock
	c.setState(vmtypes.StateLocked)

	// Home lock is released strictly after the VM lock is secured.
	if err := home.Release(); err != nil {
		return nil, fmt.Errorf("release home lock: %w", err)
	}
	c.homeLock = nil

	c.release(func() { _ = c.vmLock.Release() })

	return cfg, nil
}

// Start assembles the hardware configuration, installs signal handling, and
// runs the VM to completion. It blocks until the VM reaches Terminated.
func (c *Controller) Start(ctx context.Context, cfg *vmtypes.VmConfig, rc *vmtypes.RunContext, rootDiskPath string, diskPaths []string, net devasm.NetworkAttachment) (exitCode int, err error) {
	defer c.releaseAll()

	resume := c.dir.Suspended()
	if resume && !cfg.Suspendable {
		return 1, vmerr.New(vmerr.Unsupported, "saved state present but VM is not suspendable")
	}

	built, err := devasm.Build(cfg, rc, rootDiskPath, diskPaths, net, c.dir.NvramPath(), c.dir.MachineIDPath())
	if err != nil {
		return 1, err
	}
	if built.SerialPTYPath != "" {
		fmt.Fprintf(os.Stderr, "serial console: %s\n", built.SerialPTYPath)
	}

	machine, err := vz.NewVirtualMachine(built.Config)
	if err != nil {
		return 1, err
	}
	c.machine = machine
	c.cfg = cfg

	// Signal handlers are installed after the VM is fully configured but
	// before start. Registering SIGINT/SIGUSR1/SIGUSR2 with signal.Notify is
	// what routes their delivery to this controller instead of the default
	// disposition.
	stopPump, err := installSignalPump(c)
	if err != nil {
		return 1, err
	}
	c.release(stopPump)

	// Socket failures are logged by vmsock itself and never torn down the
	// VM, so a failure to bind here is non-fatal: just skip the server.
	if stopSock, err := vmsock.New(c.RequestStop, c.RequestGuestStop, c.suspendCurrent).Serve(c.dir.SockPath()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: control socket unavailable: %v\n", err)
	} else {
		c.release(func() { _ = stopSock() })
	}

	c.setState(vmtypes.StateStarting)

	if resume {
		// The saved-state file is the actual guest memory/device snapshot: it
		// must be restored into this machine before anything consumes it, and
		// only unlinked afterward, so a crash mid-restore leaves the snapshot
		// on disk to retry rather than silently rebooting the guest next time.
		fmt.Fprintln(os.Stderr, "restoring VM state...")
		if err := machine.RestoreMachineStateFromURL(c.dir.StatePath()); err != nil {
			return 1, vmerr.Wrap(vmerr.ResumeFailed, err, "restore saved state")
		}
		if err := c.dir.RemoveState(); err != nil {
			return 1, fmt.Errorf("remove saved state after restore: %w", err)
		}
		if err := machine.Resume(); err != nil {
			return 1, vmerr.Wrap(vmerr.ResumeFailed, err, "resume restored VM")
		}
	} else if err := machine.Start(); err != nil {
		if isLimitExceeded(err) {
			// best-effort enrichment; failure to enumerate peers is swallowed
			peers := c.index.RunningPeerNames()
			return 1, vmerr.Wrap(vmerr.VirtualMachineLimitExceeded, err, "other running VMs: %v", peers)
		}
		return 1, err
	}

	c.setState(vmtypes.StateRunning)

	return c.runToExit(ctx, machine)
}

// runToExit selects over the VM's own state notifications and the stop
// queue until the VM terminates, implementing the transitions of §4.8.
func (c *Controller) runToExit(ctx context.Context, machine *vz.VirtualMachine) (int, error) {
	states := machine.StateChangedNotify()

	for {
		select {
		case <-ctx.Done():
			return c.forceStop(machine)

		case req := <-c.stopCh:
			code, err, done := c.handleStopRequest(machine, req)
			if done {
				return code, err
			}

		case s := <-states:
			if s == vz.VirtualMachineStateStopped || s == vz.VirtualMachineStateError {
				c.setState(vmtypes.StateTerminated)
				return 0, nil
			}
		}
	}
}

func (c *Controller) handleStopRequest(machine *vz.VirtualMachine, req types.StopRequest) (code int, err error, done bool) {
	switch {
	case req.Type == types.StopTypeForce:
		return c.forceStop(machine)

	case req.Reason == types.StopReasonGuestInitiated:
		// No state change here: ask the guest to shut itself down and let
		// Running -> Terminated happen naturally via the VZ state channel.
		_, _ = machine.RequestStop()
		return 0, nil, false

	default:
		return c.forceStop(machine)
	}
}

func (c *Controller) forceStop(machine *vz.VirtualMachine) (int, error) {
	c.setState(vmtypes.StateStopping)
	if machine.CanStop() {
		if _, err := machine.RequestStop(); err != nil {
			_ = machine.Stop()
		}
	}

	select {
	case <-waitStopped(machine):
	case <-time.After(10 * time.Second):
		_ = machine.Stop()
	}

	c.setState(vmtypes.StateTerminated)
	return 0, nil
}

func isLimitExceeded(err error) bool {
	return err != nil && strings.Contains(err.Error(), "VZErrorVirtualMachineLimitExceeded")
}

func waitStopped(machine *vz.VirtualMachine) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range machine.StateChangedNotify() {
			if s == vz.VirtualMachineStateStopped {
				return
			}
		}
	}()
	return done
}

// suspendCurrent suspends using the config captured at Start, for callers
// (the signal pump, the control socket) that have no config of their own.
func (c *Controller) suspendCurrent() error {
	if c.cfg == nil {
		return vmerr.New(vmerr.Unsupported, "VM is not running")
	}
	return c.Suspend(c.cfg)
}

// Suspend implements SIGUSR1: pause, then save state to disk, then
// terminate. The sequence is strictly ordered -- if pause fails, save is
// never attempted.
func (c *Controller) Suspend(cfg *vmtypes.VmConfig) error {
	if !cfg.Suspendable {
		return vmerr.New(vmerr.Unsupported, "VM is not suspendable")
	}

	c.setState(vmtypes.StateSnapshottingForSuspend)

	if err := c.machine.Pause(); err != nil {
		return vmerr.Wrap(vmerr.SuspendFailed, err, "pause")
	}

	if err := c.machine.SaveMachineStateToPath(c.dir.StatePath()); err != nil {
		return vmerr.Wrap(vmerr.SuspendFailed, err, "save state")
	}

	c.enqueue(types.StopRequest{Type: types.StopTypeForce, Reason: types.StopReasonSignal})
	return nil
}

// ErrGroup runs fn under an errgroup bound to ctx, the generic pattern used
// wherever the controller needs more than one cooperating subtask (e.g. the
// Control Socket Server alongside the VM task).
func (c *Controller) ErrGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	return errgroup.WithContext(ctx)
}
