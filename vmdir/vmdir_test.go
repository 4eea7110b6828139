package vmdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orbstack/runvm/flock"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

func newDirWithConfig(t *testing.T, cfg *vmtypes.VmConfig) *Dir {
	t.Helper()
	path := t.TempDir()
	d := Open(path, filepath.Base(path))
	if err := d.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestReadWriteConfigRoundTrips(t *testing.T) {
	t.Parallel()

	d := newDirWithConfig(t, &vmtypes.VmConfig{
		CPU:        4,
		Memory:     1 << 30,
		MACAddress: "be:ad:0b:00:00:01",
		GuestOS:    vmtypes.GuestLinux,
	})

	cfg, err := d.ReadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CPU != 4 || cfg.Memory != 1<<30 || cfg.GuestOS != vmtypes.GuestLinux {
		t.Errorf("config did not round trip: %+v", cfg)
	}
}

func TestReadConfigNotFound(t *testing.T) {
	t.Parallel()

	d := Open(t.TempDir(), "missing")
	_, err := d.ReadConfig()
	if !vmerr.Is(err, vmerr.VMNotFound) {
		t.Fatalf("expected VMNotFound, got %v", err)
	}
}

func TestRunningReflectsLockState(t *testing.T) {
	t.Parallel()

	d := newDirWithConfig(t, &vmtypes.VmConfig{})

	running, err := d.Running()
	if err != nil {
		t.Fatal(err)
	}
	if running {
		t.Fatal("expected not running before any lock is held")
	}

	f, err := flock.Open(d.ConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := flock.Lock(f); err != nil {
		t.Fatal(err)
	}

	running, err = d.Running()
	if err != nil {
		t.Fatal(err)
	}
	if !running {
		t.Fatal("expected running once a lock is held on the config file")
	}
}

func TestSuspendedReflectsStateFile(t *testing.T) {
	t.Parallel()

	d := newDirWithConfig(t, &vmtypes.VmConfig{})

	if d.Suspended() {
		t.Fatal("expected not suspended before state.bin exists")
	}

	if err := os.WriteFile(d.StatePath(), []byte("state"), 0644); err != nil {
		t.Fatal(err)
	}
	if !d.Suspended() {
		t.Fatal("expected suspended once state.bin exists")
	}

	if err := d.RemoveState(); err != nil {
		t.Fatal(err)
	}
	if d.Suspended() {
		t.Fatal("expected not suspended after RemoveState")
	}
}

func TestRemoveStateMissingIsNoop(t *testing.T) {
	t.Parallel()

	d := newDirWithConfig(t, &vmtypes.VmConfig{})
	if err := d.RemoveState(); err != nil {
		t.Fatalf("RemoveState on a directory with no state.bin should be a no-op, got %v", err)
	}
}

func TestRegenerateMACChangesAddress(t *testing.T) {
	t.Parallel()

	cfg := &vmtypes.VmConfig{MACAddress: "be:ad:0b:aa:bb:cc"}
	d := newDirWithConfig(t, cfg)

	original := cfg.MACAddress
	if err := d.RegenerateMAC(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.MACAddress == original {
		t.Fatal("expected RegenerateMAC to change the MAC address")
	}
	if cfg.MACAddress[:len(MACPrefix)] != MACPrefix {
		t.Errorf("regenerated MAC %q does not carry the engine prefix %q", cfg.MACAddress, MACPrefix)
	}

	persisted, err := d.ReadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if persisted.MACAddress != cfg.MACAddress {
		t.Errorf("regenerated MAC was not persisted: got %q, want %q", persisted.MACAddress, cfg.MACAddress)
	}
}
