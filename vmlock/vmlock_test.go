package vmlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

func TestAcquireVMSucceedsWhenUnlocked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &vmtypes.VmConfig{}
	lock, err := AcquireVM(configPath, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer lock.Release()
}

func TestAcquireVMFailsWhenAlreadyHeld(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &vmtypes.VmConfig{}
	first, err := AcquireVM(configPath, cfg)
	if err != nil {
		t.Fatalf("unexpected error acquiring first lock: %v", err)
	}
	defer first.Release()

	// a second open file description locking the same path must fail --
	// this is the VMAlreadyRunning path of spec section 4.4.
	_, err = AcquireVM(configPath, cfg)
	if !vmerr.Is(err, vmerr.VMAlreadyRunning) {
		t.Fatalf("expected VMAlreadyRunning, got %v", err)
	}
}

func TestAcquireVMReleaseThenReacquire(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &vmtypes.VmConfig{}
	first, err := AcquireVM(configPath, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := AcquireVM(configPath, cfg)
	if err != nil {
		t.Fatalf("reacquire after release should succeed: %v", err)
	}
	defer second.Release()
}

func TestAcquireHomeBlocksUntilReleased(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	home, err := AcquireHome(dir)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := AcquireHome(dir)
		if err != nil {
			t.Error(err)
			return
		}
		_ = second.Release()
	}()

	select {
	case <-done:
		t.Fatal("second AcquireHome should have blocked while the first is held")
	default:
	}

	if err := home.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	<-done
}

func TestReleaseNilIsNoop(t *testing.T) {
	t.Parallel()

	var h *Home
	if err := h.Release(); err != nil {
		t.Fatalf("Release on nil *Home should be a no-op, got %v", err)
	}

	var v *VM
	if err := v.Release(); err != nil {
		t.Fatalf("Release on nil *VM should be a no-op, got %v", err)
	}
}
