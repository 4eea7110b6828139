package vmindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbstack/runvm/flock"
	"github.com/orbstack/runvm/vmdir"
	"github.com/orbstack/runvm/vmtypes"
)

func makeVM(t *testing.T, home, name, mac string) *vmdir.Dir {
	t.Helper()
	path := filepath.Join(home, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
	d := vmdir.Open(path, name)
	if err := d.WriteConfig(&vmtypes.VmConfig{MACAddress: mac}); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestListEnumeratesVMDirectories(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	makeVM(t, home, "a", "be:ad:0b:00:00:01")
	makeVM(t, home, "b", "be:ad:0b:00:00:02")

	idx, err := New(home, 8)
	require.NoError(t, err)

	entries, err := idx.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestMACInUseByRunningPeer(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mac := "be:ad:0b:00:00:01"
	a := makeVM(t, home, "a", mac)
	makeVM(t, home, "b", mac)

	idx, err := New(home, 8)
	if err != nil {
		t.Fatal(err)
	}

	// neither is "running" (locked) yet
	inUse, err := idx.MACInUseByRunningPeer(mac, "b")
	if err != nil {
		t.Fatal(err)
	}
	if inUse {
		t.Fatal("expected no collision before any peer holds its VM lock")
	}

	f, err := flock.Open(a.ConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := flock.Lock(f); err != nil {
		t.Fatal(err)
	}

	inUse, err = idx.MACInUseByRunningPeer(mac, "b")
	if err != nil {
		t.Fatal(err)
	}
	if !inUse {
		t.Fatal("expected collision once a running peer holds the same MAC")
	}

	// excluding the running peer itself must not report a collision
	inUse, err = idx.MACInUseByRunningPeer(mac, "a")
	if err != nil {
		t.Fatal(err)
	}
	if inUse {
		t.Fatal("excludeName should exclude the peer itself from the collision check")
	}
}

func TestRunningPeerNamesBestEffort(t *testing.T) {
	t.Parallel()

	idx, err := New(filepath.Join(t.TempDir(), "does-not-exist"), 8)
	if err != nil {
		t.Fatal(err)
	}

	names := idx.RunningPeerNames()
	if names != nil {
		t.Fatalf("expected nil on enumeration failure, got %v", names)
	}
}
