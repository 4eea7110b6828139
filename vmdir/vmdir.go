// Package vmdir owns the on-disk layout of a single VM Directory: its
// configuration document, disk image, NVRAM blob, optional saved state, and
// lock file. It provides the state queries (running, suspended) and MAC
// accessors the Storage Index and Lifecycle Controller depend on.
package vmdir

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/orbstack/runvm/flock"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

const (
	ConfigFileName    = "config.json"
	DiskFileName      = "disk.img"
	NvramFileName     = "nvram.bin"
	StateFileName     = "state.bin"
	SockFileName      = "sock"
	MachineIDFileName = "machine-id.bin"

	// MACPrefix marks MAC addresses this engine generates as
	// locally-administered, unicast (the low bits of the first octet).
	MACPrefix = "be:ad:0b"
)

// Dir is a handle on one VM's on-disk directory.
type Dir struct {
	Name string
	Path string
}

// Open returns a handle for the named VM. It does not check existence —
// callers that need VMNotFound semantics should call Exists first.
func Open(path, name string) *Dir {
	return &Dir{Name: name, Path: path}
}

func (d *Dir) Exists() bool {
	_, err := os.Stat(d.Path)
	return err == nil
}

func (d *Dir) ConfigPath() string    { return d.Path + "/" + ConfigFileName }
func (d *Dir) DiskPath() string      { return d.Path + "/" + DiskFileName }
func (d *Dir) NvramPath() string     { return d.Path + "/" + NvramFileName }
func (d *Dir) StatePath() string     { return d.Path + "/" + StateFileName }
func (d *Dir) SockPath() string      { return d.Path + "/" + SockFileName }
func (d *Dir) MachineIDPath() string { return d.Path + "/" + MachineIDFileName }

// ReadConfig reads the VM's configuration document. Must be called before
// acquiring the VM lock (see vmlock) — reading first, then locking, is the
// ordering invariant the Lock Manager depends on.
func (d *Dir) ReadConfig() (*vmtypes.VmConfig, error) {
	data, err := os.ReadFile(d.ConfigPath())
	if os.IsNotExist(err) {
		return nil, vmerr.New(vmerr.VMNotFound, "no such VM %q", d.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg vmtypes.VmConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, vmerr.Wrap(vmerr.VMConfigurationError, err, "parse config for %q", d.Name)
	}
	return &cfg, nil
}

// WriteConfig atomically rewrites the configuration document.
func (d *Dir) WriteConfig(cfg *vmtypes.VmConfig) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}

	tmp := d.ConfigPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, d.ConfigPath())
}

// Running reports whether another process holds the VM lock on this
// directory's config file.
func (d *Dir) Running() (bool, error) {
	pid, err := flock.ReadPid(d.ConfigPath())
	if err != nil {
		return false, err
	}
	return pid != 0, nil
}

// Suspended reports whether a saved-state blob is present.
func (d *Dir) Suspended() bool {
	_, err := os.Stat(d.StatePath())
	return err == nil
}

// RemoveState deletes the saved-state blob, used just before start(resume=true).
func (d *Dir) RemoveState() error {
	err := os.Remove(d.StatePath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RegenerateMAC assigns a fresh random MAC address to cfg and persists it.
// Called when the Storage Index detects a collision with a running peer.
func (d *Dir) RegenerateMAC(cfg *vmtypes.VmConfig) error {
	mac, err := randomMAC()
	if err != nil {
		return err
	}
	cfg.MACAddress = mac
	return d.WriteConfig(cfg)
}

func randomMAC() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%02x:%02x:%02x", MACPrefix, buf[0], buf[1], buf[2]), nil
}

// NewConfig builds a config document's CreatedAt/PlatformType defaults; the
// rest of the fields come from the image subsystem (out of scope here) or
// CLI overrides applied by the caller.
func NewConfig(guestOS vmtypes.GuestOS) *vmtypes.VmConfig {
	return &vmtypes.VmConfig{
		GuestOS:      guestOS,
		PlatformType: runtime.GOARCH,
		CreatedAt:    time.Now(),
	}
}
