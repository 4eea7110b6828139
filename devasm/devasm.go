// Package devasm builds a complete Virtualization.framework hardware
// configuration from a VM's configuration document and its Run Context. It
// is a pure function: no device is started here, only described.
package devasm

import (
	"fmt"

	"github.com/Code-Hex/vz/v3"

	"github.com/orbstack/runvm/conf/mem"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

// NetworkAttachment is the already-resolved network device attachment: the
// plain NAT/host attachment vz.NetworkDeviceAttachment, or the file handle
// wrapping a filter-helper socket pair end. Network Selector and its
// subprocess wiring produce this; Device Assembly only attaches it.
type NetworkAttachment struct {
	Attachment vz.NetworkDeviceAttachment
	MAC        string
}

// Result carries the assembled configuration plus any resources the caller
// (the Lifecycle Controller) must own and release: the allocated serial PTY
// path, if one was allocated instead of supplied.
type Result struct {
	Config        *vz.VirtualMachineConfiguration
	SerialPTYPath string
}

// Build assembles the full hardware configuration. rootDiskPath is the VM
// Directory's root disk image. diskPaths gives the resolved,
// already-cloned-if-needed filesystem path for each entry of rc.DiskPlans
// (remote-image-ref cloning happens upstream, in cmd/runvm via imageclone —
// Device Assembly only ever sees paths). nvramPath and
// machineIDPath are the VM Directory's persistent platform-identity files:
// reusing them across starts is what lets save/restore (and a macOS guest's
// own identity) survive a restart instead of looking like a different
// machine every time.
func Build(cfg *vmtypes.VmConfig, rc *vmtypes.RunContext, rootDiskPath string, diskPaths []string, net NetworkAttachment, nvramPath, machineIDPath string) (*Result, error) {
	if len(diskPaths) != len(rc.DiskPlans) {
		return nil, fmt.Errorf("devasm: diskPaths/DiskPlans length mismatch")
	}

	if hostMem := mem.PhysicalMemory(); hostMem > 0 && cfg.Memory > hostMem {
		return nil, vmerr.New(vmerr.InvalidSpec, "VM memory (%d bytes) exceeds host physical memory (%d bytes)", cfg.Memory, hostMem)
	}

	loader, err := bootLoader(cfg)
	if err != nil {
		return nil, fmt.Errorf("boot loader: %w", err)
	}

	vmConfig, err := vz.NewVirtualMachineConfiguration(loader, uint(cfg.CPU), cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("base config: %w", err)
	}

	if err := attachPlatform(cfg, rc, vmConfig, nvramPath, machineIDPath); err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}

	ptyPath, err := attachSerial(rc, vmConfig)
	if err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}

	if err := attachNetwork(net, vmConfig); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	if err := attachStorage(rootDiskPath, rc, diskPaths, vmConfig); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	if rc.Graphics {
		if err := attachDisplay(cfg, vmConfig); err != nil {
			return nil, fmt.Errorf("display: %w", err)
		}
	}

	if err := attachShares(cfg, rc, vmConfig); err != nil {
		return nil, fmt.Errorf("directory sharing: %w", err)
	}

	if rc.Audio {
		if err := attachAudio(vmConfig); err != nil {
			return nil, fmt.Errorf("audio: %w", err)
		}
	}

	if err := attachInputDevices(cfg, rc, vmConfig); err != nil {
		return nil, fmt.Errorf("input devices: %w", err)
	}

	if err := attachAncillary(vmConfig); err != nil {
		return nil, fmt.Errorf("ancillary devices: %w", err)
	}

	ok, err := vmConfig.Validate()
	if !ok || err != nil {
		return nil, fmt.Errorf("invalid hardware configuration: %w", err)
	}

	return &Result{Config: vmConfig, SerialPTYPath: ptyPath}, nil
}
