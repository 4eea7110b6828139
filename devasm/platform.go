package devasm

import (
	"errors"
	"os"

	"github.com/Code-Hex/vz/v3"

	"github.com/orbstack/runvm/osver"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

// minNestedVirtMacOS is the first macOS release Apple's Virtualization.framework
// documents nested virtualization support for; checking it up front gives a
// clearer error than the generic "not supported" vz.IsNestedVirtualizationSupported returns.
const minNestedVirtMacOS = "v15.0.0"

func bootLoader(cfg *vmtypes.VmConfig) (vz.BootLoader, error) {
	if cfg.GuestOS == vmtypes.GuestMacOS {
		return vz.NewMacOSBootLoader()
	}
	return vz.NewEFIBootLoader()
}

func attachPlatform(cfg *vmtypes.VmConfig, rc *vmtypes.RunContext, vmConfig *vz.VirtualMachineConfiguration, nvramPath, machineIDPath string) error {
	if cfg.GuestOS == vmtypes.GuestMacOS {
		if rc.Nested {
			// Nested virtualization is only exposed on the generic (Linux
			// guest) platform configuration; a macOS guest can't nest.
			return vmerr.New(vmerr.Unsupported, "nested virtualization requires a Linux guest")
		}

		hwModel, err := vz.NewMacHardwareModelWithData(cfg.HardwareModel)
		if err != nil {
			return err
		}
		machineID, err := loadOrCreateMacMachineIdentifier(machineIDPath)
		if err != nil {
			return err
		}

		// nvramPath holds the VM Directory's persistent NVRAM blob
		// (vmdir.Dir.NvramPath): vz.NewMacAuxiliaryStorage opens it if it
		// already exists, or creates it from hwModel/machineID on first boot.
		aux, err := openOrCreateMacAuxiliaryStorage(nvramPath, hwModel, machineID)
		if err != nil {
			return err
		}

		platform, err := vz.NewMacPlatformConfiguration(
			vz.WithMacAuxiliaryStorage(aux),
			vz.WithMacHardwareModel(hwModel),
			vz.WithMacMachineIdentifier(machineID),
		)
		if err != nil {
			return err
		}
		vmConfig.SetPlatformVirtualMachineConfiguration(platform)
		return nil
	}

	machineID, err := loadOrCreateGenericMachineIdentifier(machineIDPath)
	if err != nil {
		return err
	}
	platform, err := vz.NewGenericPlatformConfiguration(vz.WithGenericMachineIdentifier(machineID))
	if err != nil {
		return err
	}

	if rc.Nested {
		if !osver.IsAtLeast(minNestedVirtMacOS) {
			return vmerr.New(vmerr.Unsupported, "nested virtualization requires macOS %s or later", minNestedVirtMacOS)
		}
		if !vz.IsNestedVirtualizationSupported() {
			return vmerr.New(vmerr.Unsupported, "nested virtualization is not supported on this host")
		}
		if err := platform.SetNestedVirtualizationEnabled(true); err != nil {
			return err
		}
	}

	vmConfig.SetPlatformVirtualMachineConfiguration(platform)
	return nil
}

// openOrCreateMacAuxiliaryStorage opens the VM's existing NVRAM blob at path,
// or creates a fresh one from hwModel/machineID if this is the VM's first
// boot. Always creating a fresh store here (as opposed to reusing the
// on-disk one) would reset the guest's boot picker state and trusted-OS
// measurements on every single start.
func openOrCreateMacAuxiliaryStorage(path string, hwModel *vz.MacHardwareModel, machineID *vz.MacMachineIdentifier) (*vz.MacAuxiliaryStorage, error) {
	if _, err := os.Stat(path); err == nil {
		return vz.NewMacAuxiliaryStorage(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return vz.NewMacAuxiliaryStorage(path, vz.WithCreating(hwModel, machineID))
}

// loadOrCreateMacMachineIdentifier reuses the machine identity persisted at
// path across starts, or mints and saves a new one on first boot. Without
// this, the guest looks like a different machine on every start, which
// breaks save/restore and any guest-side licensing tied to machine identity.
func loadOrCreateMacMachineIdentifier(path string) (*vz.MacMachineIdentifier, error) {
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return vz.NewMacMachineIdentifierWithData(data)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	id, err := vz.NewMacMachineIdentifier()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, id.DataRepresentation(), 0644); err != nil {
		return nil, err
	}
	return id, nil
}

// loadOrCreateGenericMachineIdentifier is loadOrCreateMacMachineIdentifier's
// Linux-guest counterpart.
func loadOrCreateGenericMachineIdentifier(path string) (*vz.GenericMachineIdentifier, error) {
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return vz.NewGenericMachineIdentifierWithData(data)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	id, err := vz.NewGenericMachineIdentifier()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, id.DataRepresentation(), 0644); err != nil {
		return nil, err
	}
	return id, nil
}
