package devasm

import (
	"os"

	"github.com/Code-Hex/vz/v3"

	"github.com/orbstack/runvm/vmtypes"
)

// attachShares aggregates directory share plans by mount tag into one
// device per tag — a single unnamed share per tag uses a single-directory
// share, multiple named shares under one tag use a multi-directory share —
// and attaches the Rosetta translation share for Linux guests when
// requested and available.
func attachShares(cfg *vmtypes.VmConfig, rc *vmtypes.RunContext, vmConfig *vz.VirtualMachineConfiguration) error {
	byTag := make(map[string][]vmtypes.DirSharePlan)
	var order []string
	for _, p := range rc.DirSharePlans {
		if _, ok := byTag[p.MountTag]; !ok {
			order = append(order, p.MountTag)
		}
		byTag[p.MountTag] = append(byTag[p.MountTag], p)
	}

	var devices []vz.DirectorySharingDeviceConfiguration
	for _, tag := range order {
		dev, err := shareDeviceForTag(tag, byTag[tag])
		if err != nil {
			return err
		}
		devices = append(devices, dev)
	}

	if cfg.GuestOS == vmtypes.GuestLinux && rc.RosettaRequested() {
		if vz.LinuxRosettaDirectoryShareInstallationStatus().Available {
			rosetta, err := rosettaShareDevice(rc.Rosetta)
			if err != nil {
				return err
			}
			devices = append(devices, rosetta)
		}
	}

	if len(devices) > 0 {
		vmConfig.SetDirectorySharingDevicesVirtualMachineConfiguration(devices)
	}
	return nil
}

func shareDeviceForTag(tag string, plans []vmtypes.DirSharePlan) (vz.DirectorySharingDeviceConfiguration, error) {
	config, err := vz.NewVirtioFileSystemDeviceConfiguration(tag)
	if err != nil {
		return nil, err
	}

	if len(plans) == 1 && plans[0].Name == "" {
		dir, err := sharedDirectory(plans[0])
		if err != nil {
			return nil, err
		}
		share, err := vz.NewSingleDirectoryShare(dir)
		if err != nil {
			return nil, err
		}
		config.SetDirectoryShare(share)
		return config, nil
	}

	named := make(map[string]*vz.SharedDirectory, len(plans))
	for _, p := range plans {
		dir, err := sharedDirectory(p)
		if err != nil {
			return nil, err
		}
		named[p.Name] = dir
	}
	share, err := vz.NewMultipleDirectoryShare(named)
	if err != nil {
		return nil, err
	}
	config.SetDirectoryShare(share)
	return config, nil
}

func sharedDirectory(p vmtypes.DirSharePlan) (*vz.SharedDirectory, error) {
	if _, err := os.Stat(p.Source); os.IsNotExist(err) {
		if err := os.MkdirAll(p.Source, 0o750); err != nil {
			return nil, err
		}
	}
	return vz.NewSharedDirectory(p.Source, p.ReadOnly)
}

func rosettaShareDevice(tag string) (vz.DirectorySharingDeviceConfiguration, error) {
	share, err := vz.NewLinuxRosettaDirectoryShare()
	if err != nil {
		return nil, err
	}
	config, err := vz.NewVirtioFileSystemDeviceConfiguration(tag)
	if err != nil {
		return nil, err
	}
	config.SetDirectoryShare(share)
	return config, nil
}
