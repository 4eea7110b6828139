package devasm

import (
	"github.com/Code-Hex/vz/v3"

	"github.com/orbstack/runvm/vmtypes"
)

// diskImageCachingMode mirrors upstream guidance to avoid disk corruption
// observed on Apple Silicon with the automatic caching mode.
const diskImageCachingMode = vz.DiskImageCachingModeCached

func attachStorage(rootDiskPath string, rc *vmtypes.RunContext, diskPaths []string, vmConfig *vz.VirtualMachineConfiguration) error {
	var devices []vz.StorageDeviceConfiguration

	root, err := rootDiskDevice(rootDiskPath)
	if err != nil {
		return err
	}
	devices = append(devices, root)

	for i, plan := range rc.DiskPlans {
		dev, err := diskDevice(plan, diskPaths[i])
		if err != nil {
			return err
		}
		devices = append(devices, dev)
	}

	vmConfig.SetStorageDevicesVirtualMachineConfiguration(devices)
	return nil
}

func rootDiskDevice(path string) (vz.StorageDeviceConfiguration, error) {
	attachment, err := vz.NewDiskImageStorageDeviceAttachmentWithCacheAndSync(
		path, false, diskImageCachingMode, vz.DiskImageSynchronizationModeFsync)
	if err != nil {
		return nil, err
	}
	return vz.NewVirtioBlockDeviceConfiguration(attachment)
}

// diskDevice builds the storage device for one additional disk. Block
// devices and plain image files share the same attachment type in
// Virtualization.framework — a character/block special file opens exactly
// like a regular disk image file — so classification (diskspec.Parse) only
// changes validation and default options, not the device wiring here.
func diskDevice(plan vmtypes.DiskPlan, path string) (vz.StorageDeviceConfiguration, error) {
	syncMode := syncModeOf(plan.SyncMode)
	cachingMode := cachingModeOf(plan.CachingMode)

	attachment, err := vz.NewDiskImageStorageDeviceAttachmentWithCacheAndSync(path, plan.ReadOnly, cachingMode, syncMode)
	if err != nil {
		return nil, err
	}
	return vz.NewVirtioBlockDeviceConfiguration(attachment)
}

func syncModeOf(m vmtypes.SyncMode) vz.DiskImageSynchronizationMode {
	switch m {
	case vmtypes.SyncNone:
		return vz.DiskImageSynchronizationModeNone
	case vmtypes.SyncFsync:
		return vz.DiskImageSynchronizationModeFsync
	default:
		return vz.DiskImageSynchronizationModeFull
	}
}

func cachingModeOf(m vmtypes.CachingMode) vz.DiskImageCachingMode {
	switch m {
	case vmtypes.CachingCached:
		return vz.DiskImageCachingModeCached
	case vmtypes.CachingUncached:
		return vz.DiskImageCachingModeUncached
	case vmtypes.CachingUnspecified:
		return vz.DiskImageCachingModeUnspecified
	default:
		return vz.DiskImageCachingModeAutomatic
	}
}
