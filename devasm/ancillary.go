package devasm

import "github.com/Code-Hex/vz/v3"

// attachAncillary attaches devices the VM always needs regardless of CLI
// flags: an entropy source, a memory balloon for dynamic reclaim, and a
// virtio socket (vsock) device for host-guest socket channels. The Control
// Socket Server does not use it; it listens on a Unix socket in the VM
// Directory.
func attachAncillary(vmConfig *vz.VirtualMachineConfiguration) error {
	entropy, err := vz.NewVirtioEntropyDeviceConfiguration()
	if err != nil {
		return err
	}
	vmConfig.SetEntropyDevicesVirtualMachineConfiguration([]*vz.VirtioEntropyDeviceConfiguration{entropy})

	balloon, err := vz.NewVirtioTraditionalMemoryBalloonDeviceConfiguration()
	if err != nil {
		return err
	}
	vmConfig.SetMemoryBalloonDevicesVirtualMachineConfiguration([]vz.MemoryBalloonDeviceConfiguration{balloon})

	socket, err := vz.NewVirtioSocketDeviceConfiguration()
	if err != nil {
		return err
	}
	vmConfig.SetSocketDevicesVirtualMachineConfiguration([]vz.SocketDeviceConfiguration{socket})

	return nil
}
