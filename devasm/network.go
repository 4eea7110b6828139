package devasm

import (
	"net"

	"github.com/Code-Hex/vz/v3"
)

func attachNetwork(netAttach NetworkAttachment, vmConfig *vz.VirtualMachineConfiguration) error {
	if netAttach.Attachment == nil {
		return nil
	}

	netConfig, err := vz.NewVirtioNetworkDeviceConfiguration(netAttach.Attachment)
	if err != nil {
		return err
	}

	mac, err := net.ParseMAC(netAttach.MAC)
	if err != nil {
		return err
	}
	addr, err := vz.NewMACAddress(mac)
	if err != nil {
		return err
	}
	netConfig.SetMACAddress(addr)

	vmConfig.SetNetworkDevicesVirtualMachineConfiguration([]*vz.VirtioNetworkDeviceConfiguration{netConfig})
	return nil
}
