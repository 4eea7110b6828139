package devasm

import (
	"github.com/Code-Hex/vz/v3"

	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

// attachInputDevices attaches the pointing device (trackpad for macOS
// guests unless --no-trackpad, a USB pointer for Linux guests) and the
// keyboard, which is always attached, plus the clipboard agent unless
// disabled.
func attachInputDevices(cfg *vmtypes.VmConfig, rc *vmtypes.RunContext, vmConfig *vz.VirtualMachineConfiguration) error {
	if rc.NoTrackpad && cfg.GuestOS != vmtypes.GuestMacOS {
		return vmerr.New(vmerr.VMConfigurationError, "--no-trackpad only applies to macOS guests")
	}

	pointing, err := pointingDevice(cfg, rc)
	if err != nil {
		return err
	}
	if pointing != nil {
		vmConfig.SetPointingDevicesVirtualMachineConfiguration([]vz.PointingDeviceConfiguration{pointing})
	}

	keyboard, err := keyboardDevice(cfg)
	if err != nil {
		return err
	}
	vmConfig.SetKeyboardsVirtualMachineConfiguration([]vz.KeyboardConfiguration{keyboard})

	if rc.Clipboard {
		if err := attachClipboard(vmConfig); err != nil {
			return err
		}
	}

	return nil
}

func pointingDevice(cfg *vmtypes.VmConfig, rc *vmtypes.RunContext) (vz.PointingDeviceConfiguration, error) {
	if cfg.GuestOS == vmtypes.GuestMacOS {
		if rc.NoTrackpad {
			return vz.NewUSBScreenCoordinatePointingDeviceConfiguration()
		}
		return vz.NewMacTrackpadConfiguration()
	}
	return vz.NewUSBScreenCoordinatePointingDeviceConfiguration()
}

func keyboardDevice(cfg *vmtypes.VmConfig) (vz.KeyboardConfiguration, error) {
	if cfg.GuestOS == vmtypes.GuestMacOS {
		return vz.NewMacKeyboardConfiguration()
	}
	return vz.NewUSBKeyboardConfiguration()
}

// attachClipboard wires a Spice agent console port for host/guest clipboard
// sharing — the nearest Virtualization.framework equivalent of a dedicated
// clipboard device.
func attachClipboard(vmConfig *vz.VirtualMachineConfiguration) error {
	attachment, err := vz.NewSpiceAgentPortAttachment()
	if err != nil {
		return err
	}
	port, err := vz.NewVirtioConsolePortConfiguration(
		vz.WithVirtioConsolePortConfigurationName(vz.SpiceAgentPortName),
		vz.WithVirtioConsolePortConfigurationAttachment(attachment),
	)
	if err != nil {
		return err
	}

	consoleDevice, err := vz.NewVirtioConsoleDeviceConfiguration()
	if err != nil {
		return err
	}
	consoleDevice.SetVirtioConsolePortConfiguration(0, port)

	vmConfig.SetConsoleDevicesVirtualMachineConfiguration([]vz.ConsoleDeviceConfiguration{consoleDevice})
	return nil
}
