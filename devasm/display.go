package devasm

import (
	"github.com/Code-Hex/vz/v3"

	"github.com/orbstack/runvm/vmtypes"
)

func attachDisplay(cfg *vmtypes.VmConfig, vmConfig *vz.VirtualMachineConfiguration) error {
	width, height := cfg.Display.Width, cfg.Display.Height
	if width == 0 {
		width = 1920
	}
	if height == 0 {
		height = 1200
	}

	var graphics vz.GraphicsDeviceConfiguration
	if cfg.GuestOS == vmtypes.GuestMacOS {
		display, err := vz.NewMacGraphicsDisplayConfiguration(width, height, 80)
		if err != nil {
			return err
		}
		g, err := vz.NewMacGraphicsDeviceConfiguration()
		if err != nil {
			return err
		}
		g.SetDisplays(display)
		graphics = g
	} else {
		g, err := vz.NewVirtioGraphicsDeviceConfiguration()
		if err != nil {
			return err
		}
		scanout, err := vz.NewVirtioGraphicsScanoutConfiguration(width, height)
		if err != nil {
			return err
		}
		g.SetScanouts(scanout)
		graphics = g
	}

	vmConfig.SetGraphicsDevicesVirtualMachineConfiguration([]vz.GraphicsDeviceConfiguration{graphics})
	return nil
}
