package devasm

import (
	"github.com/Code-Hex/vz/v3"
	"github.com/creack/pty"

	"github.com/orbstack/runvm/vmtypes"
)

// attachSerial wires the serial console device to either an externally
// supplied path or a freshly allocated pseudo-terminal. It returns the
// allocated PTY's path so the caller can report it on startup, empty if an
// external path was used instead.
func attachSerial(rc *vmtypes.RunContext, vmConfig *vz.VirtualMachineConfiguration) (string, error) {
	if !rc.SerialPlan.Enabled {
		return "", nil
	}

	path := rc.SerialPlan.ExternalPath
	if path == "" {
		ptmx, tty, err := pty.Open()
		if err != nil {
			return "", err
		}
		defer ptmx.Close()
		defer tty.Close()
		path = tty.Name()
	}

	attachment, err := vz.NewFileSerialPortAttachment(path, false)
	if err != nil {
		return "", err
	}
	consoleConfig, err := vz.NewVirtioConsoleDeviceSerialPortConfiguration(attachment)
	if err != nil {
		return "", err
	}

	vmConfig.SetSerialPortsVirtualMachineConfiguration([]*vz.VirtioConsoleDeviceSerialPortConfiguration{
		consoleConfig,
	})
	return path, nil
}
