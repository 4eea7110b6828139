package devasm

import "github.com/Code-Hex/vz/v3"

func attachAudio(vmConfig *vz.VirtualMachineConfiguration) error {
	input, err := soundDevice(true)
	if err != nil {
		return err
	}
	output, err := soundDevice(false)
	if err != nil {
		return err
	}

	vmConfig.SetAudioDevicesVirtualMachineConfiguration([]vz.AudioDeviceConfiguration{input, output})
	return nil
}

func soundDevice(isInput bool) (vz.AudioDeviceConfiguration, error) {
	config, err := vz.NewVirtioSoundDeviceConfiguration()
	if err != nil {
		return nil, err
	}

	if isInput {
		stream, err := vz.NewVirtioSoundDeviceHostInputStreamConfiguration()
		if err != nil {
			return nil, err
		}
		config.SetStreams(stream)
	} else {
		stream, err := vz.NewVirtioSoundDeviceHostOutputStreamConfiguration()
		if err != nil {
			return nil, err
		}
		config.SetStreams(stream)
	}
	return config, nil
}
