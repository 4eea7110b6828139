package netselect

import (
	"fmt"

	"github.com/Code-Hex/vz/v3"

	"github.com/orbstack/runvm/devasm"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

// BuildAttachment turns a validated NetworkPlan into the vz attachment
// Device Assembly wires into the network device config. helper must be
// non-nil for NetworkIsolatedFilter/NetworkHostOnly plans (the caller spawns
// it via SpawnFilterHelper first) and nil otherwise.
func BuildAttachment(plan *vmtypes.NetworkPlan, mac string, helper *FilterHelper) (devasm.NetworkAttachment, error) {
	var attachment vz.NetworkDeviceAttachment
	var err error

	switch plan.Kind {
	case vmtypes.NetworkSharedNAT:
		attachment, err = vz.NewNATNetworkDeviceAttachment()
	case vmtypes.NetworkBridged:
		attachment, err = bridgedAttachment(plan.Interfaces)
	case vmtypes.NetworkIsolatedFilter, vmtypes.NetworkHostOnly:
		if helper == nil {
			return devasm.NetworkAttachment{}, fmt.Errorf("netselect: filter helper required for %v", plan.Kind)
		}
		attachment, err = vz.NewFileHandleNetworkDeviceAttachment(helper.Data)
	}
	if err != nil {
		return devasm.NetworkAttachment{}, err
	}

	return devasm.NetworkAttachment{Attachment: attachment, MAC: mac}, nil
}

func bridgedAttachment(names []string) (vz.NetworkDeviceAttachment, error) {
	if len(names) == 0 {
		return nil, vmerr.New(vmerr.NetworkBridge, "bridged network requires at least one interface")
	}

	ifaces := vz.NetworkInterfaces()
	for _, iface := range ifaces {
		if iface.Identifier() == names[0] {
			return vz.NewBridgedNetworkDeviceAttachment(iface)
		}
	}
	return nil, vmerr.New(vmerr.NetworkBridge, "no matching bridged interface %q", names[0])
}
