// Package chrome implements the Chrome Bridge: the three mutually exclusive
// display modes (native UI, remote-display, headless), remote-display URL
// derivation for bridged-network reachability, and the native-UI
// window-closed-to-signal translation.
//
// Grounded on the teacher's external-helper invocation pattern (spawn a
// native window host, wait for it to report started/closed) generalized
// since this engine is not always GUI-hosted: headless and remote-display
// modes never spawn anything.
package chrome

import (
	"fmt"
	"net"

	"github.com/orbstack/runvm/vmtypes"
)

// Mode is the display mode the bridge resolved for a run.
type Mode int

const (
	ModeHeadless Mode = iota
	ModeNativeUI
	ModeRemoteDisplay
)

func (m Mode) String() string {
	switch m {
	case ModeNativeUI:
		return "native-ui"
	case ModeRemoteDisplay:
		return "remote-display"
	default:
		return "headless"
	}
}

// SelectMode resolves the display mode from a RunContext. VncPlan and
// Graphics are validated mutually-exclusive-enough upstream by the CLI
// layer; this only decides which of the three modes applies.
func SelectMode(rc *vmtypes.RunContext) Mode {
	switch {
	case rc.VncPlan.Enabled:
		return ModeRemoteDisplay
	case rc.Graphics:
		return ModeNativeUI
	default:
		return ModeHeadless
	}
}

// Endpoint is a remote-display server's published address.
type Endpoint struct {
	Host string
	Port int
}

// AccessURL derives the client-facing URL for a remote-display endpoint.
// When the VM's network is bridged, the loopback or wildcard host the
// server actually bound to isn't reachable from another machine on the
// bridged interface, so the host component is rewritten to the bridged
// interface's own address; bridgedHostAddr is that address, resolved by
// the caller (Device Assembly / Network Selector already know it).
func AccessURL(ep Endpoint, bridged bool, bridgedHostAddr string) string {
	host := ep.Host
	if bridged && bridgedHostAddr != "" {
		host = bridgedHostAddr
	}
	return fmt.Sprintf("vnc://%s", net.JoinHostPort(host, fmt.Sprint(ep.Port)))
}
