// Package netselect validates the CLI's network-related options into
// exactly one vmtypes.NetworkPlan, and — for the two modes that need it —
// spawns the isolating filter helper subprocess and wires its data-plane
// socket pair.
package netselect

import (
	"net"
	"os"
	"strings"

	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
	"gopkg.in/yaml.v3"
)

// Options mirrors the network-related CLI flags, pre-validated by the
// argument parser collaborator (out of scope here).
type Options struct {
	Bridged         []string // interface names, or a single "list"
	Softnet         bool
	SoftnetAllow    []string
	SoftnetExpose   []string
	Host            bool
	Graphics        bool
	NoGraphics      bool
	CapturesSystemKeys bool
	Vnc             bool
	VncExperimental bool
	Nested          bool
	NestedSupported bool // host capability, supplied by the caller
}

// ListRequested reports whether the caller asked for `--net-bridged=list`.
func (o Options) ListRequested() bool {
	return len(o.Bridged) == 1 && o.Bridged[0] == "list"
}

// Validate runs the fail-fast validation pass (spec §4.5) and, when
// possible, produces a NetworkPlan. ListRequested callers should check that
// first and never reach Validate's VM-starting path.
func Validate(o Options) (*vmtypes.NetworkPlan, error) {
	hasBridged := len(o.Bridged) > 0 && !o.ListRequested()
	isolatedRequested := o.Softnet || len(o.SoftnetAllow) > 0 || len(o.SoftnetExpose) > 0

	exclusiveCount := 0
	for _, set := range []bool{hasBridged, isolatedRequested, o.Host} {
		if set {
			exclusiveCount++
		}
	}
	if exclusiveCount > 1 {
		return nil, vmerr.New(vmerr.InvalidOptions, "--net-bridged, --net-softnet, and --net-host are mutually exclusive")
	}

	if o.Graphics && o.NoGraphics {
		return nil, vmerr.New(vmerr.InvalidOptions, "--graphics and --no-graphics are mutually exclusive")
	}

	if o.CapturesSystemKeys {
		if o.NoGraphics || o.Vnc || o.VncExperimental {
			return nil, vmerr.New(vmerr.InvalidOptions, "--captures-system-keys requires the native UI: incompatible with --no-graphics, --vnc, --vnc-experimental")
		}
	}

	if o.Nested && !o.NestedSupported {
		return nil, vmerr.New(vmerr.Unsupported, "nested virtualization is not supported on this host")
	}

	plan := &vmtypes.NetworkPlan{}
	switch {
	case hasBridged:
		plan.Kind = vmtypes.NetworkBridged
		plan.Interfaces = o.Bridged
	case isolatedRequested:
		plan.Kind = vmtypes.NetworkIsolatedFilter
		plan.ExtraArgs = append(append([]string{}, withPrefix("--allow=", o.SoftnetAllow)...), withPrefix("--expose=", o.SoftnetExpose)...)
	case o.Host:
		plan.Kind = vmtypes.NetworkHostOnly
	default:
		plan.Kind = vmtypes.NetworkSharedNAT
	}

	return plan, nil
}

func withPrefix(prefix string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = prefix + v
	}
	return out
}

// ListBridgeable enumerates host network interfaces suitable for bridging:
// up, with a hardware address.
func ListBridgeable() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, i := range ifaces {
		if i.Flags&net.FlagUp == 0 {
			continue
		}
		if len(i.HardwareAddr) == 0 {
			continue
		}
		names = append(names, i.Name)
	}
	return names, nil
}

// ParseArgFile reads a YAML list of strings from path, supporting the
// --net-softnet-allow/--net-softnet-expose "@file" convention.
func ParseArgFile(path string) ([]string, error) {
	path = strings.TrimPrefix(path, "@")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out []string
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, vmerr.Wrap(vmerr.InvalidOptions, err, "parse %s", path)
	}
	return out, nil
}
