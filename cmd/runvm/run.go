package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orbstack/runvm/chrome"
	"github.com/orbstack/runvm/conf"
	"github.com/orbstack/runvm/dirshare"
	"github.com/orbstack/runvm/diskspec"
	"github.com/orbstack/runvm/imageclone"
	"github.com/orbstack/runvm/lifecycle"
	"github.com/orbstack/runvm/netselect"
	"github.com/orbstack/runvm/telemetry"
	"github.com/orbstack/runvm/vmdir"
	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmindex"
	"github.com/orbstack/runvm/vmtypes"
)

const indexCacheSize = 64

type runFlags struct {
	noGraphics         bool
	serial             bool
	serialPath         string
	graphics           bool
	noAudio            bool
	noClipboard        bool
	recovery           bool
	vnc                bool
	vncExperimental    bool
	disks              []string
	rosetta            string
	dirs               []string
	nested             bool
	netBridged         []string
	netSoftnet         bool
	netSoftnetAllow    []string
	netSoftnetExpose   []string
	netHost            bool
	rootDiskOpts       string
	suspendable        bool
	capturesSystemKeys bool
	noTrackpad         bool
	filterHelperPath   string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Start a VM by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runMain(args[0], f)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				telemetry.Report(err)
			}
			os.Exit(code)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.noGraphics, "no-graphics", false, "run without a graphical display")
	flags.BoolVar(&f.serial, "serial", false, "attach a serial console")
	flags.StringVar(&f.serialPath, "serial-path", "", "externally-provided path for the serial console")
	flags.BoolVar(&f.graphics, "graphics", false, "force a graphical display (native UI)")
	flags.BoolVar(&f.noAudio, "no-audio", false, "disable the audio device")
	flags.BoolVar(&f.noClipboard, "no-clipboard", false, "disable clipboard sharing")
	flags.BoolVar(&f.recovery, "recovery", false, "boot into recovery mode (macOS guests)")
	flags.BoolVar(&f.vnc, "vnc", false, "enable the remote-display server")
	flags.BoolVar(&f.vncExperimental, "vnc-experimental", false, "enable the experimental remote-display server")
	flags.StringArrayVar(&f.disks, "disk", nil, "attach an additional disk (repeatable)")
	flags.StringVar(&f.rosetta, "rosetta", "", "mount tag for Rosetta translation (Linux guests)")
	flags.StringArrayVar(&f.dirs, "dir", nil, "share a host directory (repeatable)")
	flags.BoolVar(&f.nested, "nested", false, "enable nested virtualization (Linux guests)")
	flags.StringArrayVar(&f.netBridged, "net-bridged", nil, "bridge to a host interface, or \"list\" (repeatable)")
	flags.BoolVar(&f.netSoftnet, "net-softnet", false, "use the isolating user-mode network filter")
	flags.StringArrayVar(&f.netSoftnetAllow, "net-softnet-allow", nil, "CIDRs to allow through the network filter")
	flags.StringArrayVar(&f.netSoftnetExpose, "net-softnet-expose", nil, "port specs to expose through the network filter")
	flags.BoolVar(&f.netHost, "net-host", false, "use host-only networking")
	flags.StringVar(&f.rootDiskOpts, "root-disk-opts", "", "DiskSpec options for the root disk (accepted but not applied: the root disk always attaches read-write, cached, with fsync sync)")
	flags.BoolVar(&f.suspendable, "suspendable", false, "allow suspend-to-disk (SIGUSR1)")
	flags.BoolVar(&f.capturesSystemKeys, "captures-system-keys", false, "let the native UI capture system key combinations")
	flags.BoolVar(&f.noTrackpad, "no-trackpad", false, "use a USB pointing device instead of the trackpad")
	flags.StringVar(&f.filterHelperPath, "filter-helper-path", "", "path to the isolating network filter helper binary")

	return cmd
}

func runMain(name string, f runFlags) (exitCode int, err error) {
	if f.graphics && f.noGraphics {
		return 2, vmerr.New(vmerr.InvalidOptions, "--graphics and --no-graphics are mutually exclusive")
	}

	// Scoped-release discipline (spec §5): every resource acquired in this
	// function -- cloned remote-image-ref disk directories chief among them
	// -- registers a release action here, run in reverse order on every
	// return path, whether the VM ever started or not.
	var releases []func()
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()

	home := conf.HomeDir()
	dir := vmdir.Open(conf.VMDir(name), name)
	if !dir.Exists() {
		return 1, vmerr.New(vmerr.VMNotFound, "no such VM %q", name)
	}

	index, err := vmindex.New(home, indexCacheSize)
	if err != nil {
		return 1, err
	}

	ctrl := lifecycle.New(dir, index)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := ctrl.Configure(ctx, home)
	if err != nil {
		return exitCodeFor(err), err
	}

	rc, netPlan, diskPaths, err := buildRunContext(name, cfg, f, &releases)
	if err != nil {
		return exitCodeFor(err), err
	}

	var helper *netselect.FilterHelper
	if netPlan.Kind == vmtypes.NetworkIsolatedFilter || netPlan.Kind == vmtypes.NetworkHostOnly {
		if f.filterHelperPath == "" {
			return 1, vmerr.New(vmerr.InvalidOptions, "--net-softnet/--net-host require --filter-helper-path")
		}
		helper, err = netselect.SpawnFilterHelper(f.filterHelperPath, cfg.MACAddress, netPlan.ExtraArgs, rc.Graphics)
		if err != nil {
			return 1, err
		}
		defer helper.Close()
	}

	netAttach, err := netselect.BuildAttachment(netPlan, cfg.MACAddress, helper)
	if err != nil {
		return 1, err
	}

	mode := chrome.SelectMode(rc)
	if mode == chrome.ModeRemoteDisplay {
		announceRemoteDisplay(netPlan)
	}

	return ctrl.Start(ctx, cfg, rc, dir.DiskPath(), diskPaths, netAttach)
}

// buildRunContext turns CLI flags into a RunContext plus the resolved disk
// paths Device Assembly needs alongside it. Any remote-image-ref disk's
// clone-release action is appended to releases.
func buildRunContext(name string, cfg *vmtypes.VmConfig, f runFlags, releases *[]func()) (*vmtypes.RunContext, *vmtypes.NetworkPlan, []string, error) {
	allow, err := expandArgFileLists(f.netSoftnetAllow)
	if err != nil {
		return nil, nil, nil, err
	}
	expose, err := expandArgFileLists(f.netSoftnetExpose)
	if err != nil {
		return nil, nil, nil, err
	}

	netOpts := netselect.Options{
		Bridged:            f.netBridged,
		Softnet:            f.netSoftnet,
		SoftnetAllow:       allow,
		SoftnetExpose:      expose,
		Host:               f.netHost,
		Graphics:           f.graphics,
		NoGraphics:         f.noGraphics,
		CapturesSystemKeys: f.capturesSystemKeys,
		Vnc:                f.vnc,
		VncExperimental:    f.vncExperimental,
		Nested:             f.nested,
		NestedSupported:    true,
	}
	if netOpts.ListRequested() {
		ifaces, err := netselect.ListBridgeable()
		if err != nil {
			return nil, nil, nil, err
		}
		fmt.Println(strings.Join(ifaces, "\n"))
		os.Exit(0)
	}

	netPlan, err := netselect.Validate(netOpts)
	if err != nil {
		return nil, nil, nil, err
	}

	var diskPlans []*vmtypes.DiskPlan
	var diskPaths []string
	for _, spec := range f.disks {
		plan, err := diskspec.Parse(spec)
		if err != nil {
			return nil, nil, nil, err
		}
		path, err := resolveDiskPath(plan, releases)
		if err != nil {
			return nil, nil, nil, err
		}
		diskPlans = append(diskPlans, plan)
		diskPaths = append(diskPaths, path)
	}

	var dirPlans []*vmtypes.DirSharePlan
	for _, spec := range f.dirs {
		plan, err := dirshare.Parse(spec)
		if err != nil {
			return nil, nil, nil, err
		}
		dirPlans = append(dirPlans, plan)
	}
	if err := dirshare.ValidateTags(dirPlans); err != nil {
		return nil, nil, nil, err
	}

	graphics := !f.noGraphics
	rc := &vmtypes.RunContext{
		Name:        name,
		NetworkPlan: *netPlan,
		DiskPlans:   flattenDiskPlans(diskPlans),
		SerialPlan: vmtypes.SerialPlan{
			Enabled:      f.serial || f.serialPath != "",
			ExternalPath: f.serialPath,
		},
		Suspendable:        f.suspendable,
		Nested:             f.nested,
		Audio:              !f.noAudio,
		Clipboard:          !f.noClipboard,
		RootDiskOptions:    f.rootDiskOpts,
		Graphics:           graphics,
		VncPlan:            vmtypes.VncPlan{Enabled: f.vnc || f.vncExperimental, Experimental: f.vncExperimental},
		Recovery:           f.recovery,
		CapturesSystemKeys: f.capturesSystemKeys,
		NoTrackpad:         f.noTrackpad,
		Rosetta:            f.rosetta,
	}
	for _, p := range dirPlans {
		rc.DirSharePlans = append(rc.DirSharePlans, *p)
	}

	return rc, netPlan, diskPaths, nil
}

// expandArgFileLists applies the "@file" convention to each value that uses
// it, passing plain values through unchanged.
func expandArgFileLists(values []string) ([]string, error) {
	var out []string
	for _, v := range values {
		if !strings.HasPrefix(v, "@") {
			out = append(out, v)
			continue
		}
		expanded, err := netselect.ParseArgFile(v)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func flattenDiskPlans(plans []*vmtypes.DiskPlan) []vmtypes.DiskPlan {
	out := make([]vmtypes.DiskPlan, len(plans))
	for i, p := range plans {
		out[i] = *p
	}
	return out
}

// resolveDiskPath returns the filesystem path Device Assembly should open
// for plan. A remote-image-ref location is cloned into an engine-owned
// temporary directory first (spec §4.6); the clone is the attachment
// target, and its release (unlink-on-exit) is appended to releases.
// Network-block-device locations require a host-side NBD client capability
// this engine build does not link against (Code-Hex/vz/v3 has no native
// NBD storage attachment type), so they fail Unsupported here rather than
// opening their URL as if it were a local path.
func resolveDiskPath(plan *vmtypes.DiskPlan, releases *[]func()) (string, error) {
	switch plan.Kind {
	case vmtypes.DiskImage, vmtypes.DiskBlockDevice:
		return plan.Location, nil
	case vmtypes.DiskRemoteImageRef:
		staged, err := imageclone.Clone(imageclone.UnavailableFetcher{}, conf.RunDir(), plan.Location)
		if err != nil {
			return "", err
		}
		*releases = append(*releases, staged.Release)
		return staged.Path, nil
	default:
		return "", vmerr.New(vmerr.Unsupported, "disk location %q requires a network-block-device client this engine build does not include", plan.Location)
	}
}

// announceRemoteDisplay prints the remote-display access URL, rewriting the
// host component to the bridged interface's address when the VM's network
// is bridged -- otherwise a peer on that interface can't reach it.
func announceRemoteDisplay(netPlan *vmtypes.NetworkPlan) {
	ep := chrome.Endpoint{Host: "127.0.0.1", Port: 5900}
	bridged := netPlan.Kind == vmtypes.NetworkBridged

	var bridgedAddr string
	if bridged && len(netPlan.Interfaces) > 0 {
		if iface, err := net.InterfaceByName(netPlan.Interfaces[0]); err == nil {
			if addrs, err := iface.Addrs(); err == nil {
				for _, a := range addrs {
					if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.To4() != nil {
						bridgedAddr = ipNet.IP.String()
						break
					}
				}
			}
		}
	}

	chrome.PrintURL(chrome.AccessURL(ep, bridged, bridgedAddr))
}

func exitCodeFor(err error) int {
	if vmerr.Is(err, vmerr.InvalidOptions) || vmerr.Is(err, vmerr.InvalidSpec) {
		return 2
	}
	return 1
}
