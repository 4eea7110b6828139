// Package diskspec parses one --disk argument into a structured attachment
// plan.
package diskspec

import (
	"net/url"
	"strings"

	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

var nbdSchemes = map[string]bool{
	"nbd":      true,
	"nbds":     true,
	"nbd+unix": true,
	"nbds+unix": true,
}

var optionTokens = map[string]bool{
	"ro": true,
}

// Parse parses raw per the grammar `<location>[:<opt>[,<opt>]*]`.
//
// Option tokens are recognized on the last colon-separated segment only; if
// that segment contains no recognized option token, the whole string is the
// location (so colons inside paths or URLs are preserved).
func Parse(raw string) (*vmtypes.DiskPlan, error) {
	location, optsRaw := splitOptions(raw)

	plan := &vmtypes.DiskPlan{
		Location:    location,
		SyncMode:    vmtypes.SyncFull,
		CachingMode: vmtypes.CachingAutomatic,
	}

	if optsRaw != "" {
		for _, opt := range strings.Split(optsRaw, ",") {
			if err := applyOption(plan, opt); err != nil {
				return nil, err
			}
		}
	}

	if strings.HasSuffix(strings.ToLower(location), "-amd64.iso") {
		return nil, vmerr.New(vmerr.ArchMismatch, "disk media %q looks like amd64 media on an arm64 host", location)
	}

	plan.Kind = classify(location)

	return plan, nil
}

// splitOptions splits raw into (location, options) using the "last segment
// is options iff it contains a recognized option token" heuristic.
func splitOptions(raw string) (location, opts string) {
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return raw, ""
	}

	candidate := raw[idx+1:]
	if looksLikeOptions(candidate) {
		return raw[:idx], candidate
	}
	return raw, ""
}

func looksLikeOptions(segment string) bool {
	for _, tok := range strings.Split(segment, ",") {
		name, _, _ := strings.Cut(tok, "=")
		if optionTokens[name] || name == "sync" || name == "caching" {
			return true
		}
	}
	return false
}

func applyOption(plan *vmtypes.DiskPlan, opt string) error {
	name, value, hasValue := strings.Cut(opt, "=")
	switch name {
	case "ro":
		plan.ReadOnly = true
	case "sync":
		if !hasValue {
			return vmerr.New(vmerr.InvalidSpec, "sync option requires a value")
		}
		switch vmtypes.SyncMode(value) {
		case vmtypes.SyncNone, vmtypes.SyncFsync, vmtypes.SyncFull:
			plan.SyncMode = vmtypes.SyncMode(value)
		default:
			return vmerr.New(vmerr.InvalidSpec, "unknown sync mode %q", value)
		}
	case "caching":
		if !hasValue {
			return vmerr.New(vmerr.InvalidSpec, "caching option requires a value")
		}
		switch vmtypes.CachingMode(value) {
		case vmtypes.CachingAutomatic, vmtypes.CachingCached, vmtypes.CachingUncached:
			plan.CachingMode = vmtypes.CachingMode(value)
		default:
			return vmerr.New(vmerr.InvalidSpec, "unknown caching mode %q", value)
		}
	default:
		return vmerr.New(vmerr.InvalidSpec, "unknown disk option %q", opt)
	}
	return nil
}

// classify determines the disk attachment kind, in the order: network block
// device (by URL scheme), block device (by stat), remote image reference
// (by parseable-ref shape), else local image.
func classify(location string) vmtypes.DiskKind {
	if u, err := url.Parse(location); err == nil && nbdSchemes[u.Scheme] {
		return vmtypes.DiskNetworkBlockDevice
	}

	if isBlockSpecial(location) {
		return vmtypes.DiskBlockDevice
	}

	if looksLikeImageRef(location) {
		return vmtypes.DiskRemoteImageRef
	}

	return vmtypes.DiskImage
}

// looksLikeImageRef reports whether location parses as an OCI-style image
// reference: host[:port]/path[:tag]. Local paths (absolute, relative, or
// containing no slash-separated registry host) are excluded.
func looksLikeImageRef(location string) bool {
	if strings.HasPrefix(location, "/") || strings.HasPrefix(location, "./") || strings.HasPrefix(location, "../") {
		return false
	}
	if !strings.Contains(location, "/") {
		return false
	}
	first, rest, ok := strings.Cut(location, "/")
	if !ok || rest == "" {
		return false
	}
	// a registry host segment contains a dot, a colon (port), or is
	// "localhost" -- otherwise this looks like a bare relative path.
	return strings.Contains(first, ".") || strings.Contains(first, ":") || first == "localhost"
}
