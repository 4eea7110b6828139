// Package dirshare parses one --dir argument into a structured directory
// share plan.
package dirshare

import (
	"strings"

	"github.com/orbstack/runvm/vmerr"
	"github.com/orbstack/runvm/vmtypes"
)

// Parse parses raw per the grammar `[<name>:]<source>[:<opt>[,<opt>]*]`.
//
// If source begins with https://, it is a remote archive URL and any name
// prefix is ignored (callers decide what that means; this parser only
// records it). http:// is deliberately not recognized as a remote archive —
// it is treated as an ordinary local path rather than trusting an
// unauthenticated transport.
func Parse(raw string) (*vmtypes.DirSharePlan, error) {
	location, optsRaw := splitOptions(raw)

	plan := &vmtypes.DirSharePlan{
		MountTag: vmtypes.DefaultMountTag,
	}

	name, source := splitName(location)
	plan.Name = name
	plan.Source = source

	if isRemoteArchive(source) {
		plan.Name = ""
	}

	if optsRaw != "" {
		for _, opt := range strings.Split(optsRaw, ",") {
			if err := applyOption(plan, opt); err != nil {
				return nil, err
			}
		}
	}

	return plan, nil
}

func isRemoteArchive(source string) bool {
	return strings.HasPrefix(source, "https://")
}

// splitOptions mirrors diskspec's heuristic: the last colon segment is
// treated as options only if it contains a recognized option token.
func splitOptions(raw string) (rest, opts string) {
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
		if name == "ro" || name == "tag" {
			return true
		}
	}
	return false
}

// splitName extracts an optional "<name>:" prefix from location. A prefix
// is only taken as a name if what follows it isn't itself the start of a
// URL scheme (so "https://host/path" isn't misread as name="https").
func splitName(location string) (name, source string) {
	idx := strings.Index(location, ":")
	if idx < 0 {
		return "", location
	}
	if strings.HasPrefix(location[idx:], "://") {
		return "", location
	}
	return location[:idx], location[idx+1:]
}

func applyOption(plan *vmtypes.DirSharePlan, opt string) error {
	name, value, hasValue := strings.Cut(opt, "=")
	switch name {
	case "ro":
		plan.ReadOnly = true
	case "tag":
		if !hasValue || value == "" {
			return vmerr.New(vmerr.InvalidSpec, "tag option requires a value")
		}
		plan.MountTag = value
	default:
		return vmerr.New(vmerr.InvalidSpec, "unknown dir share option %q", opt)
	}
	return nil
}

// ValidateTags enforces: for N > 1 shares sharing a mount tag, every share
// under that tag must have a name (a single unnamed share per tag is fine).
func ValidateTags(plans []*vmtypes.DirSharePlan) error {
	byTag := make(map[string][]*vmtypes.DirSharePlan)
	for _, p := range plans {
		byTag[p.MountTag] = append(byTag[p.MountTag], p)
	}

	for tag, group := range byTag {
		if len(group) <= 1 {
			continue
		}
		for _, p := range group {
			if p.Name == "" {
				return vmerr.New(vmerr.InvalidSpec, "mount tag %q has multiple shares; every share sharing a tag must have a name", tag)
			}
		}
	}
	return nil
}
