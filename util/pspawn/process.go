package pspawn

import "os"

// StartProcess spawns exe the plain way. The teacher's darwin build uses a
// posix_spawn-based variant to avoid fork() stalls when the parent has huge
// hv_vm_allocate mappings; this engine's parent process never maps guest
// memory itself (Code-Hex/vz/v3 does that inside the Virtualization.framework
// server process), so that concern doesn't apply here.
func StartProcess(exe string, argv []string, attr *os.ProcAttr) (*os.Process, error) {
	return os.StartProcess(exe, argv, attr)
}
