// Package vmindex enumerates local VM directories and answers collision
// queries ("is any peer VM running with MAC M?") for the Lifecycle
// Controller.
package vmindex

import (
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/orbstack/runvm/vmdir"
	"github.com/orbstack/runvm/vmtypes"
)

// Entry summarizes one VM directory's observable state.
type Entry struct {
	Name       string
	Running    bool
	Suspended  bool
	MACAddress string
}

// Index lists and caches VM directory configs under a home directory.
type Index struct {
	homeDir string

	mu    sync.Mutex
	cache *lru.Cache[string, cached]
}

type cached struct {
	mtime int64
	cfg   *vmtypes.VmConfig
}

// New creates an Index rooted at homeDir, caching up to cacheSize parsed
// configs to avoid re-reading config.json on every peer during collision
// scans.
func New(homeDir string, cacheSize int) (*Index, error) {
	c, err := lru.New[string, cached](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Index{homeDir: homeDir, cache: c}, nil
}

// List enumerates every VM directory under the home directory.
func (idx *Index) List() ([]Entry, error) {
	entries, err := os.ReadDir(idx.homeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d := vmdir.Open(idx.homeDir+"/"+e.Name(), e.Name())
		cfg, err := idx.readConfigCached(d)
		if err != nil {
			continue // not a valid VM directory; skip
		}

		running, err := d.Running()
		if err != nil {
			continue
		}

		out = append(out, Entry{
			Name:       d.Name,
			Running:    running,
			Suspended:  d.Suspended(),
			MACAddress: cfg.MACAddress,
		})
	}
	return out, nil
}

// RunningPeerNames lists the names of currently running VMs, for enriching
// VirtualMachineLimitExceeded errors. Best-effort: any enumeration failure
// yields an empty (not error) result, since this is only ever used to
// decorate a message.
func (idx *Index) RunningPeerNames() []string {
	entries, err := idx.List()
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.Running {
			names = append(names, e.Name)
		}
	}
	return names
}

// MACInUseByRunningPeer reports whether a running VM other than excludeName
// already holds mac.
func (idx *Index) MACInUseByRunningPeer(mac, excludeName string) (bool, error) {
	entries, err := idx.List()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name == excludeName {
			continue
		}
		if e.Running && e.MACAddress == mac {
			return true, nil
		}
	}
	return false, nil
}

func (idx *Index) readConfigCached(d *vmdir.Dir) (*vmtypes.VmConfig, error) {
	st, err := os.Stat(d.ConfigPath())
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	if c, ok := idx.cache.Get(d.Path); ok && c.mtime == st.ModTime().UnixNano() {
		idx.mu.Unlock()
		return c.cfg, nil
	}
	idx.mu.Unlock()

	cfg, err := d.ReadConfig()
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	idx.cache.Add(d.Path, cached{mtime: st.ModTime().UnixNano(), cfg: cfg})
	idx.mu.Unlock()

	return cfg, nil
}
