// Package state stores per-account and global values in memory or on disk,
// keyed by Definitions that also describe when each value is cleared.
package state

import (
	"fmt"
	"sort"
	"sync"
)

// Location selects the backing store for a Definition.
type Location int

const (
	// Memory values vanish when the process exits.
	Memory Location = iota
	// Disk values live in the sqlite state database.
	Disk
)

func (l Location) String() string {
	switch l {
	case Memory:
		return "memory"
	case Disk:
		return "disk"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// Clear is a bitmask of the events that remove a value.
type Clear uint8

const (
	ClearOnLock Clear = 1 << iota
	ClearOnLogout
)

// Definition names one piece of state.
type Definition struct {
	Name     string
	Location Location
	Clear    Clear
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Definition{}
)

// Define registers a Definition and returns it. Names are unique across the
// process; redefining a name with different settings panics.
func Define(name string, loc Location, clear Clear) Definition {
	d := Definition{Name: name, Location: loc, Clear: clear}
	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, ok := registry[name]; ok && prev != d {
		panic(fmt.Sprintf("state: conflicting definitions for %q", name))
	}
	registry[name] = d
	return d
}

// definitionsClearedBy returns registered definitions whose mask includes ev.
func definitionsClearedBy(ev Clear) []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Definition, 0, len(registry))
	for _, d := range registry {
		if d.Clear&ev != 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
