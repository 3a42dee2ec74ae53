// Package procinfo resolves process ids to executable names.
package procinfo

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrUnknownProcess is returned for pids that cannot be resolved.
var ErrUnknownProcess = errors.New("unknown process")

// LookupFunc resolves one pid without caching.
type LookupFunc func(pid int32) (string, error)

// Resolver caches pid to name lookups. Pids are reused by the OS, so Forget
// should be called when a process is known to have exited.
type Resolver struct {
	lookup LookupFunc

	mu    sync.Mutex
	cache map[int32]string
}

// New returns a resolver backed by the process table of the host.
func New() *Resolver {
	return NewWithLookup(systemLookup)
}

// NewWithLookup returns a resolver with a custom lookup.
func NewWithLookup(lookup LookupFunc) *Resolver {
	return &Resolver{lookup: lookup, cache: make(map[int32]string)}
}

// Name returns the executable name of pid.
func (r *Resolver) Name(pid int32) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("%w: pid %d", ErrUnknownProcess, pid)
	}
	r.mu.Lock()
	name, ok := r.cache[pid]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	name, err := r.lookup(pid)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.cache[pid] = name
	r.mu.Unlock()
	return name, nil
}

// Forget drops a cached pid.
func (r *Resolver) Forget(pid int32) {
	r.mu.Lock()
	delete(r.cache, pid)
	r.mu.Unlock()
}

func systemLookup(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", fmt.Errorf("%w: pid %d: %v", ErrUnknownProcess, pid, err)
	}
	name, err := proc.Name()
	if err != nil {
		return "", fmt.Errorf("%w: pid %d: %v", ErrUnknownProcess, pid, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: pid %d has no name", ErrUnknownProcess, pid)
	}
	return name, nil
}
