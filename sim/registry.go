package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrBackendNotInstalled is returned by Open when no backend was registered
// under the requested name.
var ErrBackendNotInstalled = errors.New("simulation backend not installed")

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// Register makes a backend available by name. It panics if called twice
// with the same name or with a nil backend, like database/sql drivers.
func Register(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if b == nil {
		panic("sim: Register backend is nil")
	}
	if _, dup := backends[name]; dup {
		panic("sim: Register called twice for backend " + name)
	}
	backends[name] = b
}

// Open returns the backend registered under name.
func Open(name string) (Backend, error) {
	backendsMu.RLock()
	b, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (HINT: link it into the binary with a blank import, e.g. import _ \"github.com/zeu5/robot-goal-env/sim/kinematic\"; registered: %v)",
			ErrBackendNotInstalled, name, Backends())
	}
	return b, nil
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
