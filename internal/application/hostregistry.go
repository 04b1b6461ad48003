package application

import (
	"fmt"
	"sync"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// HostRegistry resolves the driven.Host adapter for a platform. Adapters can
// be swapped at runtime, for example after the API base URL changes, without
// rebuilding the services that hold the registry.
type HostRegistry struct {
	mu    sync.RWMutex
	hosts map[model.Platform]driven.Host
}

// NewHostRegistry creates a registry holding the given hosts, keyed by their Platform.
func NewHostRegistry(hosts ...driven.Host) *HostRegistry {
	r := &HostRegistry{hosts: make(map[model.Platform]driven.Host, len(hosts))}
	for _, h := range hosts {
		r.hosts[h.Platform()] = h
	}
	return r
}

// Get returns the host for platform. Returns ErrInvalidInput for a platform
// with no registered adapter.
func (r *HostRegistry) Get(platform model.Platform) (driven.Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hosts[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for platform %q", driven.ErrInvalidInput, platform)
	}
	return h, nil
}

// Replace installs host for its platform, replacing any previous adapter.
// The next call to Get observes the new value.
func (r *HostRegistry) Replace(host driven.Host) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[host.Platform()] = host
}

// github and gitee are shorthands for services that always need both sides.
func (r *HostRegistry) github() (driven.Host, error) {
	return r.Get(model.PlatformGitHub)
}

func (r *HostRegistry) gitee() (driven.Host, error) {
	return r.Get(model.PlatformGitee)
}
