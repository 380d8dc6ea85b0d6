package core

import (
	"fmt"
	"sync"
)

// HostRegistry stores the simulation's hosts by address and keeps their
// creation order, which is the order hosts are updated in each tick.
type HostRegistry struct {
	mu sync.RWMutex

	hosts  map[int]*Host
	byName map[string]*Host
	order  []*Host
}

// NewHostRegistry constructs an empty registry.
func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		hosts:  make(map[int]*Host),
		byName: make(map[string]*Host),
	}
}

// AddHost registers h. Addresses and names must be unique.
func (hr *HostRegistry) AddHost(h *Host) error {
	if h == nil {
		return fmt.Errorf("%w: nil host", ErrHostNotFound)
	}
	hr.mu.Lock()
	defer hr.mu.Unlock()

	if _, exists := hr.hosts[h.Address]; exists {
		return fmt.Errorf("%w: address %d", ErrHostExists, h.Address)
	}
	if _, exists := hr.byName[h.Name]; exists {
		return fmt.Errorf("%w: name %q", ErrHostExists, h.Name)
	}
	hr.hosts[h.Address] = h
	hr.byName[h.Name] = h
	hr.order = append(hr.order, h)
	return nil
}

// Host returns the host with the given address.
func (hr *HostRegistry) Host(address int) (*Host, error) {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	h, ok := hr.hosts[address]
	if !ok {
		return nil, fmt.Errorf("%w: address %d", ErrHostNotFound, address)
	}
	return h, nil
}

// HostByName returns the host with the given display name.
func (hr *HostRegistry) HostByName(name string) (*Host, error) {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	h, ok := hr.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHostNotFound, name)
	}
	return h, nil
}

// Hosts returns a snapshot of all hosts in creation order.
func (hr *HostRegistry) Hosts() []*Host {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return append([]*Host(nil), hr.order...)
}

// Len returns the number of registered hosts.
func (hr *HostRegistry) Len() int {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return len(hr.order)
}
