package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hamed0406/homewatch/internal/domain"
	"github.com/hamed0406/homewatch/internal/repo"
)

// Store is the in-process status table. One RWMutex guards both maps so a
// snapshot never mixes two points in time.
type Store struct {
	mu      sync.RWMutex
	devices map[string]domain.DeviceStatus
	domains map[string]domain.DomainStatus

	// allowed names; nil means accept anything
	knownDevices map[string]struct{}
	knownDomains map[string]struct{}
}

// New builds a store that only accepts the targets in reg. An empty
// registry yields a store that accepts any name.
func New(reg domain.Registry) *Store {
	s := &Store{
		devices: make(map[string]domain.DeviceStatus, len(reg.Devices)),
		domains: make(map[string]domain.DomainStatus, len(reg.Domains)),
	}
	if reg.Len() > 0 {
		s.knownDevices = make(map[string]struct{}, len(reg.Devices))
		for _, d := range reg.Devices {
			s.knownDevices[d.Name] = struct{}{}
		}
		s.knownDomains = make(map[string]struct{}, len(reg.Domains))
		for _, d := range reg.Domains {
			s.knownDomains[d.Name] = struct{}{}
		}
	}
	return s
}

func (m *Store) PutDevice(ctx context.Context, st domain.DeviceStatus) error {
	if m.knownDevices != nil {
		if _, ok := m.knownDevices[st.Name]; !ok {
			return fmt.Errorf("device %q: %w", st.Name, repo.ErrUnknownTarget)
		}
	}
	if st.Latency != nil {
		v := *st.Latency
		st.Latency = &v
	}
	m.mu.Lock()
	m.devices[st.Name] = st
	m.mu.Unlock()
	return nil
}

func (m *Store) PutDomain(ctx context.Context, st domain.DomainStatus) error {
	if m.knownDomains != nil {
		if _, ok := m.knownDomains[st.Domain]; !ok {
			return fmt.Errorf("domain %q: %w", st.Domain, repo.ErrUnknownTarget)
		}
	}
	m.mu.Lock()
	m.domains[st.Domain] = st
	m.mu.Unlock()
	return nil
}

func (m *Store) Snapshot(ctx context.Context) ([]domain.DeviceStatus, []domain.DomainStatus) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devs := make([]domain.DeviceStatus, 0, len(m.devices))
	for _, d := range m.devices {
		devs = append(devs, d)
	}
	doms := make([]domain.DomainStatus, 0, len(m.domains))
	for _, d := range m.domains {
		doms = append(doms, d)
	}
	return devs, doms
}
