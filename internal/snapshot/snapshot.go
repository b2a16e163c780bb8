// Package snapshot turns the unordered status table into the sorted view
// served by the HTTP API.
package snapshot

import (
	"context"
	"sort"

	"github.com/hamed0406/homewatch/internal/domain"
	"github.com/hamed0406/homewatch/internal/repo"
)

type Service struct {
	Store          repo.StatusStore
	IncludeDomains bool
}

// New returns a service over store. Domains are reported only when reg
// configures at least one.
func New(store repo.StatusStore, reg domain.Registry) *Service {
	return &Service{Store: store, IncludeDomains: len(reg.Domains) > 0}
}

// Snapshot copies the table and sorts both lists by name. Sorting happens
// after the store lock is released.
func (s *Service) Snapshot(ctx context.Context) domain.Snapshot {
	devs, doms := s.Store.Snapshot(ctx)
	if devs == nil {
		devs = []domain.DeviceStatus{}
	}
	if doms == nil {
		doms = []domain.DomainStatus{}
	}
	sort.Slice(devs, func(i, j int) bool { return devs[i].Name < devs[j].Name })
	sort.Slice(doms, func(i, j int) bool { return doms[i].Domain < doms[j].Domain })

	return domain.Snapshot{
		Devices:        devs,
		Domains:        doms,
		IncludeDomains: s.IncludeDomains,
	}
}
