package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/homewatch/internal/domain"
	"github.com/hamed0406/homewatch/internal/probe"
	"github.com/hamed0406/homewatch/internal/repo"
)

// Monitor runs one loop goroutine per registry target. The set of loops is
// fixed at Start.
type Monitor struct {
	Logger   *zap.Logger
	Store    repo.StatusStore
	Pinger   probe.Pinger
	Checker  probe.Checker
	DNS      *probe.DNSChecker
	Registry domain.Registry

	DeviceInterval time.Duration
	DomainInterval time.Duration

	wg sync.WaitGroup
}

func NewMonitor(
	logger *zap.Logger,
	store repo.StatusStore,
	pinger probe.Pinger,
	checker probe.Checker,
	reg domain.Registry,
) *Monitor {
	return &Monitor{
		Logger:         logger,
		Store:          store,
		Pinger:         pinger,
		Checker:        checker,
		Registry:       reg,
		DeviceInterval: DeviceInterval,
		DomainInterval: DomainInterval,
	}
}

// Start spawns every loop and returns immediately. Loops stop when ctx is
// cancelled; use Wait to block until they have all returned.
func (m *Monitor) Start(ctx context.Context) error {
	devices := make([]*DeviceLoop, 0, len(m.Registry.Devices))
	for _, d := range m.Registry.Devices {
		l, err := NewDeviceLoop(m.Logger, m.Store, m.Pinger, d)
		if err != nil {
			return err
		}
		l.Interval = m.DeviceInterval
		devices = append(devices, l)
	}

	for _, l := range devices {
		m.wg.Add(1)
		go func(l *DeviceLoop) {
			defer m.wg.Done()
			l.Run(ctx)
		}(l)
	}
	for _, d := range m.Registry.Domains {
		l := NewDomainLoop(m.Logger, m.Store, m.Checker, d)
		l.Interval = m.DomainInterval
		l.DNS = m.DNS
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			l.Run(ctx)
		}()
	}

	m.Logger.Info("monitor_started",
		zap.Int("devices", len(m.Registry.Devices)),
		zap.Int("domains", len(m.Registry.Domains)),
	)
	return nil
}

// Wait blocks until every loop started by Start has returned.
func (m *Monitor) Wait() {
	m.wg.Wait()
}
