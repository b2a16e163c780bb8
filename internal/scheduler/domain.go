package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/homewatch/internal/domain"
	"github.com/hamed0406/homewatch/internal/probe"
	"github.com/hamed0406/homewatch/internal/repo"
)

// DomainInterval is the pause between two requests to the same domain.
const DomainInterval = 20 * time.Second

// DomainLoop probes one domain forever with a single GET per iteration.
type DomainLoop struct {
	Logger   *zap.Logger
	Store    repo.StatusStore
	Checker  probe.Checker
	Domain   domain.Domain
	Interval time.Duration
	Timeout  time.Duration

	// DNS, when set, explains why a domain went down. Diagnostic only.
	DNS *probe.DNSChecker

	state reachability
}

func NewDomainLoop(logger *zap.Logger, store repo.StatusStore, checker probe.Checker, d domain.Domain) *DomainLoop {
	return &DomainLoop{
		Logger:   logger,
		Store:    store,
		Checker:  checker,
		Domain:   d,
		Interval: DomainInterval,
		Timeout:  probe.HTTPTimeout,
	}
}

func (l *DomainLoop) Run(ctx context.Context) {
	for {
		l.probeOnce(ctx)
		if !sleep(ctx, l.Interval) {
			l.Logger.Debug("domain_loop_stopped", zap.String("domain", l.Domain.Name))
			return
		}
	}
}

// probeOnce issues one request and records its status code (0 when no
// response came back).
func (l *DomainLoop) probeOnce(ctx context.Context) int {
	cctx, cancel := context.WithTimeout(ctx, l.Timeout)
	res := l.Checker.Check(cctx, l.Domain.Name)
	cancel()
	if ctx.Err() != nil {
		return res.StatusCode
	}

	st := domain.DomainStatus{Domain: l.Domain.Name, ResponseCode: res.StatusCode}
	if err := l.Store.PutDomain(ctx, st); err != nil {
		l.Logger.Warn("status_write_failed",
			zap.String("domain", l.Domain.Name),
			zap.Error(err),
		)
	}

	l.Logger.Debug("domain_probe",
		zap.String("domain", l.Domain.Name),
		zap.Int("status", res.StatusCode),
		zap.Float64("latency_ms", res.LatencyMS),
		zap.String("reason", res.Message),
	)

	up := st.Reachable()
	if !l.state.observe(up) {
		return res.StatusCode
	}
	fields := []zap.Field{
		zap.String("domain", l.Domain.Name),
		zap.String("state", stateLabel(up)),
		zap.Int("status", res.StatusCode),
	}
	if !up {
		fields = append(fields, zap.String("reason", res.Message))
		if l.DNS != nil {
			d := l.DNS.CheckDNS(ctx, l.Domain.Name)
			fields = append(fields,
				zap.String("dns_class", d.Class),
				zap.Strings("nameservers", d.Nameservers),
			)
			if d.CNAME != "" {
				fields = append(fields, zap.String("cname", d.CNAME))
			}
		}
	}
	l.Logger.Info("domain_state_change", fields...)
	return res.StatusCode
}
