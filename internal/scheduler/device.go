package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/homewatch/internal/domain"
	"github.com/hamed0406/homewatch/internal/probe"
	"github.com/hamed0406/homewatch/internal/repo"
)

// DeviceInterval is the pause between two echoes to the same device.
const DeviceInterval = 5 * time.Second

// DeviceLoop probes one device forever: ping, record, sleep.
type DeviceLoop struct {
	Logger   *zap.Logger
	Store    repo.StatusStore
	Pinger   probe.Pinger
	Device   domain.Device
	Interval time.Duration
	Timeout  time.Duration

	addr  netip.Addr
	state reachability

	// inflight is set while an echo that outlived its timeout is still
	// running; no new echo starts until it returns.
	inflight chan echoOutcome
}

func NewDeviceLoop(logger *zap.Logger, store repo.StatusStore, pinger probe.Pinger, d domain.Device) (*DeviceLoop, error) {
	addr, err := netip.ParseAddr(d.IP)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", d.Name, err)
	}
	return &DeviceLoop{
		Logger:   logger,
		Store:    store,
		Pinger:   pinger,
		Device:   d,
		Interval: DeviceInterval,
		Timeout:  probe.EchoTimeout,
		addr:     addr,
	}, nil
}

// Run blocks until ctx is cancelled. Probe failures never stop the loop.
func (l *DeviceLoop) Run(ctx context.Context) {
	var seq uint16
	for {
		seq = l.probeOnce(ctx, seq)
		if !sleep(ctx, l.Interval) {
			l.Logger.Debug("device_loop_stopped", zap.String("device", l.Device.Name))
			return
		}
	}
}

type echoOutcome struct {
	rtt time.Duration
	err error
}

// errEchoBusy is recorded when the previous echo has still not returned.
var errEchoBusy = errors.New("previous echo still in flight")

// probeOnce sends one echo carrying seq, records the outcome and returns the
// next sequence: seq+1 on success (wrapping at 65535), 0 on failure.
//
// The loop gives up on an echo after Timeout even if the Pinger ignores its
// context. Such an echo is left running, and until it returns every
// iteration records the device as unreachable without sending, so two
// echoes to one device never overlap.
func (l *DeviceLoop) probeOnce(ctx context.Context, seq uint16) uint16 {
	out, ok := l.drainInflight()
	if ok {
		out = l.echo(ctx, seq)
	}
	if ctx.Err() != nil {
		return seq
	}

	st := domain.DeviceStatus{Name: l.Device.Name, IP: l.Device.IP}
	next := uint16(0)
	if out.err == nil {
		rtt := out.rtt
		st.Latency = &rtt
		next = seq + 1
	}

	if err := l.Store.PutDevice(ctx, st); err != nil {
		l.Logger.Warn("status_write_failed",
			zap.String("device", l.Device.Name),
			zap.Error(err),
		)
	}

	l.Logger.Debug("device_probe",
		zap.String("device", l.Device.Name),
		zap.String("ip", l.Device.IP),
		zap.Uint16("seq", seq),
		zap.Duration("rtt", out.rtt),
		zap.Error(out.err),
	)
	if up := out.err == nil; l.state.observe(up) {
		fields := []zap.Field{
			zap.String("device", l.Device.Name),
			zap.String("ip", l.Device.IP),
			zap.String("state", stateLabel(up)),
		}
		if !up {
			fields = append(fields, zap.Error(out.err))
		}
		l.Logger.Info("device_state_change", fields...)
	}
	return next
}

// drainInflight reports whether a new echo may start. When an abandoned
// echo is still running it returns the outcome to record instead.
func (l *DeviceLoop) drainInflight() (echoOutcome, bool) {
	if l.inflight == nil {
		return echoOutcome{}, true
	}
	select {
	case <-l.inflight:
		l.inflight = nil
		return echoOutcome{}, true
	default:
		return echoOutcome{err: errEchoBusy}, false
	}
}

func (l *DeviceLoop) echo(ctx context.Context, seq uint16) echoOutcome {
	pctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	done := make(chan echoOutcome, 1)
	go func() {
		rtt, err := l.Pinger.Ping(pctx, l.addr, seq)
		done <- echoOutcome{rtt, err}
	}()

	select {
	case out := <-done:
		return out
	case <-pctx.Done():
		l.inflight = done
		return echoOutcome{err: probe.ErrNoReply}
	}
}

// sleep waits d or until ctx is done; it reports whether the loop should
// continue.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
