package scheduler

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/homewatch/internal/domain"
	"github.com/hamed0406/homewatch/internal/probe"
	"github.com/hamed0406/homewatch/internal/repo/memory"
)

// --- fakes ---

// scriptedPinger replays outcomes in order; true means a reply arrived.
type scriptedPinger struct {
	mu     sync.Mutex
	script []bool
	seqs   []uint16
}

func (p *scriptedPinger) Ping(ctx context.Context, ip netip.Addr, seq uint16) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seqs = append(p.seqs, seq)
	ok := true
	if len(p.script) > 0 {
		ok = p.script[0]
		p.script = p.script[1:]
	}
	if !ok {
		return 0, probe.ErrNoReply
	}
	return 3 * time.Millisecond, nil
}

// stuckPinger ignores its context and never answers until released.
type stuckPinger struct{ release chan struct{} }

func (p *stuckPinger) Ping(ctx context.Context, ip netip.Addr, seq uint16) (time.Duration, error) {
	<-p.release
	return time.Millisecond, nil
}

// slowPinger ignores its context, blocks until released and counts the
// echoes that were running at the same time.
type slowPinger struct {
	release  chan struct{}
	calls    atomic.Int32
	running  atomic.Int32
	maxAlive atomic.Int32
}

func (p *slowPinger) Ping(ctx context.Context, ip netip.Addr, seq uint16) (time.Duration, error) {
	p.calls.Add(1)
	n := p.running.Add(1)
	defer p.running.Add(-1)
	for {
		m := p.maxAlive.Load()
		if n <= m || p.maxAlive.CompareAndSwap(m, n) {
			break
		}
	}
	<-p.release
	return time.Millisecond, nil
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(ctx context.Context, ip netip.Addr, seq uint16) (time.Duration, error) {
	return 0, p.err
}

type fixedChecker struct{ code int }

func (c fixedChecker) Check(ctx context.Context, host string) probe.CheckResult {
	return probe.CheckResult{StatusCode: c.code, Message: "scripted"}
}

var (
	router  = domain.Device{Name: "router", IP: "192.168.1.1"}
	example = domain.Domain{Name: "example.com"}
	testReg = domain.Registry{Devices: []domain.Device{router}, Domains: []domain.Domain{example}}
)

func newDeviceLoop(t *testing.T, p probe.Pinger, store *memory.Store, log *zap.Logger) *DeviceLoop {
	t.Helper()
	l, err := NewDeviceLoop(log, store, p, router)
	if err != nil {
		t.Fatalf("NewDeviceLoop: %v", err)
	}
	return l
}

// --- device loop ---

func TestDeviceLoop_SequenceResetsOnFailure(t *testing.T) {
	p := &scriptedPinger{script: []bool{true, true, false, true}}
	l := newDeviceLoop(t, p, memory.New(testReg), zap.NewNop())

	ctx := context.Background()
	var seq uint16
	var got []uint16
	for i := 0; i < 4; i++ {
		seq = l.probeOnce(ctx, seq)
		got = append(got, seq)
	}

	want := []uint16{1, 2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence after step %d: got %v want %v", i, got, want)
		}
	}
	// the echo carries the counter value before the step
	sent := []uint16{0, 1, 2, 0}
	for i := range sent {
		if p.seqs[i] != sent[i] {
			t.Fatalf("sent sequences: got %v want %v", p.seqs, sent)
		}
	}
}

func TestDeviceLoop_SequenceWraps(t *testing.T) {
	l := newDeviceLoop(t, &scriptedPinger{}, memory.New(testReg), zap.NewNop())
	if got := l.probeOnce(context.Background(), 65535); got != 0 {
		t.Fatalf("expected wrap to 0, got %d", got)
	}
}

func TestDeviceLoop_RecordsLatencyAndFailure(t *testing.T) {
	store := memory.New(testReg)
	l := newDeviceLoop(t, &scriptedPinger{script: []bool{true, false}}, store, zap.NewNop())
	ctx := context.Background()

	l.probeOnce(ctx, 0)
	devs, _ := store.Snapshot(ctx)
	if len(devs) != 1 || devs[0].Latency == nil || *devs[0].Latency != 3*time.Millisecond {
		t.Fatalf("expected 3ms latency, got %+v", devs)
	}
	if devs[0].IP != router.IP {
		t.Fatalf("ip not recorded: %+v", devs[0])
	}

	l.probeOnce(ctx, 1)
	devs, _ = store.Snapshot(ctx)
	if devs[0].Latency != nil {
		t.Fatalf("expected nil latency after failure, got %v", *devs[0].Latency)
	}
}

func TestDeviceLoop_BoundedByTimeout(t *testing.T) {
	p := &stuckPinger{release: make(chan struct{})}
	defer close(p.release)

	store := memory.New(testReg)
	l := newDeviceLoop(t, p, store, zap.NewNop())
	l.Timeout = 50 * time.Millisecond

	start := time.Now()
	next := l.probeOnce(context.Background(), 9)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("probe held the loop for %s", elapsed)
	}
	if next != 0 {
		t.Fatalf("timeout must reset the sequence, got %d", next)
	}
	devs, _ := store.Snapshot(context.Background())
	if len(devs) != 1 || devs[0].Reachable() {
		t.Fatalf("expected unreachable entry, got %+v", devs)
	}
}

func TestDeviceLoop_LogsTransitionsOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := newDeviceLoop(t, &scriptedPinger{script: []bool{false, false, true, true, false}}, memory.New(testReg), zap.New(core))

	var seq uint16
	for i := 0; i < 5; i++ {
		seq = l.probeOnce(context.Background(), seq)
	}

	changes := logs.FilterMessage("device_state_change").AllUntimed()
	if len(changes) != 3 {
		t.Fatalf("want 3 transitions (down, up, down), got %d", len(changes))
	}
	want := []string{"down", "up", "down"}
	for i, e := range changes {
		if got := e.ContextMap()["state"]; got != want[i] {
			t.Fatalf("transition %d: got %v want %s", i, got, want[i])
		}
	}
}

func TestDeviceLoop_EchoesNeverOverlap(t *testing.T) {
	p := &slowPinger{release: make(chan struct{})}
	store := memory.New(testReg)
	l := newDeviceLoop(t, p, store, zap.NewNop())
	l.Timeout = 20 * time.Millisecond

	for i := 0; i < 4; i++ {
		if next := l.probeOnce(context.Background(), 5); next != 0 {
			t.Fatalf("stuck echo must count as failure, got seq %d", next)
		}
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("want a single echo while the first is stuck, got %d", got)
	}
	devs, _ := store.Snapshot(context.Background())
	if len(devs) != 1 || devs[0].Reachable() {
		t.Fatalf("expected unreachable entry, got %+v", devs)
	}

	close(p.release)
	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("loop never resumed sending after the stuck echo returned")
		}
		l.probeOnce(context.Background(), 0)
		time.Sleep(5 * time.Millisecond)
	}
	if got := p.maxAlive.Load(); got != 1 {
		t.Fatalf("echoes overlapped: %d in flight at once", got)
	}
}

func TestDeviceLoop_DownTransitionCarriesError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sockErr := errors.New("icmp socket unavailable: udp4: permission denied")
	l := newDeviceLoop(t, failingPinger{err: sockErr}, memory.New(testReg), zap.New(core))

	l.probeOnce(context.Background(), 0)

	changes := logs.FilterMessage("device_state_change").AllUntimed()
	if len(changes) != 1 {
		t.Fatalf("expected one transition, got %d", len(changes))
	}
	f := changes[0].ContextMap()
	if f["state"] != "down" || f["error"] != sockErr.Error() {
		t.Fatalf("down transition should carry the cause: %v", f)
	}
}

func TestDeviceLoop_WarnsOnRejectedWrite(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	// store built for a registry that does not contain router
	store := memory.New(domain.Registry{Devices: []domain.Device{{Name: "other", IP: "10.0.0.1"}}})
	l := newDeviceLoop(t, &scriptedPinger{}, store, zap.New(core))

	l.probeOnce(context.Background(), 0)
	if logs.FilterMessage("status_write_failed").Len() != 1 {
		t.Fatalf("expected one status_write_failed warning, got %v", logs.All())
	}
}

func TestNewDeviceLoop_RejectsBadIP(t *testing.T) {
	_, err := NewDeviceLoop(zap.NewNop(), memory.New(testReg), &scriptedPinger{}, domain.Device{Name: "x", IP: "nope"})
	if err == nil {
		t.Fatalf("expected error for invalid ip")
	}
}

// --- domain loop ---

func TestDomainLoop_RecordsRawStatus(t *testing.T) {
	ctx := context.Background()
	for _, code := range []int{200, 301, 404, 503, 0} {
		store := memory.New(testReg)
		l := NewDomainLoop(zap.NewNop(), store, fixedChecker{code: code}, example)
		if got := l.probeOnce(ctx); got != code {
			t.Fatalf("probeOnce returned %d want %d", got, code)
		}
		_, doms := store.Snapshot(ctx)
		if len(doms) != 1 || doms[0].ResponseCode != code || doms[0].Domain != "example.com" {
			t.Fatalf("code %d: stored %+v", code, doms)
		}
	}
}

func TestDomainLoop_DownTransitionCarriesReason(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewDomainLoop(zap.New(core), memory.New(testReg), fixedChecker{code: 0}, example)

	l.probeOnce(context.Background())
	l.probeOnce(context.Background())

	changes := logs.FilterMessage("domain_state_change").AllUntimed()
	if len(changes) != 1 {
		t.Fatalf("expected a single transition, got %d", len(changes))
	}
	ctxMap := changes[0].ContextMap()
	if ctxMap["state"] != "down" || ctxMap["reason"] != "scripted" {
		t.Fatalf("unexpected fields: %v", ctxMap)
	}
}

func TestDomainLoop_DownTransitionRunsDNSDiagnosis(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewDomainLoop(zap.New(core), memory.New(testReg), fixedChecker{code: 0}, example)
	l.DNS = &probe.DNSChecker{
		Resolver: &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return nil, errors.New("resolver offline")
			},
		},
		Timeout: time.Second,
	}

	l.probeOnce(context.Background())

	changes := logs.FilterMessage("domain_state_change").AllUntimed()
	if len(changes) != 1 {
		t.Fatalf("expected one transition, got %d", len(changes))
	}
	if got := changes[0].ContextMap()["dns_class"]; got != probe.DNSServfail {
		t.Fatalf("dns_class: got %v want %s", got, probe.DNSServfail)
	}
}

func TestDomainLoop_NoDNSDiagnosisWhenUp(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewDomainLoop(zap.New(core), memory.New(testReg), fixedChecker{code: 200}, example)
	l.DNS = probe.NewDNSChecker()

	l.probeOnce(context.Background())

	changes := logs.FilterMessage("domain_state_change").AllUntimed()
	if len(changes) != 1 {
		t.Fatalf("expected one transition, got %d", len(changes))
	}
	if _, ok := changes[0].ContextMap()["dns_class"]; ok {
		t.Fatalf("reachable domain must not be diagnosed")
	}
}

// --- monitor ---

func TestMonitor_FirstIterationPopulatesTable(t *testing.T) {
	store := memory.New(testReg)
	m := NewMonitor(zap.NewNop(), store, &scriptedPinger{}, fixedChecker{code: 204}, testReg)

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		devs, doms := store.Snapshot(context.Background())
		if len(devs) == 1 && len(doms) == 1 {
			if doms[0].ResponseCode != 204 || !devs[0].Reachable() {
				t.Fatalf("unexpected entries: %+v %+v", devs, doms)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("table not populated after first iteration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	waited := make(chan struct{})
	go func() { m.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatalf("loops did not stop after cancel")
	}
}

func TestMonitor_ConcurrentLoopsAndReaders(t *testing.T) {
	reg := domain.Registry{
		Devices: []domain.Device{{Name: "a", IP: "10.0.0.1"}, {Name: "b", IP: "10.0.0.2"}, {Name: "c", IP: "fe80::1"}},
		Domains: []domain.Domain{{Name: "x.example"}, {Name: "y.example"}},
	}
	store := memory.New(reg)
	m := NewMonitor(zap.NewNop(), store, &scriptedPinger{script: []bool{true, false, true, false}}, fixedChecker{code: 200}, reg)
	m.DeviceInterval = time.Millisecond
	m.DomainInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for ctx.Err() == nil {
		devs, doms := store.Snapshot(context.Background())
		if len(devs) > 3 || len(doms) > 2 {
			t.Fatalf("duplicate entries: %+v %+v", devs, doms)
		}
	}
	m.Wait()

	devs, doms := store.Snapshot(context.Background())
	if len(devs) != 3 || len(doms) != 2 {
		t.Fatalf("expected every target recorded, got %d devices %d domains", len(devs), len(doms))
	}
}

func TestMonitor_StartRejectsBadRegistry(t *testing.T) {
	reg := domain.Registry{Devices: []domain.Device{{Name: "x", IP: "999.1.1.1"}}}
	m := NewMonitor(zap.NewNop(), memory.New(reg), &scriptedPinger{}, fixedChecker{}, reg)
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	m.Wait()
}

func TestSleep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Fatalf("sleep should report stop on cancelled context")
	}
	if !sleep(context.Background(), time.Millisecond) {
		t.Fatalf("sleep should report continue after the timer fires")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("unexpected ctx err")
	}
}
