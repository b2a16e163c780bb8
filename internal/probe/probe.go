package probe

import (
	"context"
	"net/netip"
	"time"
)

// CheckResult is the outcome of a single HTTP probe.
//
// Fields:
//   - StatusCode: the HTTP status code as received; 0 when the request did
//     not complete (DNS, refused, timeout, ...).
//   - LatencyMS: wall time spent on the attempt, successful or not.
//   - Message: status line or transport error, for logs only.
type CheckResult struct {
	StatusCode int
	LatencyMS  float64
	Message    string
}

// Checker performs one HTTP probe against a hostname.
type Checker interface {
	Check(ctx context.Context, host string) CheckResult
}

// Pinger sends one ICMP echo request with the given sequence number and
// returns the round-trip time of the matching reply.
type Pinger interface {
	Ping(ctx context.Context, ip netip.Addr, seq uint16) (time.Duration, error)
}
