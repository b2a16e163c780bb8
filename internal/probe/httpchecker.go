package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPTimeout bounds a whole domain probe, connect to last header byte.
const HTTPTimeout = 5 * time.Second

type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker returns a checker that issues exactly one request per
// probe: redirects are reported as-is instead of being followed.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = HTTPTimeout
	}
	return &HTTPChecker{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// DomainURL is the address probed for host.
func DomainURL(host string) string {
	return "http://" + host + "/"
}

func (h *HTTPChecker) Check(ctx context.Context, host string) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, DomainURL(host), nil)
	if err != nil {
		return CheckResult{Message: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return CheckResult{Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()
	// drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return CheckResult{
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
		Message:    resp.Status,
	}
}
