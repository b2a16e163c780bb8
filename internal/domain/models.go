package domain

import (
	"encoding/json"
	"time"
)

// Device is an IP-addressed host probed with ICMP echo.
type Device struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	IP   string `json:"ip" yaml:"ip" toml:"ip"`
}

// Domain is a hostname probed with HTTP GET. Its name is the hostname.
type Domain struct {
	Name string `json:"domain"`
}

// Registry is the validated, immutable set of monitoring targets.
type Registry struct {
	Devices []Device
	Domains []Domain
}

// Len returns the total number of targets.
func (r Registry) Len() int { return len(r.Devices) + len(r.Domains) }

// DeviceStatus is the latest observation for a device. A nil Latency means
// the last echo got no reply.
type DeviceStatus struct {
	Name    string
	IP      string
	Latency *time.Duration
}

// Reachable reports whether the last echo succeeded.
func (s DeviceStatus) Reachable() bool { return s.Latency != nil }

// LatencyMillis returns the latency in whole milliseconds, or nil.
func (s DeviceStatus) LatencyMillis() *int64 {
	if s.Latency == nil {
		return nil
	}
	ms := s.Latency.Milliseconds()
	return &ms
}

func (s DeviceStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string `json:"name"`
		IP        string `json:"ip"`
		LatencyMS *int64 `json:"latency_milliseconds"`
	}{s.Name, s.IP, s.LatencyMillis()})
}

// DomainStatus is the latest observation for a domain. ResponseCode 0 means
// the request did not complete.
type DomainStatus struct {
	Domain       string `json:"domain"`
	ResponseCode int    `json:"status"`
}

// Reachable reports whether any HTTP response came back.
func (s DomainStatus) Reachable() bool { return s.ResponseCode != 0 }

// Snapshot is a point-in-time copy of the status table, sorted by name.
type Snapshot struct {
	Devices []DeviceStatus
	Domains []DomainStatus

	// IncludeDomains is false for device-only deployments, in which case the
	// domains key is left out of the JSON document entirely.
	IncludeDomains bool
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	devices := s.Devices
	if devices == nil {
		devices = []DeviceStatus{}
	}
	if !s.IncludeDomains {
		return json.Marshal(struct {
			Devices []DeviceStatus `json:"devices"`
		}{devices})
	}
	domains := s.Domains
	if domains == nil {
		domains = []DomainStatus{}
	}
	return json.Marshal(struct {
		Devices []DeviceStatus `json:"devices"`
		Domains []DomainStatus `json:"domains"`
	}{devices, domains})
}
