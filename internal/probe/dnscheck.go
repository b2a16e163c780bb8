package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNS diagnosis classes.
const (
	DNSResolves     = "RESOLVES"
	DNSNoARecord    = "NO_A_RECORD"
	DNSNXDomain     = "NXDOMAIN"
	DNSServfail     = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName  = "INVALID_NAME"
	DefaultDNSLimit = 3 * time.Second
)

type DNSStatus struct {
	Domain        string
	HasAOrAAAA    bool
	IPs           []net.IP
	CNAME         string
	HasNS         bool
	Nameservers   []string
	Class         string
	ResolverError string
}

// DNSChecker explains why a domain returned no HTTP response. It never
// feeds the status table.
type DNSChecker struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{Resolver: net.DefaultResolver, Timeout: DefaultDNSLimit}
}

// CheckDNS classifies host. A trailing ":port" is ignored.
func (c *DNSChecker) CheckDNS(ctx context.Context, host string) DNSStatus {
	host = strings.TrimSpace(host)
	if host == "" || strings.Contains(host, "://") {
		return DNSStatus{Domain: host, Class: DNSInvalidName}
	}
	if h, _, err := net.SplitHostPort(host); err == nil && !strings.Contains(h, "/") {
		host = h
	}
	s := DNSStatus{Domain: host}
	if s.Domain == "" || strings.Contains(s.Domain, "/") {
		s.Class = DNSInvalidName
		return s
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultDNSLimit
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r := c.Resolver
	if r == nil {
		r = net.DefaultResolver
	}

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	if err == nil && len(ips) > 0 {
		s.HasAOrAAAA = true
		s.IPs = ips
		s.Class = DNSResolves
	} else if err != nil {
		var de *net.DNSError
		s.ResolverError = err.Error()
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServfail
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		s.HasNS = true
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case s.HasAOrAAAA:
			s.Class = DNSResolves
		case s.HasNS:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServfail
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}
