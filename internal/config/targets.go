package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/homewatch/internal/domain"
)

// targetsFile mirrors the on-disk layout:
//
//	{"devices": [{"name": "nas", "ip": "192.168.1.10"}], "domains": ["example.com"]}
type targetsFile struct {
	Devices []domain.Device `json:"devices" yaml:"devices" toml:"devices"`
	Domains []string        `json:"domains" yaml:"domains" toml:"domains"`
}

// LoadTargets reads and validates the targets file at path. The decoder is
// picked from the extension; anything that is not .json or .toml is read as
// YAML.
func LoadTargets(path string) (domain.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Registry{}, fmt.Errorf("read targets: %w", err)
	}

	var f targetsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".toml":
		err = toml.Unmarshal(data, &f)
	default:
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return domain.Registry{}, fmt.Errorf("parse targets %s: %w", path, err)
	}
	return f.registry()
}

func (f targetsFile) registry() (domain.Registry, error) {
	var (
		errs error
		reg  domain.Registry
	)
	if len(f.Devices) == 0 && len(f.Domains) == 0 {
		return reg, errors.New("targets: no devices or domains defined")
	}

	seen := make(map[string]struct{}, len(f.Devices))
	for i, d := range f.Devices {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			errs = multierr.Append(errs, fmt.Errorf("device %d: missing name", i))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = multierr.Append(errs, fmt.Errorf("device %q: duplicate name", name))
			continue
		}
		seen[name] = struct{}{}

		addr, err := netip.ParseAddr(strings.TrimSpace(d.IP))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("device %q: invalid ip %q", name, d.IP))
			continue
		}
		reg.Devices = append(reg.Devices, domain.Device{Name: name, IP: addr.Unmap().String()})
	}

	seenHosts := make(map[string]struct{}, len(f.Domains))
	for i, raw := range f.Domains {
		host := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case host == "":
			errs = multierr.Append(errs, fmt.Errorf("domain %d: empty hostname", i))
			continue
		case strings.Contains(host, "://") || strings.ContainsAny(host, "/ "):
			errs = multierr.Append(errs, fmt.Errorf("domain %q: expected a bare hostname", raw))
			continue
		}
		if _, dup := seenHosts[host]; dup {
			errs = multierr.Append(errs, fmt.Errorf("domain %q: duplicate", host))
			continue
		}
		seenHosts[host] = struct{}{}
		reg.Domains = append(reg.Domains, domain.Domain{Name: host})
	}

	if errs != nil {
		return domain.Registry{}, errs
	}
	return reg, nil
}
