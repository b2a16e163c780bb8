// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hamed0406/homewatch/internal/config"
	"github.com/hamed0406/homewatch/internal/probe"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" && !strings.EqualFold(v, cfg.LogLevel) {
		warn("LOG_LEVEL=" + v + " is not one of debug,info,warn,error; using " + cfg.LogLevel)
	}
	if err := checkBoolEnv("ICMP_PRIVILEGED", os.Getenv("ICMP_PRIVILEGED")); err != nil {
		warn(err.Error() + "; using unprivileged sockets")
	}
	ok("listen address " + cfg.Addr)

	reg, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		fail(fmt.Sprintf("targets file %s: %v", cfg.TargetsFile, err))
	}
	ok(fmt.Sprintf("%s: %d devices, %d domains", cfg.TargetsFile, len(reg.Devices), len(reg.Domains)))
	if len(reg.Domains) == 0 {
		warn("no domains configured; /status will only report devices")
	}

	mode := "unprivileged datagram"
	if cfg.ICMPPrivileged {
		mode = "raw"
	}
	p := probe.NewICMPProbe(cfg.ICMPPrivileged)
	needV4, needV6 := false, false
	for _, d := range reg.Devices {
		if strings.Contains(d.IP, ":") {
			needV6 = true
		} else {
			needV4 = true
		}
	}
	for _, fam := range []struct {
		need bool
		v6   bool
		name string
	}{{needV4, false, "IPv4"}, {needV6, true, "IPv6"}} {
		if !fam.need {
			continue
		}
		if err := p.CanListen(fam.v6); err != nil {
			if cfg.ICMPPrivileged {
				fail(fmt.Sprintf("%s %s ICMP socket: %v (needs CAP_NET_RAW)", fam.name, mode, err))
			}
			fail(fmt.Sprintf("%s %s ICMP socket: %v (check net.ipv4.ping_group_range)", fam.name, mode, err))
		}
		ok(fam.name + " " + mode + " ICMP socket available")
	}

	ok("preflight passed")
}

// checkBoolEnv accepts an unset variable or anything strconv.ParseBool
// understands.
func checkBoolEnv(name, raw string) error {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if _, err := strconv.ParseBool(v); err != nil {
		return fmt.Errorf("%s=%s is not a boolean", name, v)
	}
	return nil
}
