package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Addr           string // HTTP bind address, e.g. "0.0.0.0:4901"
	LogDir         string // logs directory
	LogLevel       string // debug, info, warn, error
	TargetsFile    string // devices/domains file (json, yaml or toml)
	ICMPPrivileged bool   // raw ICMP sockets instead of unprivileged datagram sockets
}

const (
	defaultPort        = 4901
	defaultTargetsFile = "devices.json"
)

func FromEnv() Config {
	// Bind address; PORT is honoured when API_ADDR is unset.
	addr := os.Getenv("API_ADDR")
	if addr == "" {
		port := defaultPort
		if v := os.Getenv("PORT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n < 65536 {
				port = n
			}
		}
		addr = ListenAddr(port)
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	level := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		level = "info"
	}

	targets := os.Getenv("TARGETS_FILE")
	if targets == "" {
		targets = defaultTargetsFile
	}

	privileged := false
	if v := os.Getenv("ICMP_PRIVILEGED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			privileged = b
		}
	}

	return Config{
		Addr:           addr,
		LogDir:         logDir,
		LogLevel:       level,
		TargetsFile:    targets,
		ICMPPrivileged: privileged,
	}
}

// ListenAddr binds all interfaces on port.
func ListenAddr(port int) string {
	return "0.0.0.0:" + strconv.Itoa(port)
}
