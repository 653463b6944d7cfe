// Package config loads and validates the server configuration.
//
// Configuration is layered the way kcptun layers its server config: a flat
// key=value file supplies defaults, a JSON file (if given via -c) overrides
// it, and CLI flags (wired in cmd/streamd) take precedence over both.
package config

import (
	"bufio"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config holds every tunable the reactor, worker pool, session table and
// router need at startup.
type Config struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	MaxClients    int    `json:"max_clients"`
	TimeoutSec    int    `json:"timeout_sec"`
	LogLevel      int    `json:"log_level"`
	QueueCapacity int    `json:"queue_capacity"`
	ThreadNum     int    `json:"thread_num"`
	DataDir       string `json:"data_dir"`
	StaticDir     string `json:"static_dir"`
	SessionTTLSec int    `json:"session_ttl_sec"`
	Log           string `json:"log"`
}

// Default mirrors the defaults load_config() fills in before reading the
// file (config_loader.c): port 8080, 1000 max clients, 30s timeout, queue
// capacity 1000, 10 worker threads, host "localhost".
func Default() Config {
	return Config{
		Host:          "localhost",
		Port:          8080,
		MaxClients:    1000,
		TimeoutSec:    30,
		LogLevel:      1,
		QueueCapacity: 1000,
		ThreadNum:     10,
		DataDir:       "./data",
		StaticDir:     "./static",
		SessionTTLSec: 1800,
	}
}

// fieldSetters maps a config-file key name to the setter applied to it,
// the same shape as config_loader.c's config_map table: one row per known
// key, unknown keys are warned about and skipped, not rejected.
var fieldSetters = map[string]func(*Config, string) error{
	"PORT":                 func(c *Config, v string) error { return setInt(&c.Port, v) },
	"MAX_CLIENTS":          func(c *Config, v string) error { return setInt(&c.MaxClients, v) },
	"TIMEOUT_SEC":          func(c *Config, v string) error { return setInt(&c.TimeoutSec, v) },
	"LOG_LEVEL":            func(c *Config, v string) error { return setInt(&c.LogLevel, v) },
	"QUEUE_CAPACITY":       func(c *Config, v string) error { return setInt(&c.QueueCapacity, v) },
	"WORKER_THREAD_COUNT":  func(c *Config, v string) error { return setInt(&c.ThreadNum, v) },
	"SESSION_TTL_SEC":      func(c *Config, v string) error { return setInt(&c.SessionTTLSec, v) },
	"HOST":                 func(c *Config, v string) error { c.Host = v; return nil },
	"DATA_DIR":             func(c *Config, v string) error { c.DataDir = v; return nil },
	"STATIC_DIR":           func(c *Config, v string) error { c.StaticDir = v; return nil },
	"LOG":                  func(c *Config, v string) error { c.Log = v; return nil },
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Errorf("invalid integer %q", v)
	}
	*dst = n
	return nil
}

// LoadFile parses a flat key=value file on top of Default(), the same
// grammar as config_loader.c's load_config: "#" starts a comment anywhere on
// the line, blank/comment-only lines are skipped, and "key = value" pairs
// are trimmed of surrounding whitespace before lookup. Unknown keys produce
// a warning, not a failure, via the warn callback (nil is allowed).
func LoadFile(path string, warn func(string)) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		setter, ok := fieldSetters[key]
		if !ok {
			if warn != nil {
				warn("unknown config key " + key)
			}
			continue
		}
		if err := setter(&cfg, value); err != nil {
			return cfg, errors.Wrapf(err, "config key %s", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, errors.Wrap(err, "scan config file")
	}
	return cfg, nil
}

// LoadJSON overrides fields of cfg from a JSON file, mirroring kcptun's
// parseJSONConfig: only fields present in the JSON document change.
func LoadJSON(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open json config")
	}
	defer f.Close()
	return errors.Wrap(json.NewDecoder(f).Decode(cfg), "decode json config")
}

// Validate checks invariants the reactor and pool rely on; the first
// violation found is returned so the caller can log.Fatal with full context, same as
// kcptun's checkError pattern.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.MaxClients <= 0 {
		return errors.Errorf("max_clients must be positive, got %d", c.MaxClients)
	}
	if c.QueueCapacity <= 0 {
		return errors.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.ThreadNum <= 0 {
		return errors.Errorf("thread_num must be positive, got %d", c.ThreadNum)
	}
	if c.TimeoutSec < 0 {
		return errors.Errorf("timeout_sec must be non-negative, got %d", c.TimeoutSec)
	}
	if c.SessionTTLSec <= 0 {
		return errors.Errorf("session_ttl_sec must be positive, got %d", c.SessionTTLSec)
	}
	return nil
}
