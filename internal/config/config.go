// Package config resolves backend and dispatch settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Variant selects the persistence backend.
type Variant string

const (
	// Embedded is an in-process SQLite store under a local directory.
	Embedded Variant = "embedded"
	// Networked is a remote PostgreSQL server reached over TCP.
	Networked Variant = "networked"
)

// Environment keys.
const (
	EnvBackend         = "TODOSYNC_BACKEND"
	EnvAddress         = "TODOSYNC_DB_ADDRESS"
	EnvPort            = "TODOSYNC_DB_PORT"
	EnvUsername        = "TODOSYNC_DB_USERNAME"
	EnvPassword        = "TODOSYNC_DB_PASSWORD"
	EnvNamespace       = "TODOSYNC_DB_NS"
	EnvDatabase        = "TODOSYNC_DB_DB"
	EnvAddDelay        = "TODOSYNC_ADD_DELAY"
	EnvDispatchTimeout = "TODOSYNC_DISPATCH_TIMEOUT"
)

// Defaults shared by both variants.
const (
	DefaultNamespace = "leptos_examples"
	DefaultDatabase  = "todos"
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 8000
	DefaultUsername  = "root"
	DefaultPassword  = "root"

	// DefaultAddDelay makes the optimistic pending overlay observable. It is a
	// deliberate demo affordance, not a correctness requirement.
	DefaultAddDelay = 1250 * time.Millisecond
)

// Backend is the connection configuration. It is fixed at startup.
type Backend struct {
	Variant   Variant
	Address   string // data directory (embedded) or host (networked)
	Port      int    // networked only
	Username  string
	Password  string
	Namespace string
	Database  string
}

// HasCredentials reports whether both username and password are set.
func (b Backend) HasCredentials() bool { return b.Username != "" && b.Password != "" }

// Config is the full application configuration.
type Config struct {
	Backend         Backend
	AddDelay        time.Duration
	DispatchTimeout time.Duration // 0 disables the per-dispatch timeout
}

// Load reads configuration from the process environment.
func Load() (Config, error) { return LoadFrom(os.Getenv) }

// LoadFrom reads configuration using getenv; variantOverride wins over the environment when set.
func LoadFrom(getenv func(string) string, variantOverride ...Variant) (Config, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(getenv(EnvBackend))))
	if len(variantOverride) > 0 && variantOverride[0] != "" {
		v = variantOverride[0]
	}
	if v == "" {
		v = Embedded
	}

	var cfg Config
	switch v {
	case Embedded:
		addr := getenv(EnvAddress)
		if addr == "" {
			addr = defaultDataDir()
		}
		cfg.Backend = Backend{
			Variant:  Embedded,
			Address:  addr,
			Username: getenv(EnvUsername),
			Password: getenv(EnvPassword),
		}
	case Networked:
		port := DefaultPort
		if s := getenv(EnvPort); s != "" {
			p, err := strconv.Atoi(s)
			if err != nil || p <= 0 || p > 65535 {
				return Config{}, fmt.Errorf("config: bad %s %q", EnvPort, s)
			}
			port = p
		}
		cfg.Backend = Backend{
			Variant:  Networked,
			Address:  orDefault(getenv(EnvAddress), DefaultHost),
			Port:     port,
			Username: orDefault(getenv(EnvUsername), DefaultUsername),
			Password: orDefault(getenv(EnvPassword), DefaultPassword),
		}
	default:
		return Config{}, fmt.Errorf("config: unknown backend %q", v)
	}
	cfg.Backend.Namespace = orDefault(getenv(EnvNamespace), DefaultNamespace)
	cfg.Backend.Database = orDefault(getenv(EnvDatabase), DefaultDatabase)

	var err error
	if cfg.AddDelay, err = duration(getenv, EnvAddDelay, DefaultAddDelay); err != nil {
		return Config{}, err
	}
	if cfg.DispatchTimeout, err = duration(getenv, EnvDispatchTimeout, 0); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	s := getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: bad %s %q", key, s)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// DataDir is the per-user directory for the embedded store and logs.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".todosync"
	}
	return filepath.Join(home, ".todosync")
}

func defaultDataDir() string { return filepath.Join(DataDir(), "data") }
