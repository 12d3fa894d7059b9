// Package config loads runtime settings from the environment.
//
// Values come from FRUGALFLOW_* environment variables, optionally seeded
// from a .env file. Variables already set in the environment win over the
// file. A missing remote URL is not an error: the ledger then runs
// local-only.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"

	"github.com/roach88/frugalflow/internal/lease"
	"github.com/roach88/frugalflow/internal/replication"
)

// Environment variable names.
const (
	EnvDB             = "FRUGALFLOW_DB"
	EnvRemoteURL      = "FRUGALFLOW_REMOTE_URL"
	EnvRemotePassword = "FRUGALFLOW_REMOTE_PASSWORD"
	EnvInstanceID     = "FRUGALFLOW_INSTANCE_ID"
	EnvLeaseBackend   = "FRUGALFLOW_LEASE_BACKEND"
	EnvLeaseTTL       = "FRUGALFLOW_LEASE_TTL"
	EnvHeartbeat      = "FRUGALFLOW_HEARTBEAT"
	EnvPushBatch      = "FRUGALFLOW_PUSH_BATCH"
	EnvPushInterval   = "FRUGALFLOW_PUSH_INTERVAL"
	EnvPullInterval   = "FRUGALFLOW_PULL_INTERVAL"
	EnvCurrency       = "FRUGALFLOW_CURRENCY"
)

// Lease backends.
const (
	LeaseLocal  = "local"
	LeaseRemote = "remote"
)

// DefaultDBPath is the database file used when FRUGALFLOW_DB is unset.
const DefaultDBPath = "frugalflow.db"

// Config holds resolved settings.
type Config struct {
	DBPath         string
	RemoteURL      string
	RemotePassword string
	InstanceID     string
	LeaseBackend   string
	LeaseTTL       time.Duration
	Heartbeat      time.Duration
	PushBatch      int
	PushInterval   time.Duration
	PullInterval   time.Duration
	Currency       string
}

// ReplicationEnabled reports whether a remote is configured.
func (c *Config) ReplicationEnabled() bool {
	return c.RemoteURL != ""
}

// Settings returns the replication settings derived from c.
func (c *Config) Settings() replication.Settings {
	return replication.Settings{
		PushBatchSize: c.PushBatch,
		PushInterval:  c.PushInterval,
		PullInterval:  c.PullInterval,
	}
}

// Load reads the given .env files (".env" if none are named), then
// resolves settings from the environment. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves settings using lookup for each variable. Every
// invalid value is reported; none is silently replaced by a default.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		DBPath:         p.str(EnvDB, DefaultDBPath),
		RemoteURL:      p.str(EnvRemoteURL, ""),
		RemotePassword: p.str(EnvRemotePassword, ""),
		InstanceID:     p.str(EnvInstanceID, defaultInstanceID()),
		LeaseBackend:   strings.ToLower(p.str(EnvLeaseBackend, LeaseLocal)),
		LeaseTTL:       p.duration(EnvLeaseTTL, lease.DefaultTTL),
		Heartbeat:      p.duration(EnvHeartbeat, lease.DefaultHeartbeat),
		PushBatch:      p.integer(EnvPushBatch, replication.DefaultPushBatchSize),
		PushInterval:   p.duration(EnvPushInterval, replication.DefaultPushInterval),
		PullInterval:   p.duration(EnvPullInterval, replication.DefaultPullInterval),
		Currency:       strings.ToUpper(p.str(EnvCurrency, money.USD)),
	}

	switch cfg.LeaseBackend {
	case LeaseLocal:
	case LeaseRemote:
		if cfg.RemoteURL == "" {
			p.fail(EnvLeaseBackend, "remote lease requires %s", EnvRemoteURL)
		}
	default:
		p.fail(EnvLeaseBackend, "must be %q or %q, got %q", LeaseLocal, LeaseRemote, cfg.LeaseBackend)
	}
	if cfg.Heartbeat >= cfg.LeaseTTL {
		p.fail(EnvHeartbeat, "heartbeat %s must be shorter than lease ttl %s", cfg.Heartbeat, cfg.LeaseTTL)
	}
	if cfg.PushBatch < 1 {
		p.fail(EnvPushBatch, "must be positive, got %d", cfg.PushBatch)
	}
	if money.GetCurrency(cfg.Currency) == nil {
		p.fail(EnvCurrency, "unknown currency %q", cfg.Currency)
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) fail(name, format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf("%s: %s", name, fmt.Sprintf(format, args...)))
}

func (p *parser) str(name, def string) string {
	v, ok := p.lookup(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def
	}
	return v
}

func (p *parser) duration(name string, def time.Duration) time.Duration {
	v := p.str(name, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(name, "invalid duration %q", v)
		return def
	}
	if d <= 0 {
		p.fail(name, "must be positive, got %s", d)
		return def
	}
	return d
}

func (p *parser) integer(name string, def int) int {
	v := p.str(name, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(name, "invalid integer %q", v)
		return def
	}
	return n
}
