package warden

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// StoreVendor selects the persistence adapter backing the control plane
// collections.
type StoreVendor string

const (
	StoreMemory StoreVendor = "memory"
	StoreFS     StoreVendor = "fs"
	StoreSQLite StoreVendor = "sqlite"
)

// Config is a serialisable representation of the control plane
// configuration. It can be populated from JSON or YAML; the zero-value is
// useful - all nested fields inherit their package defaults.
type Config struct {
	Store         StoreConfig `json:"store" yaml:"store"`
	Queue         QueueConfig `json:"queue" yaml:"queue"`
	PolicySeedURL string      `json:"policySeedURL,omitempty" yaml:"policySeedURL,omitempty"`
}

// StoreConfig selects and parameterises the persistence adapter. BaseURL
// is the afs location for the fs vendor; DSN is the database file for the
// sqlite vendor.
type StoreConfig struct {
	Vendor  StoreVendor `json:"vendor" yaml:"vendor"`
	BaseURL string      `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	DSN     string      `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// QueueVendor selects the queue implementation carrying control plane
// events.
type QueueVendor string

const (
	QueueMemory QueueVendor = "memory"
	QueueFS     QueueVendor = "fs"
)

// QueueConfig parameterises the event queues. BaseURL is the afs location
// for the fs vendor.
type QueueConfig struct {
	Vendor       QueueVendor `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	BaseURL      string      `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	Buffer       int         `json:"buffer" yaml:"buffer"`
	MaxRetries   int         `json:"maxRetries" yaml:"maxRetries"`
	RetryDelayMs int         `json:"retryDelayMs" yaml:"retryDelayMs"`
}

// RetryDelay returns the configured retry delay as a duration.
func (c QueueConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// DefaultConfig returns a Config populated with the defaults otherwise
// hard-coded in the constructors. Callers may modify the returned struct
// before passing it to NewFromConfig.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{Vendor: StoreMemory},
		Queue: QueueConfig{Vendor: QueueMemory, Buffer: 100, MaxRetries: 3, RetryDelayMs: 100},
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Store.Vendor {
	case "", StoreMemory:
	case StoreFS:
		if c.Store.BaseURL == "" {
			return fmt.Errorf("store.baseURL is required for the fs vendor")
		}
	case StoreSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the sqlite vendor")
		}
	default:
		return fmt.Errorf("unknown store.vendor %q", c.Store.Vendor)
	}
	switch c.Queue.Vendor {
	case "", QueueMemory:
	case QueueFS:
		if c.Queue.BaseURL == "" {
			return fmt.Errorf("queue.baseURL is required for the fs vendor")
		}
	default:
		return fmt.Errorf("unknown queue.vendor %q", c.Queue.Vendor)
	}
	if c.Queue.Buffer < 0 || c.Queue.MaxRetries < 0 || c.Queue.RetryDelayMs < 0 {
		return fmt.Errorf("queue settings must not be negative")
	}
	return nil
}

// LoadConfig reads and decodes a YAML (or JSON, a YAML subset) Config from
// the supplied afs URL.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("loading config from %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("decoding config from %v: %w", URL, err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
