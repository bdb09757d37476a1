// Package config loads the todo service settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTable  = "table"

	EventsNone  = "none"
	EventsQueue = "queue"
	EventsRedis = "redis"
)

const (
	DefaultPort           = 9000
	DefaultTodosTable     = "Todos"
	DefaultPartitionKey   = "todos"
	DefaultEventsQueue    = "todo-events"
	DefaultEventsChannel  = "todo-events"
	DefaultPublishWorkers = 4
	DefaultPublishBuffer  = 1024
	DefaultHandoff        = 15 * time.Millisecond
	DefaultStreamInterval = 5 * time.Second
)

// Config holds every runtime setting of the service.
type Config struct {
	Port  int  `toml:"port"`
	Debug bool `toml:"debug"`

	Backend     string `toml:"backend"`
	RedisURL    string `toml:"redis_url"`
	RedisPrefix string `toml:"redis_prefix"`

	StorageConnectionString string        `toml:"storage_connection_string"`
	TodosTable              string        `toml:"todos_table"`
	PartitionKey            string        `toml:"partition_key"`
	CacheTTL                time.Duration `toml:"cache_ttl"`

	Events         string        `toml:"events"`
	EventsQueue    string        `toml:"events_queue"`
	EventsChannel  string        `toml:"events_channel"`
	PublishWorkers int           `toml:"publish_workers"`
	PublishBuffer  int           `toml:"publish_buffer"`
	PublishHandoff time.Duration `toml:"publish_handoff"`

	StreamInterval time.Duration `toml:"stream_interval"`
	Pprof          bool          `toml:"pprof"`
	Tracing        bool          `toml:"tracing"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		Backend:        BackendMemory,
		TodosTable:     DefaultTodosTable,
		PartitionKey:   DefaultPartitionKey,
		Events:         EventsNone,
		EventsQueue:    DefaultEventsQueue,
		EventsChannel:  DefaultEventsChannel,
		PublishWorkers: DefaultPublishWorkers,
		PublishBuffer:  DefaultPublishBuffer,
		PublishHandoff: DefaultHandoff,
		StreamInterval: DefaultStreamInterval,
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path and finally the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := loadFromEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.Events = strings.ToLower(strings.TrimSpace(cfg.Events))
	if cfg.Events == "" {
		cfg.Events = EventsNone
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = b
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = d
	}

	integer("PORT", &cfg.Port)
	boolean("DEBUG", &cfg.Debug)
	str("TODO_BACKEND", &cfg.Backend)
	str("REDIS_CONNECTION_STRING", &cfg.RedisURL)
	str("REDIS_PREFIX", &cfg.RedisPrefix)
	str("STORAGE_CONNECTION_STRING", &cfg.StorageConnectionString)
	str("TODOS_TABLE", &cfg.TodosTable)
	str("TODOS_PARTITION", &cfg.PartitionKey)
	duration("TODOS_CACHE_TTL", &cfg.CacheTTL)
	str("TODO_EVENTS", &cfg.Events)
	str("TODO_EVENTS_QUEUE", &cfg.EventsQueue)
	str("TODO_EVENTS_CHANNEL", &cfg.EventsChannel)
	integer("PUBLISH_WORKERS", &cfg.PublishWorkers)
	integer("PUBLISH_BUFFER", &cfg.PublishBuffer)
	duration("PUBLISH_HANDOFF_TIMEOUT", &cfg.PublishHandoff)
	duration("STREAM_INTERVAL", &cfg.StreamInterval)
	boolean("PPROF_ENABLED", &cfg.Pprof)
	boolean("TRACING_ENABLED", &cfg.Tracing)

	return errors.Join(errs...)
}

// Validate reports settings that cannot be served.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}

	switch strings.ToLower(c.Backend) {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("missing redis config"))
		}
	case BackendTable:
		if c.StorageConnectionString == "" || c.TodosTable == "" {
			errs = append(errs, errors.New("missing storage config"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch strings.ToLower(c.Events) {
	case EventsNone, "":
	case EventsQueue:
		if c.StorageConnectionString == "" || c.EventsQueue == "" {
			errs = append(errs, errors.New("missing queue config"))
		}
	case EventsRedis:
		if c.RedisURL == "" || c.EventsChannel == "" {
			errs = append(errs, errors.New("missing redis events config"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events sink %q", c.Events))
	}

	if c.CacheTTL > 0 && c.RedisURL == "" {
		errs = append(errs, errors.New("cache_ttl requires redis config"))
	}
	// Memory is per process; a shared snapshot would mix replicas.
	if c.CacheTTL > 0 && strings.EqualFold(c.Backend, BackendMemory) {
		errs = append(errs, errors.New("cache_ttl requires a shared backend"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("invalid cache_ttl %v", c.CacheTTL))
	}
	if c.StreamInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid stream_interval %v", c.StreamInterval))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// NeedsRedis reports whether any component talks to Redis.
func (c Config) NeedsRedis() bool {
	return strings.EqualFold(c.Backend, BackendRedis) || strings.EqualFold(c.Events, EventsRedis) || c.CacheTTL > 0
}
