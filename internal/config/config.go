package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "threadgraph.yaml"

// Config is the runtime configuration of the threadgraph binary.
type Config struct {
	Log      LogConfig      `yaml:"log" json:"log"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Archive  ArchiveConfig  `yaml:"archive" json:"archive"`
	Model    ModelConfig    `yaml:"model" json:"model"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// StoreConfig selects the checkpoint store.
type StoreConfig struct {
	// Driver is one of memory, file, redis or sqlite.
	Driver    string        `yaml:"driver" json:"driver"`
	Path      string        `yaml:"path" json:"path"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	Prefix    string        `yaml:"prefix" json:"prefix"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	Retention int           `yaml:"retention" json:"retention"`
}

// ArchiveConfig selects the thread archive used to resume chats.
type ArchiveConfig struct {
	// Driver is memory, sqlite or loam. An sqlite archive shares the store's
	// database when Path is empty and the store is sqlite too. A loam archive
	// keeps one markdown document per thread under Path.
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
}

type ModelConfig struct {
	// Provider is echo or openai.
	Provider     string   `yaml:"provider" json:"provider"`
	Name         string   `yaml:"name" json:"name"`
	BaseURL      string   `yaml:"base_url" json:"base_url"`
	APIKey       string   `yaml:"api_key" json:"api_key"`
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt"`
	Temperature  *float64 `yaml:"temperature" json:"temperature"`
	Window       int      `yaml:"window" json:"window"`
	Stream       *bool    `yaml:"stream" json:"stream"`
	// Timeout bounds a non-streaming call and the wait for a stream to start.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type EngineConfig struct {
	Name       string        `yaml:"name" json:"name"`
	MaxSteps   int           `yaml:"max_steps" json:"max_steps"`
	TurnPolicy string        `yaml:"turn_policy" json:"turn_policy"`
	LockTTL    time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
	// DistributedLock serializes turns across processes through the redis store.
	DistributedLock bool `yaml:"distributed_lock" json:"distributed_lock"`
}

type SecurityConfig struct {
	// EncryptionKey is a base64 encoded 32-byte key. Empty disables encryption.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`
	RedactFields  []string `yaml:"redact_fields" json:"redact_fields"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Store:   StoreConfig{Driver: "memory"},
		Archive: ArchiveConfig{Driver: "memory"},
		Model:   ModelConfig{Provider: "echo"},
		Engine: EngineConfig{
			Name:       "chat",
			MaxSteps:   25,
			TurnPolicy: "queue",
			LockTTL:    30 * time.Second,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads path (YAML, or JSON by extension) over the defaults and applies
// THREADGRAPH_* environment overrides. An empty path tries DefaultFile and
// silently falls back to defaults when it is absent.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"THREADGRAPH_LOG_LEVEL":      &c.Log.Level,
		"THREADGRAPH_LOG_FORMAT":     &c.Log.Format,
		"THREADGRAPH_STORE":          &c.Store.Driver,
		"THREADGRAPH_STORE_PATH":     &c.Store.Path,
		"THREADGRAPH_REDIS_ADDR":     &c.Store.RedisAddr,
		"THREADGRAPH_ARCHIVE":        &c.Archive.Driver,
		"THREADGRAPH_ARCHIVE_PATH":   &c.Archive.Path,
		"THREADGRAPH_MODEL_PROVIDER": &c.Model.Provider,
		"THREADGRAPH_MODEL":          &c.Model.Name,
		"THREADGRAPH_MODEL_BASE_URL": &c.Model.BaseURL,
		"THREADGRAPH_SYSTEM_PROMPT":  &c.Model.SystemPrompt,
		"THREADGRAPH_TURN_POLICY":    &c.Engine.TurnPolicy,
		"THREADGRAPH_ENCRYPTION_KEY": &c.Security.EncryptionKey,
		"THREADGRAPH_ADDR":           &c.Server.Addr,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	// The conventional variable is honoured, the namespaced one wins.
	for _, key := range []string{"OPENAI_API_KEY", "THREADGRAPH_API_KEY"} {
		if v, ok := lookup(key); ok && v != "" {
			c.Model.APIKey = v
		}
	}

	if v, ok := lookup("THREADGRAPH_MAX_STEPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid THREADGRAPH_MAX_STEPS: %w", err)
		}
		c.Engine.MaxSteps = n
	}
	if v, ok := lookup("THREADGRAPH_STORE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid THREADGRAPH_STORE_TTL: %w", err)
		}
		c.Store.TTL = d
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "memory", "file", "sqlite":
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Archive.Driver {
	case "memory":
	case "sqlite":
		if c.Archive.Path == "" && c.Store.Driver != "sqlite" {
			errs = append(errs, errors.New("archive.path is required unless the store is sqlite"))
		}
	case "loam":
		if c.Archive.Path == "" {
			errs = append(errs, errors.New("archive.path is required for the loam archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}

	switch c.Model.Provider {
	case "echo":
	case "openai":
		if c.Model.Name == "" {
			errs = append(errs, errors.New("model.name is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model provider %q", c.Model.Provider))
	}

	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, errors.New("engine.max_steps must be positive"))
	}
	switch c.Engine.TurnPolicy {
	case "queue", "reject":
	default:
		errs = append(errs, fmt.Errorf("unknown turn policy %q", c.Engine.TurnPolicy))
	}
	if c.Engine.DistributedLock && c.Store.Driver != "redis" {
		errs = append(errs, errors.New("engine.distributed_lock requires the redis store"))
	}

	if _, _, err := c.Security.Keys(); err != nil {
		errs = append(errs, err)
	}
	for _, pattern := range c.Security.RedactFields {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("security.redact_fields: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Keys decodes the encryption keys. A nil active key means encryption is off.
func (s SecurityConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, errors.New("security.fallback_keys set without security.encryption_key")
		}
		return nil, nil, nil
	}
	if active, err = decodeKey(s.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("security.encryption_key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("security.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
