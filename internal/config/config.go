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

// EnvConfigPath names the env var holding the optional TOML config path.
const EnvConfigPath = "GAMEHOST_CONFIG"

const (
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	ListenAddr           string        `toml:"listen_addr"`
	BasePort             int           `toml:"base_port"`
	ContainerPort        int           `toml:"container_port"`
	MountTarget          string        `toml:"mount_target"`
	DefaultImage         string        `toml:"default_image"`
	DefaultContainerName string        `toml:"default_container_name"`
	EntryMarker          string        `toml:"entry_marker"`
	GamesRoot            string        `toml:"games_root"`
	ProxyDomain          string        `toml:"proxy_domain"`
	Env                  []string      `toml:"env"`
	RuntimeTimeout       time.Duration `toml:"runtime_timeout"`
	MaxPortRetries       int           `toml:"max_port_retries"`
	MaxNameRetries       int           `toml:"max_name_retries"`

	Registry RegistryConfig `toml:"registry"`
	Log      LogConfig      `toml:"log"`
}

type RegistryConfig struct {
	Backend         string `toml:"backend"`
	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`
	MongoCounters   string `toml:"mongo_counters"`
	RedisAddr       string `toml:"redis_addr"`
	RedisPassword   string `toml:"redis_password"`
	RedisDB         int    `toml:"redis_db"`
	RedisPrefix     string `toml:"redis_prefix"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

func Default() Config {
	return Config{
		ListenAddr:           ":8000",
		BasePort:             3000,
		ContainerPort:        3000,
		MountTarget:          "/game",
		DefaultImage:         "farrar142/mvix",
		DefaultContainerName: "my_container",
		EntryMarker:          "index.html",
		GamesRoot:            "./games",
		ProxyDomain:          "localhost",
		Env:                  []string{"DEBUG=true"},
		RuntimeTimeout:       10 * time.Second,
		MaxPortRetries:       100,
		MaxNameRetries:       5,
		Registry: RegistryConfig{
			Backend:         BackendMongo,
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "gamehost",
			MongoCollection: "games",
			MongoCounters:   "counters",
			RedisAddr:       "localhost:6379",
			RedisPrefix:     "gamehost:",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load applies, in order: defaults, the TOML file at path (if any),
// environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.BasePort < 1 || c.BasePort > 65534 {
		errs = append(errs, fmt.Errorf("base_port %d out of range 1..65534", c.BasePort))
	}
	if c.ContainerPort < 1 || c.ContainerPort > 65535 {
		errs = append(errs, fmt.Errorf("container_port %d out of range 1..65535", c.ContainerPort))
	}
	if c.RuntimeTimeout <= 0 {
		errs = append(errs, errors.New("runtime_timeout must be positive"))
	}
	if c.MaxPortRetries < 1 {
		errs = append(errs, errors.New("max_port_retries must be at least 1"))
	}
	if c.MaxNameRetries < 1 {
		errs = append(errs, errors.New("max_name_retries must be at least 1"))
	}
	if strings.TrimSpace(c.EntryMarker) == "" {
		errs = append(errs, errors.New("entry_marker is required"))
	}
	switch c.Registry.Backend {
	case BackendMongo, BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown registry backend %q", c.Registry.Backend))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) error {
	setString("GAMEHOST_LISTEN_ADDR", &cfg.ListenAddr)
	setString("GAMEHOST_MOUNT_TARGET", &cfg.MountTarget)
	setString("GAMEHOST_DEFAULT_IMAGE", &cfg.DefaultImage)
	setString("GAMEHOST_DEFAULT_CONTAINER_NAME", &cfg.DefaultContainerName)
	setString("GAMEHOST_ENTRY_MARKER", &cfg.EntryMarker)
	setString("GAMEHOST_GAMES_ROOT", &cfg.GamesRoot)
	setString("GAMEHOST_PROXY_DOMAIN", &cfg.ProxyDomain)
	setString("GAMEHOST_REGISTRY", &cfg.Registry.Backend)
	setString("GAMEHOST_MONGO_URI", &cfg.Registry.MongoURI)
	setString("GAMEHOST_MONGO_DATABASE", &cfg.Registry.MongoDatabase)
	setString("GAMEHOST_MONGO_COLLECTION", &cfg.Registry.MongoCollection)
	setString("GAMEHOST_REDIS_ADDR", &cfg.Registry.RedisAddr)
	setString("GAMEHOST_REDIS_PASSWORD", &cfg.Registry.RedisPassword)
	setString("GAMEHOST_REDIS_PREFIX", &cfg.Registry.RedisPrefix)
	setString("GAMEHOST_LOG_LEVEL", &cfg.Log.Level)

	var err error
	if cfg.BasePort, err = getInt("GAMEHOST_BASE_PORT", cfg.BasePort); err != nil {
		return err
	}
	if cfg.ContainerPort, err = getInt("GAMEHOST_CONTAINER_PORT", cfg.ContainerPort); err != nil {
		return err
	}
	if cfg.MaxPortRetries, err = getInt("GAMEHOST_MAX_PORT_RETRIES", cfg.MaxPortRetries); err != nil {
		return err
	}
	if cfg.MaxNameRetries, err = getInt("GAMEHOST_MAX_NAME_RETRIES", cfg.MaxNameRetries); err != nil {
		return err
	}
	if cfg.Registry.RedisDB, err = getInt("GAMEHOST_REDIS_DB", cfg.Registry.RedisDB); err != nil {
		return err
	}
	if cfg.RuntimeTimeout, err = getDuration("GAMEHOST_RUNTIME_TIMEOUT", cfg.RuntimeTimeout); err != nil {
		return err
	}
	if cfg.Log.Console, err = getBool("GAMEHOST_LOG_CONSOLE", cfg.Log.Console); err != nil {
		return err
	}
	return nil
}

func setString(envKey string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = v
	}
}

// Helper function to parse duration from environment variable
func getDuration(envKey string, defaultVal time.Duration) (time.Duration, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format for %s: %w", envKey, err)
	}
	return d, nil
}

// Helper function to parse int from environment variable
func getInt(envKey string, defaultVal int) (int, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer format for %s: %w", envKey, err)
	}
	return i, nil
}

func getBool(envKey string, defaultVal bool) (bool, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(valStr)
	if err != nil {
		return false, fmt.Errorf("invalid boolean format for %s: %w", envKey, err)
	}
	return b, nil
}
