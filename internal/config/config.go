package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"wisefido-power/internal/common/config"

	"gopkg.in/yaml.v3"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config power monitor settings
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Reading struct {
		Backend  string        `yaml:"backend"` // file | redis
		Path     string        `yaml:"path"`
		RedisKey string        `yaml:"redis_key"`
		MaxAge   time.Duration `yaml:"max_age"` // 0 disables the staleness check
	} `yaml:"reading"`

	Sampler struct {
		Interval time.Duration `yaml:"interval"`
		MaxScale int64         `yaml:"max_scale"` // gauge full scale in watts
	} `yaml:"sampler"`

	History struct {
		Backend string `yaml:"backend"` // file | postgres
		Path    string `yaml:"path"`
	} `yaml:"history"`

	Live struct {
		BufferSize   int           `yaml:"buffer_size"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		Mirror       struct {
			Enabled bool   `yaml:"enabled"`
			Stream  string `yaml:"stream"`
		} `yaml:"mirror"`
	} `yaml:"live"`

	Ingest struct {
		MQTT struct {
			Enabled bool   `yaml:"enabled"`
			Topic   string `yaml:"topic"`
		} `yaml:"mqtt"`
		Socket struct {
			Enabled bool   `yaml:"enabled"`
			Path    string `yaml:"path"`
		} `yaml:"socket"`
	} `yaml:"ingest"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
}

// Load defaults, then the YAML file named by POWER_CONFIG_FILE (if any), then
// environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("POWER_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "owlrd"
	cfg.Database.SSLMode = "disable"

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-power"
	cfg.MQTT.QoS = 1

	cfg.HTTP.Addr = ":8080"

	cfg.Reading.Backend = BackendFile
	cfg.Reading.Path = "/tmp/curr_pow.txt"
	cfg.Reading.RedisKey = "power:instant:latest"

	cfg.Sampler.Interval = time.Second
	cfg.Sampler.MaxScale = 6000

	cfg.History.Backend = BackendFile
	cfg.History.Path = "/var/lib/wisefido-power/pow_history.csv"

	cfg.Live.BufferSize = 16
	cfg.Live.WriteTimeout = 2 * time.Second
	cfg.Live.Mirror.Stream = "power:live:stream"

	cfg.Ingest.MQTT.Topic = "power/instant"
	cfg.Ingest.Socket.Path = "/tmp/sem.sock"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

func (c *Config) applyEnv() error {
	c.Database.LoadFromEnv("DB")
	c.Redis.LoadFromEnv("REDIS")
	c.MQTT.LoadFromEnv("MQTT")

	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Reading.Backend = getEnv("POWER_READING_BACKEND", c.Reading.Backend)
	c.Reading.Path = getEnv("POWER_READING_PATH", c.Reading.Path)
	c.Reading.RedisKey = getEnv("POWER_READING_REDIS_KEY", c.Reading.RedisKey)
	c.History.Backend = getEnv("POWER_HISTORY_BACKEND", c.History.Backend)
	c.History.Path = getEnv("POWER_HISTORY_PATH", c.History.Path)
	c.Live.Mirror.Stream = getEnv("LIVE_MIRROR_STREAM", c.Live.Mirror.Stream)
	c.Ingest.MQTT.Topic = getEnv("POWER_MQTT_TOPIC", c.Ingest.MQTT.Topic)
	c.Ingest.Socket.Path = getEnv("POWER_SOCKET_PATH", c.Ingest.Socket.Path)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	var err error
	if c.Reading.MaxAge, err = getEnvDuration("POWER_READING_MAX_AGE", c.Reading.MaxAge); err != nil {
		return err
	}
	if c.Sampler.Interval, err = getEnvDuration("POWER_SAMPLE_INTERVAL", c.Sampler.Interval); err != nil {
		return err
	}
	if c.Live.WriteTimeout, err = getEnvDuration("LIVE_WRITE_TIMEOUT", c.Live.WriteTimeout); err != nil {
		return err
	}
	if c.Sampler.MaxScale, err = getEnvInt64("POWER_MAX_SCALE", c.Sampler.MaxScale); err != nil {
		return err
	}
	bufferSize, err := getEnvInt64("LIVE_BUFFER_SIZE", int64(c.Live.BufferSize))
	if err != nil {
		return err
	}
	c.Live.BufferSize = int(bufferSize)

	if c.Live.Mirror.Enabled, err = getEnvBool("LIVE_MIRROR_ENABLED", c.Live.Mirror.Enabled); err != nil {
		return err
	}
	if c.Ingest.MQTT.Enabled, err = getEnvBool("MQTT_ENABLED", c.Ingest.MQTT.Enabled); err != nil {
		return err
	}
	if c.Ingest.Socket.Enabled, err = getEnvBool("POWER_SOCKET_ENABLED", c.Ingest.Socket.Enabled); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Reading.Backend {
	case BackendFile:
		if c.Reading.Path == "" {
			return fmt.Errorf("reading.path is required for the file backend")
		}
	case BackendRedis:
		if c.Reading.RedisKey == "" {
			return fmt.Errorf("reading.redis_key is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported reading backend: %s", c.Reading.Backend)
	}

	switch c.History.Backend {
	case BackendFile:
		if c.History.Path == "" {
			return fmt.Errorf("history.path is required for the file backend")
		}
	case BackendPostgres:
	default:
		return fmt.Errorf("unsupported history backend: %s", c.History.Backend)
	}

	if c.Reading.MaxAge < 0 {
		return fmt.Errorf("reading.max_age must not be negative")
	}
	if c.Sampler.Interval <= 0 {
		return fmt.Errorf("sampler.interval must be positive")
	}
	if c.Sampler.MaxScale <= 0 {
		return fmt.Errorf("sampler.max_scale must be positive")
	}
	if c.Live.BufferSize <= 0 {
		return fmt.Errorf("live.buffer_size must be positive")
	}
	if c.Live.WriteTimeout <= 0 {
		return fmt.Errorf("live.write_timeout must be positive")
	}
	if c.Live.Mirror.Enabled && c.Live.Mirror.Stream == "" {
		return fmt.Errorf("live.mirror.stream is required when the mirror is enabled")
	}
	if c.Ingest.MQTT.Enabled && c.Ingest.MQTT.Topic == "" {
		return fmt.Errorf("ingest.mqtt.topic is required when MQTT ingest is enabled")
	}
	if c.Ingest.Socket.Enabled && c.Ingest.Socket.Path == "" {
		return fmt.Errorf("ingest.socket.path is required when socket ingest is enabled")
	}
	return nil
}

// UsesRedis any component configured against Redis
func (c *Config) UsesRedis() bool {
	return c.Reading.Backend == BackendRedis || c.Live.Mirror.Enabled
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
