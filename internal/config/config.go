package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Questions QuestionsConfig `yaml:"questions"`
	Room      RoomConfig      `yaml:"room"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // text | json
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	TTL      string `yaml:"ttl" env:"REDIS_TTL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type QuestionsConfig struct {
	TTL      string `yaml:"ttl" env:"QUESTIONS_TTL"`
	SeedFile string `yaml:"seed_file" env:"QUESTIONS_SEED_FILE"`
}

type RoomConfig struct {
	IdleTTL                string `yaml:"idle_ttl" env:"ROOM_IDLE_TTL"`
	ReapInterval           string `yaml:"reap_interval" env:"ROOM_REAP_INTERVAL"`
	DefaultPattern         string `yaml:"default_pattern" env:"ROOM_DEFAULT_PATTERN"`
	DefaultQuestionCount   int    `yaml:"default_question_count" env:"ROOM_DEFAULT_QUESTION_COUNT"`
	DefaultTimePerQuestion int    `yaml:"default_time_per_question" env:"ROOM_DEFAULT_TIME_PER_QUESTION"`
}

// Load reads YAML config from path, then overlays environment variables.
// A missing file is not an error; the environment alone can configure the service.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
