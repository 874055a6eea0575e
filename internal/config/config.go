package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	LogLevel     string  `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort     string  `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort   string  `yaml:"socket-port" env:"SOCKET_PORT" env-default:"7000"`
	Storage      string  `yaml:"storage" env:"STORAGE" env-default:"redis"`
	Redis        Redis   `yaml:"redis"`
	JWTSecretKey string  `yaml:"jwt-secret-key" env:"JWT_SECRET_KEY"`
	Session      Session `yaml:"session"`

	// Users seeds the user directory; only the memory storage needs it.
	Users []User `yaml:"users"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

type Session struct {
	SweepInterval time.Duration `yaml:"sweep-interval" env-default:"1m"`
	IdleTTL       time.Duration `yaml:"idle-ttl" env-default:"10m"`
	SendBuffer    int           `yaml:"send-buffer" env-default:"32"`
}

type User struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Config) validate() error {
	switch that.Storage {
	case StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q", that.Storage)
	}

	if that.JWTSecretKey == "" {
		return fmt.Errorf("jwt-secret-key is required")
	}

	if that.Session.SendBuffer <= 0 {
		return fmt.Errorf("session.send-buffer must be positive")
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
