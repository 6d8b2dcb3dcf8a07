package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	JWT       JWT
	Logger    Logger
	Presence  Presence
	Fanout    Fanout
	Messaging Messaging
}

type Server struct {
	Port           string
	AllowedOrigins string
	CSRFMode       string
	BodyLimit      int
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type JWT struct {
	Secret string
}

type Logger struct {
	Development bool
	Level       string
}

type Presence struct {
	Window        time.Duration
	SweepInterval time.Duration
}

type Fanout struct {
	// Relay is "local" for a single instance or "redis" to share events
	// and sequence counters between instances.
	Relay            string
	SubscriberBuffer int
	ReorderWindow    time.Duration
}

type Messaging struct {
	MaxBodyLength int
	SendTimeout   time.Duration
}

// DSN builds the postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowedorigins", "")
	v.SetDefault("server.csrfmode", "token")
	v.SetDefault("server.bodylimit", 1024*1024)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "confession_wall")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "")

	v.SetDefault("logger.development", false)
	v.SetDefault("logger.level", "info")

	v.SetDefault("presence.window", 5*time.Minute)
	v.SetDefault("presence.sweepinterval", 30*time.Second)

	v.SetDefault("fanout.relay", "local")
	v.SetDefault("fanout.subscriberbuffer", 64)
	v.SetDefault("fanout.reorderwindow", 500*time.Millisecond)

	v.SetDefault("messaging.maxbodylength", 4000)
	v.SetDefault("messaging.sendtimeout", 5*time.Second)
}

// New returns a viper instance reading config/<name>.yaml (optional) with
// environment overrides such as DATABASE_HOST or PRESENCE_WINDOW.
func New(name string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func Parse(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if c.Presence.Window <= 0 {
		return nil, errors.New("PRESENCE_WINDOW must be positive")
	}
	if c.Fanout.Relay != "local" && c.Fanout.Relay != "redis" {
		return nil, fmt.Errorf("FANOUT_RELAY must be local or redis, got %q", c.Fanout.Relay)
	}
	return &c, nil
}

// Load reads .env (if present), then config/config.yaml and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v, err := New("config")
	if err != nil {
		return nil, err
	}
	return Parse(v)
}
