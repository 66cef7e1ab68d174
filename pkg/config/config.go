package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	General       GeneralConfig
	SQLite        SQLiteConfig
	Review        ReviewConfig
	Notifications NotificationsConfig
	Neo4j         Neo4jConfig
	Redis         RedisConfig
	Metrics       MetricsConfig
	Logging       LoggingConfig
}

type GeneralConfig struct {
	Editor  string
	DataDir string
}

type SQLiteConfig struct {
	Path string
}

type ReviewConfig struct {
	LookaheadDays int
}

type NotificationsConfig struct {
	Enabled      bool
	ReminderTime string
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	TTLSeconds int
}

type MetricsConfig struct {
	Textfile string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads config.toml from explicitPath when given, otherwise from
// $LERNI_HOME, ~/.lerni and the working directory, in that order.
// A missing file leaves every value at its default.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	home := homeDir()
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		if env := os.Getenv("LERNI_HOME"); env != "" {
			v.AddConfigPath(env)
		}
		v.AddConfigPath(home)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LERNI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = filepath.Join(cfg.General.DataDir, "lerni.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Review.LookaheadDays < 0 {
		return fmt.Errorf("review.lookaheadDays must be >= 0, got %d", c.Review.LookaheadDays)
	}
	if _, err := time.Parse("15:04", c.Notifications.ReminderTime); err != nil {
		return fmt.Errorf("notifications.reminderTime must be HH:MM, got %q", c.Notifications.ReminderTime)
	}
	return nil
}

// Editor picks the external editor: configured value, then $EDITOR, then
// $VISUAL, then vim.
func (c *Config) Editor() string {
	if c.General.Editor != "" {
		return c.General.Editor
	}
	for _, key := range []string{"EDITOR", "VISUAL"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "vim"
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

func homeDir() string {
	if env := os.Getenv("LERNI_HOME"); env != "" {
		return env
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".lerni")
	}
	return ".lerni"
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("general.editor", "")
	v.SetDefault("general.dataDir", home)

	v.SetDefault("sqlite.path", "")

	v.SetDefault("review.lookaheadDays", 7)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.reminderTime", "09:00")

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSeconds", 300)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.outputPath", "stderr")
}
