package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	Telegram struct {
		Token        string
		AdminChatID  int64   `mapstructure:"admin_chat_id"`
		AllowedChats []int64 `mapstructure:"allowed_chats"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Storage struct {
		Driver string // postgres | sqlite
	} `mapstructure:"storage"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	SQLite struct {
		Path string
	} `mapstructure:"sqlite"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Redis struct {
		URL     string
		CodeTTL time.Duration `mapstructure:"code_ttl"`
	} `mapstructure:"redis"`

	RabbitMQ struct {
		URL      string
		Exchange string
	} `mapstructure:"rabbitmq"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Credentials struct {
		MaxAttempts int `mapstructure:"max_attempts"`
	} `mapstructure:"credentials"`

	Jobs struct {
		ExpirySweep string `mapstructure:"expiry_sweep"`
	} `mapstructure:"jobs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("sqlite.path", "subgate.db")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("redis.code_ttl", 24*time.Hour)
	v.SetDefault("rabbitmq.exchange", "subgate.access")
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("credentials.max_attempts", 10)
	v.SetDefault("jobs.expiry_sweep", "5 0 * * *")
}

// Load читает YAML и переопределения из окружения (APP_POSTGRES_DSN и т.п.).
// .env рядом с процессом подхватывается, если есть.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("config: postgres.dsn is required for postgres storage")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return errors.New("config: sqlite.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Credentials.MaxAttempts <= 0 {
		return errors.New("config: credentials.max_attempts must be > 0")
	}
	return nil
}

// Location: часовой пояс, в котором считаются «сегодня» и периоды.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}
