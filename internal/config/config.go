// Package config настройки backoffice: значения по умолчанию → YAML-файл →
// переменные окружения BACKOFFICE_* → флаги командной строки.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения: server.addr → BACKOFFICE_SERVER_ADDR.
const EnvPrefix = "BACKOFFICE"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Remote RemoteConfig `mapstructure:"remote"`
	Mirror MirrorConfig `mapstructure:"mirror"`
	Blob   BlobConfig   `mapstructure:"blob"`
	Schema SchemaConfig `mapstructure:"schema"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"` // пусто = без проверки
}

type RemoteConfig struct {
	BaseURL      string        `mapstructure:"base_url"` // пусто = работа только локально
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UpdateMethod string        `mapstructure:"update_method"` // PUT | PATCH
}

type MirrorConfig struct {
	Driver string `mapstructure:"driver"` // memory | file | sqlite | postgres
	Path   string `mapstructure:"path"`   // file: каталог, sqlite: файл базы
	DSN    string `mapstructure:"dsn"`    // postgres
}

type BlobConfig struct {
	Root        string `mapstructure:"root"`
	BaseURL     string `mapstructure:"base_url"`
	Placeholder string `mapstructure:"placeholder"`
}

type SchemaConfig struct {
	Dir      string `mapstructure:"dir"`      // дополнительные .dsl поверх встроенных
	Catalogs string `mapstructure:"catalogs"` // дополнительные YAML-справочники
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}

var defaults = map[string]any{
	"server.addr":          ":8080",
	"server.admin_token":   "",
	"remote.base_url":      "",
	"remote.token":         "",
	"remote.timeout":       "10s",
	"remote.update_method": "PATCH",
	"mirror.driver":        "file",
	"mirror.path":          "data",
	"mirror.dsn":           "",
	"blob.root":            "uploads",
	"blob.base_url":        "/files/",
	"blob.placeholder":     "/static/placeholder.png",
	"schema.dir":           "",
	"schema.catalogs":      "",
	"log.level":            "info",
	"log.format":           "text",
}

// Keys все известные ключи в стабильном порядке.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Binder подключает внешние источники (обычно флаги cobra) к viper.
type Binder func(v *viper.Viper) error

// Load читает конфигурацию. Пустой path: ищем backoffice.yaml в текущем каталоге;
// отсутствие файла не ошибка.
func Load(path string, binders ...Binder) (Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("backoffice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for _, b := range binders {
		if err := b(v); err != nil {
			return Config{}, fmt.Errorf("bind config: %w", err)
		}
	}
	return Decode(v)
}

// New viper с умолчаниями и окружением, без файла.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Decode собирает Config из viper и проверяет его.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) normalize() {
	c.Remote.UpdateMethod = strings.ToUpper(strings.TrimSpace(c.Remote.UpdateMethod))
	c.Mirror.Driver = strings.ToLower(strings.TrimSpace(c.Mirror.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Remote.BaseURL = strings.TrimSpace(c.Remote.BaseURL)
}

// Validate ошибки собираются все сразу.
func (c Config) Validate() error {
	var errs []error
	switch c.Remote.UpdateMethod {
	case "PUT", "PATCH":
	default:
		errs = append(errs, fmt.Errorf("remote.update_method must be PUT or PATCH, got %q", c.Remote.UpdateMethod))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote.timeout must be positive"))
	}
	switch c.Mirror.Driver {
	case "", "memory", "file", "sqlite", "postgres", "pg":
	default:
		errs = append(errs, fmt.Errorf("unknown mirror.driver %q", c.Mirror.Driver))
	}
	if (c.Mirror.Driver == "postgres" || c.Mirror.Driver == "pg") && c.Mirror.DSN == "" {
		errs = append(errs, errors.New("mirror.dsn is required for the postgres driver"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Offline нет адреса удалённого сервиса.
func (c Config) Offline() bool { return c.Remote.BaseURL == "" }
