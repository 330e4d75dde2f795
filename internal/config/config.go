// Package config wraps viper for omicsview binaries and defines the
// application configuration they share.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is a nil-safe view over a viper instance.
type Config struct {
	v *viper.Viper
}

// New wraps v. A nil v behaves as an empty configuration.
func New(v *viper.Viper) *Config {
	if v == nil {
		v = viper.New()
	}
	return &Config{v: v}
}

func (c *Config) GetString(key string) string          { return c.v.GetString(key) }
func (c *Config) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *Config) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *Config) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *Config) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *Config) IsSet(key string) bool                { return c.v.IsSet(key) }

// Sub returns the subtree rooted at key. A missing key yields an empty
// Config, never nil.
func (c *Config) Sub(key string) *Config {
	return New(c.v.Sub(key))
}

// Unmarshal decodes the whole configuration into target.
func (c *Config) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// Viper returns the underlying viper instance.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// Push transports.
const (
	TransportNone      = "none"
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)

// App is the configuration shared by the omicsview binaries.
type App struct {
	Server  ServerConfig           `mapstructure:"server"`
	Push    PushConfig             `mapstructure:"push"`
	View    ViewConfig             `mapstructure:"view"`
	Metrics MetricsConfig          `mapstructure:"metrics"`
	Tables  map[string]TableConfig `mapstructure:"tables"`
	Network NetworkConfig          `mapstructure:"network"`
	Stub    StubConfig             `mapstructure:"stub"`
}

// ServerConfig locates the API the views read from.
type ServerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RequestRate caps outgoing requests per second; 0 disables the limit.
	RequestRate float64 `mapstructure:"request_rate"`
	RequestBurst int    `mapstructure:"request_burst"`
}

// PushConfig selects the notification channel.
type PushConfig struct {
	Transport       string        `mapstructure:"transport"`
	URL             string        `mapstructure:"url"`
	MQTTTopicPrefix string        `mapstructure:"mqtt_topic_prefix"`
	MQTTClientID    string        `mapstructure:"mqtt_client_id"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
}

// ViewConfig holds defaults applied to every table.
type ViewConfig struct {
	PageSize      int           `mapstructure:"page_size"`
	QuietInterval time.Duration `mapstructure:"quiet_interval"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TableConfig overrides the endpoint or push topic of one table.
type TableConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Topic    string `mapstructure:"topic"`
	PageSize int    `mapstructure:"page_size"`
}

// NetworkConfig configures the gene association network panel.
type NetworkConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	StyleFile string `mapstructure:"style_file"`
}

// StubConfig configures the dev stub server.
type StubConfig struct {
	Addr string `mapstructure:"addr"`
	Rows int    `mapstructure:"rows"`
	// Latency delays every API response, to make supersession visible.
	Latency time.Duration `mapstructure:"latency"`
	// RequestRate caps served requests per second; 0 disables the limit.
	RequestRate float64 `mapstructure:"request_rate"`
}

// SetDefaults installs the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.request_rate", 0)
	v.SetDefault("server.request_burst", 1)
	v.SetDefault("push.transport", TransportNone)
	v.SetDefault("push.url", "")
	v.SetDefault("push.mqtt_topic_prefix", "omicsview")
	v.SetDefault("push.mqtt_client_id", "")
	v.SetDefault("push.reconnect_delay", 2*time.Second)
	v.SetDefault("view.page_size", 10)
	v.SetDefault("view.quiet_interval", time.Second)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("network.endpoint", "/api/gene-associations-network")
	v.SetDefault("network.style_file", "")
	v.SetDefault("stub.addr", "127.0.0.1:8000")
	v.SetDefault("stub.rows", 120)
	v.SetDefault("stub.latency", time.Duration(0))
	v.SetDefault("stub.request_rate", 0)
}

// Load reads the configuration file at path (optional) and OMICSVIEW_*
// environment variables on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("OMICSVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("omicsview")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/omicsview")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

// App decodes and validates the application configuration.
func (c *Config) App() (*App, error) {
	var app App
	if err := c.Unmarshal(&app); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return &app, nil
}

// Validate reports the first invalid setting.
func (a *App) Validate() error {
	if a.Server.BaseURL == "" {
		return errors.New("server.base_url is required")
	}
	if a.View.PageSize < 1 {
		return fmt.Errorf("view.page_size must be > 0, got %d", a.View.PageSize)
	}
	switch a.Push.Transport {
	case "", TransportNone:
	case TransportWebSocket, TransportMQTT:
		if a.Push.URL == "" {
			return fmt.Errorf("push.url is required for transport %q", a.Push.Transport)
		}
	default:
		return fmt.Errorf("unknown push.transport %q", a.Push.Transport)
	}
	if a.Server.RequestRate < 0 {
		return fmt.Errorf("server.request_rate must be >= 0, got %v", a.Server.RequestRate)
	}
	return nil
}

// Table returns the overrides for the named table, if any.
func (a *App) Table(name string) TableConfig {
	return a.Tables[name]
}
