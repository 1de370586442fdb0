package weather

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/eivy/smartthings-weather/forecast"
	"github.com/eivy/smartthings-weather/metrics"
	"github.com/eivy/smartthings-weather/mqtt"
)

// SmartThings endpoints.
const (
	DefaultAuthURL  = "https://api.smartthings.com/oauth/authorize"
	DefaultTokenURL = "https://api.smartthings.com/oauth/token"
	DefaultScope    = "r:devices:* r:locations:*"

	DefaultPollInterval = 60 * time.Second
)

// OAuthConfig is the OAuth client registration.
type OAuthConfig struct {
	ClientID     string   `yaml:"ClientID" env:"SMARTTHINGS_CLIENT_ID"`
	ClientSecret string   `yaml:"ClientSecret" env:"SMARTTHINGS_CLIENT_SECRET"`
	RedirectURI  string   `yaml:"RedirectURI" env:"SMARTTHINGS_REDIRECT_URI"`
	Scopes       []string `yaml:"Scopes" env:"SMARTTHINGS_SCOPES" envSeparator:" "`
	AuthURL      string   `yaml:"AuthURL" env:"SMARTTHINGS_AUTH_URL"`
	TokenURL     string   `yaml:"TokenURL" env:"SMARTTHINGS_TOKEN_URL"`
}

// Config is configuration
type Config struct {
	OAuth OAuthConfig `yaml:"OAuth"`
	// AccessToken is a personal access token used instead of OAuth when no
	// client ID is configured.
	AccessToken  string        `yaml:"AccessToken" env:"SMARTTHINGS_TOKEN"`
	APIBaseURL   string        `yaml:"APIBaseURL" env:"SMARTTHINGS_API_URL"`
	DeviceID     string        `yaml:"DeviceID" env:"WEATHER_DEVICE_ID"`
	PollInterval time.Duration `yaml:"PollInterval" env:"WEATHER_POLL_INTERVAL"`
	// TokenStore is the SQLite file holding the credential. Empty keeps it
	// in memory.
	TokenStore string `yaml:"TokenStore" env:"WEATHER_TOKEN_STORE"`
	Listen     string `yaml:"Listen" env:"WEATHER_LISTEN"`
	Forecast   struct {
		Enabled   bool                `yaml:"Enabled" env:"WEATHER_FORECAST_ENABLED"`
		Locations []forecast.Location `yaml:"Locations"`
	} `yaml:"Forecast"`
	MQTT    mqtt.Config    `yaml:"MQTT"`
	Metrics metrics.Config `yaml:"Metrics"`
	Log     struct {
		Level  string `yaml:"Level" env:"WEATHER_LOG_LEVEL"`
		Format string `yaml:"Format" env:"WEATHER_LOG_FORMAT"`
	} `yaml:"Log"`
}

// DefaultConfig returns the configuration used for unset fields.
func DefaultConfig() Config {
	var c Config
	c.OAuth.Scopes = strings.Fields(DefaultScope)
	c.OAuth.AuthURL = DefaultAuthURL
	c.OAuth.TokenURL = DefaultTokenURL
	c.PollInterval = DefaultPollInterval
	c.Listen = ":8080"
	c.Forecast.Enabled = true
	c.Forecast.Locations = append([]forecast.Location(nil), forecast.DefaultLocations...)
	c.Metrics.Enabled = true
	c.Metrics.Path = metrics.DefaultPath
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// ReadConfig loads path over DefaultConfig and applies environment
// overrides. A missing file is not an error when path is empty.
func ReadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &config); err != nil {
			return config, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// UseOAuth reports whether the OAuth flow is configured.
func (c Config) UseOAuth() bool {
	return c.OAuth.ClientID != ""
}

// Validate checks that the configuration can be run.
func (c Config) Validate() error {
	if !c.UseOAuth() && c.AccessToken == "" {
		return errors.New("config: set OAuth.ClientID or AccessToken")
	}
	if c.UseOAuth() && c.OAuth.RedirectURI == "" {
		return errors.New("config: OAuth.RedirectURI is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: PollInterval must be positive, got %s", c.PollInterval)
	}
	return nil
}
