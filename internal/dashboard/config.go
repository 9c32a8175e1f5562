package dashboard

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StreamConfig tunes the shared push channel.
type StreamConfig struct {
	Topic        string        `yaml:"topic"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
	MaxAttempts  int           `yaml:"max_attempts"`
	TokenWarning time.Duration `yaml:"token_warning"`
}

// CueConfig tunes the audio attention cue.
type CueConfig struct {
	Command  string        `yaml:"command"`
	Args     []string      `yaml:"args"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// Config defines the engine configuration.
type Config struct {
	ListenAddr      string       `yaml:"listen_addr"`
	CollaboratorURL string       `yaml:"collaborator_url"`
	Token           string       `yaml:"token"`
	APISecret       string       `yaml:"api_secret"`
	Timezone        string       `yaml:"timezone"`
	EventPageSize   int          `yaml:"event_page_size"`
	AlertPageSize   int          `yaml:"alert_page_size"`
	Stream          StreamConfig `yaml:"stream"`
	Cue             CueConfig    `yaml:"cue"`
}

// LoadConfig loads config from yaml or env. Env values fill whatever
// the yaml file leaves empty; MONITOR_TOKEN always wins over the file
// so tokens stay out of checked-in config.
func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr:      getenvDefault("MONITOR_LISTEN_ADDR", ":8090"),
		CollaboratorURL: os.Getenv("MONITOR_COLLABORATOR_URL"),
		APISecret:       os.Getenv("MONITOR_API_SECRET"),
		Timezone:        getenvDefault("MONITOR_TIMEZONE", "Local"),
		EventPageSize:   getenvIntDefault("MONITOR_EVENT_PAGE_SIZE", 500),
		AlertPageSize:   getenvIntDefault("MONITOR_ALERT_PAGE_SIZE", 100),
		Stream: StreamConfig{
			Topic:        "/events/stream",
			BackoffBase:  time.Second,
			BackoffMax:   30 * time.Second,
			MaxAttempts:  8,
			TokenWarning: time.Hour,
		},
		Cue: CueConfig{
			Command:  os.Getenv("MONITOR_CUE_COMMAND"),
			Cooldown: 2 * time.Second,
		},
	}

	if path := os.Getenv("MONITOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if token := os.Getenv("MONITOR_TOKEN"); token != "" {
		cfg.Token = token
	}
	if cfg.CollaboratorURL == "" {
		cfg.CollaboratorURL = os.Getenv("MONITOR_COLLABORATOR_URL")
	}
	if cfg.CollaboratorURL == "" {
		return cfg, errors.New("dashboard: collaborator url required")
	}
	if cfg.EventPageSize <= 0 {
		cfg.EventPageSize = 500
	}
	if cfg.AlertPageSize <= 0 {
		cfg.AlertPageSize = 100
	}
	return cfg, nil
}

// Location resolves the configured reporting timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
