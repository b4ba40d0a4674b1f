package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Line     LineConfig     `yaml:"line"`
	Weather  WeatherConfig  `yaml:"weather"`
	Maps     MapsConfig     `yaml:"maps"`
	News     NewsConfig     `yaml:"news"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Dropbox  DropboxConfig  `yaml:"dropbox"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	FeedsPath      string `yaml:"feeds_path"`
	WatermarksPath string `yaml:"watermarks_path"`
	HistoryPath    string `yaml:"history_path"`
}

// ScheduleConfig configures the background jobs.
type ScheduleConfig struct {
	// FeedCheck is a cron expression; the default fires at the top of
	// every hour.
	FeedCheck string `yaml:"feed_check"`
	// Briefing is the local time (15:04) of the daily weather briefing.
	Briefing string `yaml:"briefing"`
	// BriefingTo is the group or user the briefing is pushed to. Empty
	// disables the briefing.
	BriefingTo string `yaml:"briefing_to"`
	Timezone   string `yaml:"timezone"`
}

// LineConfig holds the messaging platform credentials.
type LineConfig struct {
	ChannelToken  string `yaml:"channel_token"`
	ChannelSecret string `yaml:"channel_secret"`
}

// WeatherConfig for the OpenWeatherMap wrappers.
type WeatherConfig struct {
	APIKey      string  `yaml:"api_key"`
	DefaultCity string  `yaml:"default_city"`
	DefaultLat  float64 `yaml:"default_lat"`
	DefaultLon  float64 `yaml:"default_lon"`
}

// MapsConfig for the Google Maps wrappers.
type MapsConfig struct {
	APIKey string `yaml:"api_key"`
}

// NewsConfig for the NewsAPI wrapper.
type NewsConfig struct {
	APIKey  string `yaml:"api_key"`
	Country string `yaml:"country"`
}

// OpenAIConfig for the conversational assistant.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DropboxConfig for the album backup storage.
type DropboxConfig struct {
	AccessToken string `yaml:"access_token"`
	BackupRoot  string `yaml:"backup_root"`
	ImagesRoot  string `yaml:"images_root"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Storage: StorageConfig{
			FeedsPath:      "rss_feeds.json",
			WatermarksPath: "last_check.json",
			HistoryPath:    "homebot.db",
		},
		Schedule: ScheduleConfig{
			FeedCheck: "0 * * * *",
			Briefing:  "07:00",
			Timezone:  "Asia/Taipei",
		},
		Weather: WeatherConfig{
			DefaultCity: "Taipei",
			DefaultLat:  25.0330,
			DefaultLon:  121.5654,
		},
		News:   NewsConfig{Country: "tw"},
		OpenAI: OpenAIConfig{Model: "gpt-3.5-turbo"},
		Dropbox: DropboxConfig{
			BackupRoot: "/LineGroupAlbums",
			ImagesRoot: "/line_bot_images",
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"); v != "" {
		cfg.Line.ChannelToken = v
	}
	if v := os.Getenv("LINE_CHANNEL_SECRET"); v != "" {
		cfg.Line.ChannelSecret = v
	}
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		cfg.Maps.APIKey = v
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		cfg.News.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("DROPBOX_ACCESS_TOKEN"); v != "" {
		cfg.Dropbox.AccessToken = v
	}
	if v := os.Getenv("HOMEBOT_BRIEFING_TO"); v != "" {
		cfg.Schedule.BriefingTo = v
	}
}
