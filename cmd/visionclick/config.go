package main

import (
	"fmt"
	"time"

	"github.com/dreamup/visionclick/internal/agent"
	"github.com/dreamup/visionclick/internal/observability"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxDimension   int
	ScreenshotPath string
	MarkerDuration time.Duration
	HistoryDB      string
	S3Bucket       string
	S3Region       string
	Log            observability.LoggerConfig
}

// LoadConfig loads configuration from flags, environment variables and config file.
// This is the only place the API key is read from the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.visionclick")

	// Set defaults
	viper.SetDefault("model", agent.DefaultVisionModel)
	viper.SetDefault("max_dimension", agent.DefaultMaxDimension)
	viper.SetDefault("screenshot_path", agent.DefaultScreenshotPath)
	viper.SetDefault("marker_duration", agent.DefaultMarkerDuration)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	// Read environment variables
	viper.SetEnvPrefix("VISIONCLICK")
	viper.AutomaticEnv()
	if err := viper.BindEnv("api_key", "VISIONCLICK_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}
	if err := viper.BindEnv("s3_bucket", "VISIONCLICK_S3_BUCKET", "S3_BUCKET_NAME"); err != nil {
		return nil, fmt.Errorf("failed to bind bucket env: %w", err)
	}

	// Read config file (optional - don't fail if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := &Config{
		APIKey:         viper.GetString("api_key"),
		BaseURL:        viper.GetString("base_url"),
		Model:          viper.GetString("model"),
		MaxDimension:   viper.GetInt("max_dimension"),
		ScreenshotPath: viper.GetString("screenshot_path"),
		MarkerDuration: viper.GetDuration("marker_duration"),
		HistoryDB:      viper.GetString("history_db"),
		S3Bucket:       viper.GetString("s3_bucket"),
		S3Region:       viper.GetString("s3_region"),
		Log: observability.LoggerConfig{
			Level:   viper.GetString("log.level"),
			Format:  viper.GetString("log.format"),
			LogFile: viper.GetString("log.file"),
		},
	}

	return config, nil
}

// ResolverConfig returns the explicit configuration handed to the vision resolver
func (c *Config) ResolverConfig() agent.ResolverConfig {
	return agent.ResolverConfig{
		APIKey:  c.APIKey,
		Model:   c.Model,
		BaseURL: c.BaseURL,
	}
}
