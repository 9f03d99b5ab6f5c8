package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	URL         string
	Schema      string
	PoolSize    int
	MaxOverflow int
	PoolTimeout time.Duration
}

type MattermostConfig struct {
	URL            string
	Token          string
	Team           string
	TeamID         string
	MaxConnections int
	MaxKeepalive   int
	EnableHTTP2    bool
}

type SlackConfig struct {
	BotToken    string
	DownloadRPS int
}

// IsConfigured returns true when a bot token is available for the Slack
// Web API (emoji listing, authenticated file downloads).
func (c SlackConfig) IsConfigured() bool {
	return c.BotToken != ""
}

type ExportConfig struct {
	Workers            int
	AttachmentWorkers  int
	ChannelConcurrency int
	QueuePollInterval  time.Duration
	AttachmentMaxMB    int
	MultipartUpload    bool
}

type PluginConfig struct {
	ID         string
	BundlePath string
}

type ServerConfig struct {
	Host string
	Port int
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AppConfig struct {
	Database   DatabaseConfig
	Mattermost MattermostConfig
	Slack      SlackConfig
	Export     ExportConfig
	Plugin     PluginConfig
	Server     ServerConfig

	LogLevel         string
	SkipStartupTasks bool
}

func LoadConfig() (*AppConfig, error) {
	// Missing .env is fine; system env vars still apply.
	_ = godotenv.Load()

	databaseURL, err := getEnvRequired("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	mmURL, err := getEnvRequired("MM_URL")
	if err != nil {
		return nil, err
	}
	mmToken, err := getEnvRequired("MM_TOKEN")
	if err != nil {
		return nil, err
	}

	exportWorkers := getEnvIntWithDefault("EXPORT_WORKERS", 5)

	config := &AppConfig{
		Database: DatabaseConfig{
			URL:         databaseURL,
			Schema:      getEnvWithDefault("DB_SCHEMA", "public"),
			PoolSize:    getEnvIntWithDefault("DB_POOL_SIZE", 20),
			MaxOverflow: getEnvIntWithDefault("DB_MAX_OVERFLOW", 40),
			PoolTimeout: time.Duration(getEnvIntWithDefault("DB_POOL_TIMEOUT", 60)) * time.Second,
		},
		Mattermost: MattermostConfig{
			URL:            mmURL,
			Token:          mmToken,
			Team:           getEnvWithDefault("MM_TEAM", "test"),
			TeamID:         os.Getenv("MM_TEAM_ID"),
			MaxConnections: getEnvIntWithDefault("MM_MAX_CONNECTIONS", 100),
			MaxKeepalive:   getEnvIntWithDefault("MM_MAX_KEEPALIVE", 20),
			EnableHTTP2:    getEnvBoolWithDefault("MM_HTTP2", true),
		},
		Slack: SlackConfig{
			BotToken:    os.Getenv("SLACK_BOT_TOKEN"),
			DownloadRPS: getEnvIntWithDefault("SLACK_DOWNLOAD_RPS", 10),
		},
		Export: ExportConfig{
			Workers:            exportWorkers,
			AttachmentWorkers:  getEnvIntWithDefault("ATTACHMENT_WORKERS", exportWorkers),
			ChannelConcurrency: getEnvIntWithDefault("EXPORT_CHANNEL_CONCURRENCY", exportWorkers),
			QueuePollInterval:  time.Duration(getEnvIntWithDefault("EXPORT_QUEUE_POLL", 5)) * time.Second,
			AttachmentMaxMB:    getEnvIntWithDefault("ATTACHMENT_MAX_MB", 0),
			MultipartUpload:    getEnvBoolWithDefault("ATTACHMENT_MULTIPART", true),
		},
		Plugin: PluginConfig{
			ID:         getEnvWithDefault("PLUGIN_ID", "mm-importer"),
			BundlePath: os.Getenv("PLUGIN_BUNDLE_PATH"),
		},
		Server: ServerConfig{
			Host: getEnvWithDefault("BACKEND_HOST", "localhost"),
			Port: getEnvIntWithDefault("BACKEND_PORT", 8000),
		},
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "info"),
		SkipStartupTasks: getEnvBoolWithDefault("SKIP_STARTUP_TASKS", false),
	}

	return config, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
