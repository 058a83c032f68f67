package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Crane     CraneConfig     `mapstructure:"crane"`
	Yard      YardConfig      `mapstructure:"yard"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Database       string        `mapstructure:"database"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	MaxConnections int           `mapstructure:"max_connections"`
	MinConnections int           `mapstructure:"min_connections"`
	ConnIdleTime   time.Duration `mapstructure:"conn_idle_time"`
}

type CraneConfig struct {
	// FeedbackTimeout begrenzt das Warten auf PLC-Rückmeldungen
	FeedbackTimeout time.Duration `mapstructure:"feedback_timeout"`
	FeedbackBuffer  int           `mapstructure:"feedback_buffer"`
}

type YardConfig struct {
	LayoutName       string   `mapstructure:"layout_name"`
	SearchPaths      []string `mapstructure:"search_paths"`
	ShortMaxLengthMm int      `mapstructure:"short_max_length_mm"`
}

type SchedulerConfig struct {
	AutoStart bool `mapstructure:"auto_start"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Defaults setzen
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.min_connections", 2)
	viper.SetDefault("database.conn_idle_time", "5m")
	viper.SetDefault("crane.feedback_timeout", "120s")
	viper.SetDefault("crane.feedback_buffer", 64)
	viper.SetDefault("yard.layout_name", "yard-layout")
	viper.SetDefault("yard.search_paths", []string{"layouts"})
	viper.SetDefault("yard.short_max_length_mm", 3600)
	viper.SetDefault("scheduler.auto_start", false)

	// Environment Variables automatisch binden (Viper Feature)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("BLG") // Environment Variables mit Prefix BLG_

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
