// Package config loads and holds the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Conf is the global configuration loaded at startup.
var Conf Config

// Config mirrors the structure of config.yaml.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	GeoServer GeoServerConfig `mapstructure:"geoserver"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Import    ImportConfig    `mapstructure:"import"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// ImportConfig holds the settings for the shapefile import pipeline, which
// shells out to shp2pgsql and psql.
type ImportConfig struct {
	WorkDir      string `mapstructure:"work_dir"`
	PsqlHost     string `mapstructure:"psql_host"`
	PsqlPort     string `mapstructure:"psql_port"`
	PsqlUser     string `mapstructure:"psql_user"`
	PsqlPassword string `mapstructure:"psql_password"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds every database connection setting.
type DatabaseConfig struct {
	Postgres PostgresConfig    `mapstructure:"postgres"`
	Themes   map[string]string `mapstructure:"themes"`
	Redis    RedisConfig       `mapstructure:"redis"`
}

// PostgresConfig holds the catalog database settings.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the Redis settings used by the redis session store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds the admin token settings.
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// GeoServerConfig holds the map server connection settings.
type GeoServerConfig struct {
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Workspace      string        `mapstructure:"workspace"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig holds the filesystem layout settings.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// UploadConfig holds the resumable upload settings.
type UploadConfig struct {
	// SessionStore selects the session backing: "memory" or "redis".
	SessionStore string `mapstructure:"session_store"`
	MaxSizeBytes int64  `mapstructure:"max_size_bytes"`
}

// ReconcileConfig holds the catalog/filesystem sweep settings.
type ReconcileConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Init reads the YAML file at configPath and unmarshals it into Conf.
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("failed to read config file: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %w", err))
	}
}
