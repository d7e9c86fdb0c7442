package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	Env      string `mapstructure:"ENV"`
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	ClientID     string `mapstructure:"CLIENT_ID"`
	ClientSecret string `mapstructure:"CLIENT_SECRET"`
	RedirectURL  string `mapstructure:"REDIRECT_URI"`

	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBName     string `mapstructure:"DB_NAME"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	DefaultIdentity string `mapstructure:"DEFAULT_IDENTITY"`
	ResolveIdentity bool   `mapstructure:"RESOLVE_IDENTITY"`
	CalendarID      string `mapstructure:"CALENDAR_ID"`
}

var envs = []string{
	"APP_NAME", "ENV", "PORT", "LOG_LEVEL",
	"CLIENT_ID", "CLIENT_SECRET", "REDIRECT_URI",
	"DB_DRIVER", "DB_HOST", "DB_NAME", "DB_USER", "DB_PORT", "DB_PASSWORD", "DB_SSLMODE", "SQLITE_PATH",
	"DEFAULT_IDENTITY", "RESOLVE_IDENTITY", "CALENDAR_ID",
}

var defaults = map[string]any{
	"APP_NAME":    "Calendar Service",
	"ENV":         "DEV",
	"PORT":        "3000",
	"LOG_LEVEL":   "info",
	"DB_DRIVER":   "postgres",
	"DB_HOST":     "localhost",
	"DB_PORT":     "5432",
	"DB_SSLMODE":  "disable",
	"SQLITE_PATH": "calendar.db",
	"CALENDAR_ID": "primary",
}

// LoadConfig reads ./.env (if present) and the process environment.
func LoadConfig() (Config, error) {
	return LoadConfigFrom("./")
}

// LoadConfigFrom reads the .env file in dir; environment variables win over the file.
func LoadConfigFrom(dir string) (Config, error) {
	var config Config
	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ".env"))
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("reading .env: %w", err)
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, env := range envs {
		if err := v.BindEnv(env); err != nil {
			return config, err
		}
	}
	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}
	return config, nil
}

// Validate reports every required setting that is missing.
func (c Config) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.RedirectURL == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	if !c.ResolveIdentity && c.DefaultIdentity == "" {
		missing = append(missing, "DEFAULT_IDENTITY (or RESOLVE_IDENTITY=true)")
	}
	switch c.DBDriver {
	case "postgres":
		if c.DBName == "" || c.DBUser == "" {
			missing = append(missing, "DB_NAME/DB_USER")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) IsDev() bool {
	return strings.EqualFold(c.Env, "DEV")
}

// PostgresDSN builds the key/value DSN understood by pgx.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s dbname=%s port=%s password=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBName, c.DBPort, c.DBPassword, c.DBSSLMode)
}
