// Package config loads server configuration from defaults, an optional
// .env file, LEAVE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port     int
	DB       DB
	Timezone string
	Location *time.Location
	Log      Log
	CORS     []string

	// ReconcileInterval is how often counters are reconciled; 0 disables.
	ReconcileInterval time.Duration

	Mail Mail
}

type DB struct {
	Driver string
	DSN    string
}

type Log struct {
	Level string
	JSON  bool
}

type Mail struct {
	SendGridAPIKey string
	From           string
	FromName       string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.dsn", "leave.db")
	v.SetDefault("timezone", "Asia/Hong_Kong")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("cors.origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("reconcile.interval", time.Hour)
	v.SetDefault("sendgrid.api_key", "")
	v.SetDefault("mail.from", "noreply@localhost")
	v.SetDefault("mail.from_name", "Studio")
}

// Load parses args (without the program name) and the environment.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "dotenv file to load if present")
	fs.Int("port", 8080, "HTTP server port")
	fs.String("driver", "sqlite3", "database driver (sqlite3 or pgx)")
	fs.String("db", "leave.db", "database DSN; SQLite path or Postgres URL (\":memory:\" for in-memory)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// load .env if it exists (ignore if it does not)
	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", *envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", *envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"port":      "port",
		"db.driver": "driver",
		"db.dsn":    "db",
		"log.level": "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("config: bind flag %s: %w", flag, err)
		}
	}

	cfg := &Config{
		Port: v.GetInt("port"),
		DB: DB{
			Driver: v.GetString("db.driver"),
			DSN:    v.GetString("db.dsn"),
		},
		Timezone: v.GetString("timezone"),
		Log: Log{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
		CORS:              splitList(v.GetStringSlice("cors.origins")),
		ReconcileInterval: v.GetDuration("reconcile.interval"),
		Mail: Mail{
			SendGridAPIKey: v.GetString("sendgrid.api_key"),
			From:           v.GetString("mail.from"),
			FromName:       v.GetString("mail.from_name"),
		},
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("config: unsupported db driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("config: db dsn is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("config: negative reconcile interval")
	}
	return nil
}

// splitList accepts both ["a","b"] and ["a,b"] (env vars arrive as one string).
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
