package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Every binary reads the same environment. The client keys describe how to
// reach the attendance API; the server keys configure the reference
// service and its AWS side channel.

type Config struct {
	IsLocalDev   bool   `mapstructure:"IS_LOCAL_DEV"`
	OTelExporter string `mapstructure:"OTEL_EXPORTER"`
	OTelEndpoint string `mapstructure:"OTEL_ENDPOINT"`

	// client
	APIBaseURL         string        `mapstructure:"API_BASE_URL"`
	APIToken           string        `mapstructure:"API_TOKEN"`
	EmployeeID         string        `mapstructure:"EMPLOYEE_ID"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LocationTimeout    time.Duration `mapstructure:"LOCATION_TIMEOUT"`
	LocationPermission bool          `mapstructure:"LOCATION_PERMISSION"`
	Latitude           *float64      `mapstructure:"LATITUDE"`
	Longitude          *float64      `mapstructure:"LONGITUDE"`
	BreakerMaxRequests uint32        `mapstructure:"BREAKER_MAX_REQUESTS"`
	BreakerInterval    time.Duration `mapstructure:"BREAKER_INTERVAL"`
	BreakerTimeout     time.Duration `mapstructure:"BREAKER_TIMEOUT"`

	// server
	ServerPort     string `mapstructure:"SERVER_PORT"`
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	Timezone       string `mapstructure:"TIMEZONE"`
	LateThreshold  string `mapstructure:"LATE_THRESHOLD"`
	PunchInCutoff  string `mapstructure:"PUNCH_IN_CUTOFF"`
	LateReasons    string `mapstructure:"LATE_REASONS"`

	// aws
	AWSRegion         string `mapstructure:"AWS_REGION"`
	AWSEndpoint       string `mapstructure:"AWS_ENDPOINT"`
	NotifySQSQueueURL string `mapstructure:"NOTIFY_SQS_QUEUE_URL"`
	NotifySender      string `mapstructure:"NOTIFY_SENDER"`
	ManagerEmail      string `mapstructure:"MANAGER_EMAIL"`
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

var keys = []string{
	"IS_LOCAL_DEV", "OTEL_EXPORTER", "OTEL_ENDPOINT",
	"API_BASE_URL", "API_TOKEN", "EMPLOYEE_ID", "REQUEST_TIMEOUT", "LOCATION_TIMEOUT",
	"LOCATION_PERMISSION", "LATITUDE", "LONGITUDE",
	"BREAKER_MAX_REQUESTS", "BREAKER_INTERVAL", "BREAKER_TIMEOUT",
	"SERVER_PORT", "STORAGE_BACKEND", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
	"TIMEZONE", "LATE_THRESHOLD", "PUNCH_IN_CUTOFF", "LATE_REASONS",
	"AWS_REGION", "AWS_ENDPOINT", "NOTIFY_SQS_QUEUE_URL", "NOTIFY_SENDER", "MANAGER_EMAIL",
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (config Config, err error) {
	v.SetDefault("IS_LOCAL_DEV", false)
	v.SetDefault("OTEL_EXPORTER", "none")
	v.SetDefault("OTEL_ENDPOINT", "jaeger:4317")

	v.SetDefault("API_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("LOCATION_TIMEOUT", "20s")
	v.SetDefault("LOCATION_PERMISSION", false)
	v.SetDefault("BREAKER_MAX_REQUESTS", 5)
	v.SetDefault("BREAKER_INTERVAL", "60s")
	v.SetDefault("BREAKER_TIMEOUT", "30s")

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("STORAGE_BACKEND", StoragePostgres)
	v.SetDefault("DB_HOST", "db")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "attendance_db")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("LATE_THRESHOLD", "09:30")
	v.SetDefault("PUNCH_IN_CUTOFF", "12:00")
	v.SetDefault("LATE_REASONS", "Traffic,Public transport delay,Medical appointment,Family emergency,Client visit")

	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	v.SetDefault("NOTIFY_SQS_QUEUE_URL", "http://localstack:4566/000000000000/attendance-notify-queue")
	v.SetDefault("NOTIFY_SENDER", "attendance@attendance-service.com")
	v.SetDefault("MANAGER_EMAIL", "manager@attendance-service.com")

	// Read in environment variables that match the keys. Keys without a
	// default are bound explicitly so Unmarshal sees them.
	v.AutomaticEnv()
	for _, k := range keys {
		if err = v.BindEnv(k); err != nil {
			return
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	err = config.Validate()
	return
}

// Validate checks the values every binary relies on.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.LocationTimeout <= 0 {
		return fmt.Errorf("LOCATION_TIMEOUT must be positive")
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return fmt.Errorf("LATITUDE and LONGITUDE must be set together")
	}
	switch c.StorageBackend {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if _, err := ParseClock(c.LateThreshold); err != nil {
		return fmt.Errorf("LATE_THRESHOLD: %w", err)
	}
	if _, err := ParseClock(c.PunchInCutoff); err != nil {
		return fmt.Errorf("PUNCH_IN_CUTOFF: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	return nil
}

// LateReasonList splits LATE_REASONS.
func (c *Config) LateReasonList() []string {
	var out []string
	for _, r := range strings.Split(c.LateReasons, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseClock parses an HH:MM wall-clock time into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
