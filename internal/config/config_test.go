package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.LocationTimeout != 20*time.Second {
		t.Errorf("LocationTimeout = %v", cfg.LocationTimeout)
	}
	if cfg.StorageBackend != StoragePostgres {
		t.Errorf("StorageBackend = %q", cfg.StorageBackend)
	}
	if cfg.Latitude != nil || cfg.Longitude != nil {
		t.Error("coordinates should be unset by default")
	}
	want := []string{"Traffic", "Public transport delay", "Medical appointment", "Family emergency", "Client visit"}
	if diff := cmp.Diff(want, cfg.LateReasonList()); diff != "" {
		t.Errorf("late reasons (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://hr.example.com/api/v1")
	t.Setenv("EMPLOYEE_ID", "emp-9")
	t.Setenv("LOCATION_TIMEOUT", "5s")
	t.Setenv("LATITUDE", "44.43")
	t.Setenv("LONGITUDE", "26.1")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LATE_REASONS", " Traffic , ,Weather")
	t.Setenv("TIMEZONE", "Europe/Bucharest")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.APIBaseURL != "https://hr.example.com/api/v1" || cfg.EmployeeID != "emp-9" {
		t.Errorf("client keys not read: %+v", cfg)
	}
	if cfg.LocationTimeout != 5*time.Second {
		t.Errorf("LocationTimeout = %v", cfg.LocationTimeout)
	}
	if cfg.Latitude == nil || *cfg.Latitude != 44.43 || cfg.Longitude == nil || *cfg.Longitude != 26.1 {
		t.Errorf("coordinates = %v, %v", cfg.Latitude, cfg.Longitude)
	}
	if cfg.StorageBackend != StorageMemory {
		t.Errorf("StorageBackend = %q", cfg.StorageBackend)
	}
	if diff := cmp.Diff([]string{"Traffic", "Weather"}, cfg.LateReasonList()); diff != "" {
		t.Errorf("late reasons (-want +got):\n%s", diff)
	}
	if cfg.Location().String() != "Europe/Bucharest" {
		t.Errorf("Location = %v", cfg.Location())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"latitude without longitude": {"LATITUDE": "1.5"},
		"zero location timeout":      {"LOCATION_TIMEOUT": "0s"},
		"unknown backend":            {"STORAGE_BACKEND": "sqlite"},
		"bad late threshold":         {"LATE_THRESHOLD": "9.30"},
		"bad cutoff":                 {"PUNCH_IN_CUTOFF": "25:00"},
		"bad timezone":               {"TIMEZONE": "Mars/Olympus"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := load(viper.New()); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock(" 09:30 ")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if got != 9*time.Hour+30*time.Minute {
		t.Errorf("ParseClock = %v", got)
	}
	if _, err := ParseClock("noon"); err == nil {
		t.Error("expected an error for a non-clock value")
	}
}
