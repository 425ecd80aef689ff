package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var envKeys = []string{
	"DB_TYPE", "DATABASE_URL", "GOOGLE_API_KEY", "LOG_LEVEL", "WORK_DIR",
	"CAREERTRACK_MODEL", "CAREERTRACK_PRO_MODEL", "CAREERTRACK_EMBEDDING_MODEL",
	"CAREERTRACK_TIMEZONE", "CAREERTRACK_REFLECTION_WINDOW_DAYS",
	"CAREERTRACK_MATCH_THRESHOLD", "CAREERTRACK_RECENT_CONTEXT",
}

// cleanEnv points HOME at an empty directory and clears every variable Load reads.
func cleanEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("CAREERTRACK_CONFIG", "")
	os.Unsetenv("CAREERTRACK_CONFIG")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := cleanEnv(t)
	t.Setenv("GOOGLE_API_KEY", "key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBType != "sqlite" {
		t.Errorf("DBType = %q, want sqlite", cfg.DBType)
	}
	if want := filepath.Join(home, ".careertrack", "memory.db"); cfg.DatabaseURL != want {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, want)
	}
	if cfg.ReflectionWindowDays != 7 || cfg.MatchThreshold != 0.7 || cfg.RecentContext != 10 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.WorkDir == "" {
		t.Error("WorkDir should default to the current directory")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
db_type: postgres
database_url: postgres://file/db
api_key: from-file
timezone: Europe/Berlin
reflection_window_days: 14
match_threshold: 0.8
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CAREERTRACK_CONFIG", path)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("CAREERTRACK_MATCH_THRESHOLD", "0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBType != "postgres" || cfg.APIKey != "from-file" || cfg.Timezone != "Europe/Berlin" {
		t.Errorf("file values not loaded: %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Errorf("DatabaseURL = %q, env should win", cfg.DatabaseURL)
	}
	if cfg.MatchThreshold != 0.9 || cfg.ReflectionWindowDays != 14 {
		t.Errorf("threshold/window = %v/%d", cfg.MatchThreshold, cfg.ReflectionWindowDays)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing api key", nil, "GOOGLE_API_KEY"},
		{"bad db type", map[string]string{"GOOGLE_API_KEY": "k", "DB_TYPE": "mysql"}, "DB_TYPE"},
		{"postgres without url", map[string]string{"GOOGLE_API_KEY": "k", "DB_TYPE": "postgres"}, "DATABASE_URL"},
		{"bad timezone", map[string]string{"GOOGLE_API_KEY": "k", "CAREERTRACK_TIMEZONE": "Mars/Olympus"}, "timezone"},
		{"bad window", map[string]string{"GOOGLE_API_KEY": "k", "CAREERTRACK_REFLECTION_WINDOW_DAYS": "week"}, "WINDOW_DAYS"},
		{"threshold out of range", map[string]string{"GOOGLE_API_KEY": "k", "CAREERTRACK_MATCH_THRESHOLD": "1.5"}, "threshold"},
		{"bad log level", map[string]string{"GOOGLE_API_KEY": "k", "LOG_LEVEL": "loud"}, "log level"},
		{"missing explicit file", map[string]string{"GOOGLE_API_KEY": "k", "CAREERTRACK_CONFIG": "/nonexistent/careertrack.yaml"}, "config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
