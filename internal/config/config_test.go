package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradecal/internal/calendar"
	"tradecal/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradecal.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "TRADECAL_MARKET", "TRADECAL_RPC_ADDR", "TRADECAL_CALENDAR_END",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/tradecal/data"
  sqlite_path: "/tmp/tradecal/tradecal.db"
server:
  host: "127.0.0.1"
  grpc_port: 9090
rpc:
  addr: "data.internal:9090"
  max_attempts: 5
  retry_base_ms: 50
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
logging:
  level: "debug"
  format: "text"
calendar:
  end: "2024-12-31"
  recess_start: 90
  recess_end: 180
  early_closes:
    "2024-02-08": "11:31"
  trading_days:
    source: csv
    path: /tmp/tradecal/days.csv
    encoding: gbk
ingest:
  symbols: ["600000.SH", "600519.SH"]
  rate_limit_per_min: 30
pricing:
  batch_workers: 16
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/tradecal/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tradecal/data")
	}
	if cfg.Storage.Market != domain.MarketCN {
		t.Errorf("Storage.Market = %q, want default %q", cfg.Storage.Market, domain.MarketCN)
	}

	// -- Server / RPC --
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:9090")
	}
	if cfg.RPC.Addr != "data.internal:9090" || cfg.RPC.MaxAttempts != 5 {
		t.Errorf("RPC = %+v", cfg.RPC)
	}
	if cfg.RPC.RetryBase() != 50*time.Millisecond {
		t.Errorf("RPC.RetryBase() = %v, want 50ms", cfg.RPC.RetryBase())
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Calendar: unset keys keep their defaults --
	if cfg.Calendar.Timezone != "Asia/Shanghai" || cfg.Calendar.Open != "09:31" || cfg.Calendar.Close != "15:00" {
		t.Errorf("Calendar defaults lost: %+v", cfg.Calendar)
	}
	if cfg.Calendar.RecessStart != 90 || cfg.Calendar.RecessEnd != 180 {
		t.Errorf("recess = (%d, %d), want (90, 180)", cfg.Calendar.RecessStart, cfg.Calendar.RecessEnd)
	}
	if cfg.Calendar.TradingDays.Source != SourceCSV || cfg.Calendar.TradingDays.Encoding != "gbk" {
		t.Errorf("TradingDays = %+v", cfg.Calendar.TradingDays)
	}

	// -- Ingest / Pricing --
	if len(cfg.Ingest.Symbols) != 2 || cfg.Ingest.Symbols[1] != "600519.SH" {
		t.Errorf("Ingest.Symbols = %v", cfg.Ingest.Symbols)
	}
	if cfg.Ingest.Exchange != "SH" {
		t.Errorf("Ingest.Exchange = %q, want default SH", cfg.Ingest.Exchange)
	}
	if cfg.Pricing.BatchWorkers != 16 {
		t.Errorf("Pricing.BatchWorkers = %d, want 16", cfg.Pricing.BatchWorkers)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.Calendar.Name != "SH" || cfg.Calendar.RecessStart != 120 || cfg.Calendar.RecessEnd != 210 {
		t.Errorf("Calendar = %+v, want the SH defaults", cfg.Calendar)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/yaml/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("TRADECAL_RPC_ADDR", "10.0.0.1:50051")
	t.Setenv("TRADECAL_CALENDAR_END", "2025-06-30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.RPC.Addr != "10.0.0.1:50051" {
		t.Errorf("RPC.Addr = %q, want env override", cfg.RPC.Addr)
	}
	if cfg.Calendar.End != "2025-06-30" {
		t.Errorf("Calendar.End = %q, want env override", cfg.Calendar.End)
	}

	t.Setenv("APCA_API_KEY_ID", "sdk-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "sdk-key" {
		t.Errorf("Alpaca.APIKey = %q, want APCA_API_KEY_ID to win", cfg.Alpaca.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown market", func(c *Config) { c.Storage.Market = "jp" }},
		{"unknown source", func(c *Config) { c.Calendar.TradingDays.Source = "ftp" }},
		{"csv without path", func(c *Config) { c.Calendar.TradingDays.Source = SourceCSV }},
		{"no attempts", func(c *Config) { c.RPC.MaxAttempts = 0 }},
		{"negative workers", func(c *Config) { c.Pricing.BatchWorkers = -1 }},
		{"inverted recess", func(c *Config) { c.Calendar.RecessStart, c.Calendar.RecessEnd = 200, 100 }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestCalendarOptions(t *testing.T) {
	cc := Default().Calendar
	cc.Start = "2024-01-02"
	cc.End = "2024-01-31"
	cc.SpecialOpen = map[string]string{"2024-01-10": "10:01"}
	cc.EarlyClose = map[string]string{"2024-01-12": "14:00"}

	holidays := []time.Time{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}
	opts, err := cc.Options(holidays)
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Location.String() != "Asia/Shanghai" {
		t.Errorf("Location = %v", opts.Location)
	}
	if opts.Open != (calendar.TimeOfDay{Hour: 9, Minute: 31}) || opts.Close != (calendar.TimeOfDay{Hour: 15}) {
		t.Errorf("Open/Close = %v/%v", opts.Open, opts.Close)
	}
	if opts.Recess != (calendar.RecessWindow{Start: 120, End: 210}) {
		t.Errorf("Recess = %+v", opts.Recess)
	}
	if got := opts.SpecialOpens[time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)]; got != (calendar.TimeOfDay{Hour: 10, Minute: 1}) {
		t.Errorf("special open = %v", got)
	}
	if len(opts.Holidays) != 1 {
		t.Errorf("Holidays = %v", opts.Holidays)
	}

	cal, err := calendar.Build(opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cal.IsSession(holidays[0]) {
		t.Error("holiday became a session")
	}
}

func TestCalendarOptionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CalendarConfig)
	}{
		{"missing end", func(c *CalendarConfig) { c.End = "" }},
		{"bad start", func(c *CalendarConfig) { c.Start = "2024/01/02" }},
		{"bad timezone", func(c *CalendarConfig) { c.Timezone = "Mars/Olympus" }},
		{"bad open", func(c *CalendarConfig) { c.Open = "9h31" }},
		{"bad early close", func(c *CalendarConfig) { c.EarlyClose = map[string]string{"2024-01-12": "late"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := Default().Calendar
			cc.End = "2024-12-31"
			tt.mutate(&cc)
			if _, err := cc.Options(nil); !errors.Is(err, calendar.ErrConfiguration) {
				t.Errorf("Options() error = %v, want ErrConfiguration", err)
			}
		})
	}
}
