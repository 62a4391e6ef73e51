package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"tradecal/internal/calendar"
	"tradecal/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradecal binaries.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	RPC      RPC            `yaml:"rpc"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Calendar CalendarConfig `yaml:"calendar"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Pricing  PricingConfig  `yaml:"pricing"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string        `yaml:"data_dir"`
	SQLitePath string        `yaml:"sqlite_path"`
	Market     domain.Market `yaml:"market"`
}

// Server holds the RPC listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns host:port for the gRPC listener.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// RPC configures the client side of the data service.
type RPC struct {
	Addr        string `yaml:"addr"`
	MaxAttempts int    `yaml:"max_attempts"`
	RetryBaseMS int    `yaml:"retry_base_ms"`
}

// RetryBase returns the first retry delay.
func (r RPC) RetryBase() time.Duration { return time.Duration(r.RetryBaseMS) * time.Millisecond }

// Alpaca holds credentials and endpoints for the Alpaca API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CalendarConfig describes the session calendar. Dates are YYYY-MM-DD,
// times HH:MM in Timezone, recess offsets minutes after the open.
type CalendarConfig struct {
	Name        string            `yaml:"name"`
	Timezone    string            `yaml:"timezone"`
	Start       string            `yaml:"start"`
	End         string            `yaml:"end"`
	Open        string            `yaml:"open"`
	Close       string            `yaml:"close"`
	RecessStart int               `yaml:"recess_start"`
	RecessEnd   int               `yaml:"recess_end"`
	SpecialOpen map[string]string `yaml:"special_opens"`
	EarlyClose  map[string]string `yaml:"early_closes"`
	TradingDays TradingDays       `yaml:"trading_days"`
}

// Trading-day sources.
const (
	SourceRPC    = "rpc"
	SourceCSV    = "csv"
	SourceAlpaca = "alpaca"
)

// TradingDays selects where the reference trading days come from.
type TradingDays struct {
	Source          string `yaml:"source"`
	Path            string `yaml:"path"`
	Encoding        string `yaml:"encoding"`
	ReferenceSymbol string `yaml:"reference_symbol"`
}

// IngestConfig holds parameters for the bundle ingester.
type IngestConfig struct {
	// Symbols to ingest. When empty the members of Index are used.
	Symbols          []string `yaml:"symbols"`
	Index            string   `yaml:"index"`
	StartDate        string   `yaml:"start_date"`
	Exchange         string   `yaml:"exchange"`
	AdjustmentsSince string   `yaml:"adjustments_since"`
	RateLimitPerMin  int      `yaml:"rate_limit_per_min"`
}

// PricingConfig tunes the price resolver.
type PricingConfig struct {
	BatchWorkers int `yaml:"batch_workers"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the configuration of a Shanghai Stock Exchange calendar
// with data under ./data.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/tradecal.db",
			Market:     domain.MarketCN,
		},
		Server: Server{Host: "0.0.0.0", GRPCPort: 50051},
		RPC:    RPC{Addr: "127.0.0.1:50051", MaxAttempts: 3, RetryBaseMS: 200},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Calendar: CalendarConfig{
			Name:        "SH",
			Timezone:    "Asia/Shanghai",
			Start:       "2005-01-04",
			Open:        "09:31",
			Close:       "15:00",
			RecessStart: 120,
			RecessEnd:   210,
			TradingDays: TradingDays{Source: SourceRPC, ReferenceSymbol: "000001.SH"},
		},
		Ingest: IngestConfig{
			Index:            "csi300",
			StartDate:        "2005-01-04",
			Exchange:         "SH",
			AdjustmentsSince: "2005-01-01",
			RateLimitPerMin:  120,
		},
		Pricing: PricingConfig{BatchWorkers: 8},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, applies environment variable overrides and validates the
// result. An empty path loads the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("TRADECAL_MARKET"); v != "" {
		cfg.Storage.Market = domain.Market(v)
	}
	if v := os.Getenv("TRADECAL_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("TRADECAL_CALENDAR_END"); v != "" {
		cfg.Calendar.End = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate checks the settings that can be checked without building
// anything. Calendar bounds are checked when the calendar is built.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Market {
	case domain.MarketCN, domain.MarketUS:
	default:
		errs = append(errs, fmt.Errorf("storage.market %q: want cn or us", c.Storage.Market))
	}
	switch c.Calendar.TradingDays.Source {
	case SourceRPC, SourceCSV, SourceAlpaca:
	default:
		errs = append(errs, fmt.Errorf("calendar.trading_days.source %q: want rpc, csv or alpaca", c.Calendar.TradingDays.Source))
	}
	if c.Calendar.TradingDays.Source == SourceCSV && c.Calendar.TradingDays.Path == "" {
		errs = append(errs, errors.New("calendar.trading_days.path is required for the csv source"))
	}
	if c.RPC.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("rpc.max_attempts %d: want at least 1", c.RPC.MaxAttempts))
	}
	if c.Pricing.BatchWorkers < 0 {
		errs = append(errs, fmt.Errorf("pricing.batch_workers %d: must not be negative", c.Pricing.BatchWorkers))
	}
	if err := (calendar.RecessWindow{Start: c.Calendar.RecessStart, End: c.Calendar.RecessEnd}).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calendar recess: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// Options converts the calendar section into build options with the given
// holidays. Every parse failure wraps calendar.ErrConfiguration.
func (c CalendarConfig) Options(holidays []time.Time) (calendar.Options, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return calendar.Options{}, fmt.Errorf("%w: timezone %q: %v", calendar.ErrConfiguration, c.Timezone, err)
	}
	start, end, err := c.Range()
	if err != nil {
		return calendar.Options{}, err
	}
	openAt, err := calendar.ParseTimeOfDay(c.Open)
	if err != nil {
		return calendar.Options{}, fmt.Errorf("calendar.open: %w", err)
	}
	closeAt, err := calendar.ParseTimeOfDay(c.Close)
	if err != nil {
		return calendar.Options{}, fmt.Errorf("calendar.close: %w", err)
	}
	specialOpens, err := parseOverrides(c.SpecialOpen)
	if err != nil {
		return calendar.Options{}, fmt.Errorf("calendar.special_opens: %w", err)
	}
	earlyCloses, err := parseOverrides(c.EarlyClose)
	if err != nil {
		return calendar.Options{}, fmt.Errorf("calendar.early_closes: %w", err)
	}

	return calendar.Options{
		Name:         c.Name,
		Start:        start,
		End:          end,
		Holidays:     holidays,
		Open:         openAt,
		Close:        closeAt,
		Location:     loc,
		Recess:       calendar.RecessWindow{Start: c.RecessStart, End: c.RecessEnd},
		SpecialOpens: specialOpens,
		EarlyCloses:  earlyCloses,
	}, nil
}

// Range parses the calendar bounds. Both are required.
func (c CalendarConfig) Range() (time.Time, time.Time, error) {
	if c.Start == "" || c.End == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: calendar.start and calendar.end are required", calendar.ErrConfiguration)
	}
	start, err := calendar.ParseDay(c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("calendar.start: %w", err)
	}
	end, err := calendar.ParseDay(c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("calendar.end: %w", err)
	}
	return start, end, nil
}

func parseOverrides(in map[string]string) (map[time.Time]calendar.TimeOfDay, error) {
	if len(in) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[time.Time]calendar.TimeOfDay, len(in))
	for _, k := range keys {
		d, err := calendar.ParseDay(k)
		if err != nil {
			return nil, err
		}
		tod, err := calendar.ParseTimeOfDay(in[k])
		if err != nil {
			return nil, err
		}
		out[d] = tod
	}
	return out, nil
}
