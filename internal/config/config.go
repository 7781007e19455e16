// Package config loads the streaming engine's settings.yaml/
// strategies.yaml (with ${VAR} environment expansion) and the
// scheduled engine's .env process environment. Grounded on
// original_source/realtime/src/main.py's load_config/expand_env_vars.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"paperrunner/internal/strategy"
)

// AlpacaSettings is the `alpaca:` block of settings.yaml.
type AlpacaSettings struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// SafetySettings is the `safety:` block of settings.yaml.
type SafetySettings struct {
	MaxPositionPct     float64 `yaml:"max_position_pct"`
	MaxOrdersPerMinute int     `yaml:"max_orders_per_minute"`
	CooldownSeconds    float64 `yaml:"cooldown_seconds"`
	PaperOnly          bool    `yaml:"paper_only"`
}

// DashboardSettings is the `dashboard:` block of settings.yaml.
type DashboardSettings struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// HTTPSettings is the `http:` block of settings.yaml, for the
// internal /health, /status, /metrics surface.
type HTTPSettings struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Settings is the full settings.yaml document.
type Settings struct {
	Alpaca    AlpacaSettings    `yaml:"alpaca"`
	Safety    SafetySettings    `yaml:"safety"`
	Dashboard DashboardSettings `yaml:"dashboard"`
	HTTP      HTTPSettings      `yaml:"http"`
}

// WithDefaults fills the safety thresholds' spec defaults.
func (s Settings) WithDefaults() Settings {
	if s.Safety.MaxPositionPct == 0 {
		s.Safety.MaxPositionPct = 0.25
	}
	if s.Safety.MaxOrdersPerMinute == 0 {
		s.Safety.MaxOrdersPerMinute = 10
	}
	if s.Safety.CooldownSeconds == 0 {
		s.Safety.CooldownSeconds = 5
	}
	if s.HTTP.ListenAddr == "" {
		s.HTTP.ListenAddr = ":8080"
	}
	return s
}

// rawStrategyConfig is one entry of strategies.yaml's `strategies:`
// list, before being resolved into a strategy.Config.
type rawStrategyConfig struct {
	Type            string   `yaml:"type"`
	Name            string   `yaml:"name"`
	Symbols         []string `yaml:"symbols"`
	Enabled         *bool    `yaml:"enabled"`
	PositionSizePct float64  `yaml:"position_size_pct"`
	CashAllocation  float64  `yaml:"cash_allocation"`
	CooldownSeconds float64  `yaml:"cooldown_seconds"`

	ThresholdPct     float64 `yaml:"threshold_pct"`
	ExitThresholdPct float64 `yaml:"exit_threshold_pct"`
	LookbackSeconds  int     `yaml:"lookback_seconds"`

	WindowSeconds int     `yaml:"window_seconds"`
	StdThreshold  float64 `yaml:"std_threshold"`
	ExitThreshold float64 `yaml:"exit_threshold"`

	ShortPeriod int `yaml:"short_period"`
	LongPeriod  int `yaml:"long_period"`

	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

// strategiesDocument is the top-level shape of strategies.yaml.
type strategiesDocument struct {
	Strategies []rawStrategyConfig `yaml:"strategies"`
}

// LoadSettings reads and env-expands settings.yaml.
func LoadSettings(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	raw = []byte(expandEnvVars(string(raw)))

	var settings Settings
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings yaml: %w", err)
	}
	return settings.WithDefaults(), nil
}

// LoadStrategies reads strategies.yaml and resolves each entry into a
// constructed strategy.Strategy, skipping any entry with enabled=false.
func LoadStrategies(path string) ([]strategy.Strategy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategies file: %w", err)
	}

	var doc strategiesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse strategies yaml: %w", err)
	}

	strategies := make([]strategy.Strategy, 0, len(doc.Strategies))
	for _, raw := range doc.Strategies {
		if raw.Enabled != nil && !*raw.Enabled {
			continue
		}
		s, err := buildStrategy(raw)
		if err != nil {
			return nil, fmt.Errorf("build strategy %q: %w", raw.Name, err)
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}

func buildStrategy(raw rawStrategyConfig) (strategy.Strategy, error) {
	cfg := strategy.Config{
		Name:            raw.Name,
		Symbols:         raw.Symbols,
		Enabled:         true,
		PositionSizePct: raw.PositionSizePct,
		CashAllocation:  raw.CashAllocation,
		CooldownSeconds: raw.CooldownSeconds,
	}

	switch raw.Type {
	case string(strategy.KindMomentum):
		cfg.Kind = strategy.KindMomentum
		cfg.Momentum = strategy.MomentumParams{
			ThresholdPct:     raw.ThresholdPct,
			ExitThresholdPct: raw.ExitThresholdPct,
			LookbackSeconds:  raw.LookbackSeconds,
		}
		return strategy.NewMomentum(cfg), nil

	case string(strategy.KindMeanReversion):
		cfg.Kind = strategy.KindMeanReversion
		cfg.MeanReversion = strategy.MeanReversionParams{
			WindowSeconds: raw.WindowSeconds,
			StdThreshold:  raw.StdThreshold,
			ExitThreshold: raw.ExitThreshold,
		}
		return strategy.NewMeanReversion(cfg), nil

	case string(strategy.KindSMACrossover):
		cfg.Kind = strategy.KindSMACrossover
		cfg.SMACrossover = strategy.SMACrossoverParams{
			ShortPeriod: raw.ShortPeriod,
			LongPeriod:  raw.LongPeriod,
		}
		return strategy.NewSMACrossover(cfg), nil

	case string(strategy.KindRSI):
		cfg.Kind = strategy.KindRSI
		cfg.RSI = strategy.RSIParams{
			Period:     raw.Period,
			Oversold:   raw.Oversold,
			Overbought: raw.Overbought,
		}
		return strategy.NewRSI(cfg), nil

	case string(strategy.KindBuyAndHold):
		cfg.Kind = strategy.KindBuyAndHold
		return strategy.NewBuyAndHold(cfg), nil

	default:
		return nil, fmt.Errorf("unknown strategy type %q", raw.Type)
	}
}

// expandEnvVars replaces whole-value "${VAR}" tokens with the
// corresponding environment variable, matching the Python source's
// expand_env_vars (which only expands a string value that is *entirely*
// "${VAR}", not interpolation within a larger string).
func expandEnvVars(doc string) string {
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		idx := strings.Index(line, ": ")
		if idx == -1 {
			continue
		}
		key, value := line[:idx+2], strings.TrimSpace(line[idx+2:])
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			varName := value[2 : len(value)-1]
			if resolved, ok := os.LookupEnv(varName); ok {
				lines[i] = key + resolved
			}
		}
	}
	return strings.Join(lines, "\n")
}

// LoadDotenv loads a .env file for the scheduled engine's process
// environment. A missing file is not an error: the path is checked
// with os.Stat first, since godotenv.Load itself fails on a missing
// file.
func LoadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load .env file: %w", err)
	}
	return nil
}
