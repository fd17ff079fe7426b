// Package config loads service settings from an optional YAML file and the
// environment. Board geometry is fixed and deliberately absent here.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

// Config is the effective service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Game     GameConfig     `yaml:"game"`
	Sound    SoundConfig    `yaml:"sound"`
	Store    StoreConfig    `yaml:"store"`
	Scan     ScanConfig     `yaml:"scan"`
	Strategy StrategyConfig `yaml:"strategy"`
}

type ServerConfig struct {
	Port              int    `yaml:"port"`
	WebRoot           string `yaml:"web_root"`
	RequestTimeoutMs  int    `yaml:"request_timeout_ms"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
}

type GameConfig struct {
	Risk            string  `yaml:"risk"`
	StartingBalance float64 `yaml:"starting_balance"`
	DefaultWager    float64 `yaml:"default_wager"`
}

type SoundConfig struct {
	Enabled    *bool `yaml:"enabled,omitempty"`
	SampleRate int   `yaml:"sample_rate"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ScanConfig struct {
	Workers   int    `yaml:"workers"`
	TimeoutMs int    `yaml:"timeout_ms"`
	MaxNonces uint64 `yaml:"max_nonces"`
}

type StrategyConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
	MaxBets   int `yaml:"max_bets"`
}

// Default returns the built-in configuration.
func Default() Config {
	enabled := true
	return Config{
		Server: ServerConfig{
			Port:              3000,
			WebRoot:           "web",
			RequestTimeoutMs:  60000,
			ShutdownTimeoutMs: 10000,
		},
		Game: GameConfig{
			Risk:            plinko.DefaultRisk,
			StartingBalance: plinko.StartingBalance,
			DefaultWager:    100,
		},
		Sound: SoundConfig{
			Enabled:    &enabled,
			SampleRate: 44100,
		},
		Store: StoreConfig{
			Path: "data/plinko.db",
		},
		Scan: ScanConfig{
			Workers:   0, // runtime.NumCPU
			TimeoutMs: 60000,
			MaxNonces: 1_000_000,
		},
		Strategy: StrategyConfig{
			TimeoutMs: 1000,
			MaxBets:   100_000,
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("PLINKO_CONFIG")
	}
	if path != "" {
		fileCfg, err := readYAML(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		cfg = merge(cfg, fileCfg)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readYAML loads a YAML file. Missing files return a zero config, no error.
func readYAML(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge overlays the non-zero fields of b onto a.
func merge(a, b Config) Config {
	out := a

	if b.Server.Port != 0 {
		out.Server.Port = b.Server.Port
	}
	if b.Server.WebRoot != "" {
		out.Server.WebRoot = b.Server.WebRoot
	}
	if b.Server.RequestTimeoutMs != 0 {
		out.Server.RequestTimeoutMs = b.Server.RequestTimeoutMs
	}
	if b.Server.ShutdownTimeoutMs != 0 {
		out.Server.ShutdownTimeoutMs = b.Server.ShutdownTimeoutMs
	}

	if b.Game.Risk != "" {
		out.Game.Risk = b.Game.Risk
	}
	if b.Game.StartingBalance != 0 {
		out.Game.StartingBalance = b.Game.StartingBalance
	}
	if b.Game.DefaultWager != 0 {
		out.Game.DefaultWager = b.Game.DefaultWager
	}

	if b.Sound.Enabled != nil {
		v := *b.Sound.Enabled
		out.Sound.Enabled = &v
	}
	if b.Sound.SampleRate != 0 {
		out.Sound.SampleRate = b.Sound.SampleRate
	}

	if b.Store.Path != "" {
		out.Store.Path = b.Store.Path
	}

	if b.Scan.Workers != 0 {
		out.Scan.Workers = b.Scan.Workers
	}
	if b.Scan.TimeoutMs != 0 {
		out.Scan.TimeoutMs = b.Scan.TimeoutMs
	}
	if b.Scan.MaxNonces != 0 {
		out.Scan.MaxNonces = b.Scan.MaxNonces
	}

	if b.Strategy.TimeoutMs != 0 {
		out.Strategy.TimeoutMs = b.Strategy.TimeoutMs
	}
	if b.Strategy.MaxBets != 0 {
		out.Strategy.MaxBets = b.Strategy.MaxBets
	}

	return out
}

func applyEnv(cfg *Config) {
	// PORT is the conventional hosting variable; PLINKO_PORT wins when both are set.
	cfg.Server.Port = envInt("PORT", cfg.Server.Port)
	cfg.Server.Port = envInt("PLINKO_PORT", cfg.Server.Port)
	cfg.Server.WebRoot = envString("PLINKO_WEB_ROOT", cfg.Server.WebRoot)
	cfg.Store.Path = envString("PLINKO_DB", cfg.Store.Path)
	cfg.Game.Risk = envString("PLINKO_RISK", cfg.Game.Risk)
	cfg.Scan.Workers = envInt("PLINKO_SCAN_WORKERS", cfg.Scan.Workers)
	if s := os.Getenv("PLINKO_SOUND"); s != "" {
		v := s != "0" && !strings.EqualFold(s, "false") && !strings.EqualFold(s, "off")
		cfg.Sound.Enabled = &v
	}
}

func envInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
			return v
		}
	}
	return def
}

func envString(k, def string) string {
	if s := strings.TrimSpace(os.Getenv(k)); s != "" {
		return s
	}
	return def
}

// SoundEnabled reports whether WAV assets should be rendered at start.
func (c Config) SoundEnabled() bool {
	return c.Sound.Enabled == nil || *c.Sound.Enabled
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.WebRoot == "" {
		errs = append(errs, errors.New("server.web_root must not be empty"))
	}
	if c.Server.RequestTimeoutMs < 0 || c.Server.ShutdownTimeoutMs < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if _, err := plinko.PayoutTable(c.Game.Risk, plinko.DefaultRows); err != nil {
		errs = append(errs, fmt.Errorf("game.risk: %w", err))
	}
	if c.Game.StartingBalance < 0 {
		errs = append(errs, fmt.Errorf("game.starting_balance must not be negative, got %v", c.Game.StartingBalance))
	}
	if c.Game.DefaultWager <= 0 {
		errs = append(errs, fmt.Errorf("game.default_wager must be positive, got %v", c.Game.DefaultWager))
	}
	if c.Sound.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sound.sample_rate must be positive, got %d", c.Sound.SampleRate))
	}
	if c.Scan.Workers < 0 {
		errs = append(errs, fmt.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers))
	}
	if c.Scan.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("scan.timeout_ms must be positive, got %d", c.Scan.TimeoutMs))
	}
	if c.Strategy.TimeoutMs <= 0 || c.Strategy.MaxBets <= 0 {
		errs = append(errs, errors.New("strategy.timeout_ms and strategy.max_bets must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
