package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stablemint/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// EngineAddress is the bech32 custody account collateral and pulled
	// stable tokens are held under.
	EngineAddress string             `toml:"EngineAddress"`
	StableSymbol  string             `toml:"StableSymbol"`
	Environment   string             `toml:"Environment"`
	LogLevel      string             `toml:"LogLevel"`
	PolicyFile    string             `toml:"PolicyFile"`
	Journal       JournalConfig      `toml:"Journal"`
	Telemetry     TelemetryConfig    `toml:"Telemetry"`
	Collateral    []CollateralConfig `toml:"Collateral"`
}

type JournalConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// CollateralConfig describes one approved collateral asset and its price
// feed. FeedKind is "manual" for an operator-set price or "http" for a
// polled JSON endpoint; the API key is read from FeedAPIKeyEnv, never stored
// in the file.
type CollateralConfig struct {
	Symbol          string `toml:"Symbol"`
	FeedKind        string `toml:"FeedKind"`
	FeedEndpoint    string `toml:"FeedEndpoint"`
	FeedAPIKeyEnv   string `toml:"FeedAPIKeyEnv"`
	InitialPriceUSD int64  `toml:"InitialPriceUSD"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./stablemint-data"
	}
	if strings.TrimSpace(c.StableSymbol) == "" {
		c.StableSymbol = "USDM"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.Journal.Driver) == "" {
		c.Journal.Driver = "sqlite"
		if strings.TrimSpace(c.Journal.DSN) == "" {
			c.Journal.DSN = filepath.Join(c.DataDir, "journal.db")
		}
	}
}

// Validate rejects configurations the daemon could not start with.
func (c *Config) Validate() error {
	if _, err := crypto.DecodeAddress(c.EngineAddress); err != nil {
		return fmt.Errorf("config: invalid EngineAddress: %w", err)
	}
	if len(c.Collateral) == 0 {
		return fmt.Errorf("config: at least one Collateral entry required")
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for i, col := range c.Collateral {
		symbol := strings.ToUpper(strings.TrimSpace(col.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: Collateral[%d] missing Symbol", i)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate collateral symbol %s", symbol)
		}
		seen[symbol] = struct{}{}
		switch strings.ToLower(strings.TrimSpace(col.FeedKind)) {
		case "manual":
			if col.InitialPriceUSD <= 0 {
				return fmt.Errorf("config: collateral %s needs a positive InitialPriceUSD for a manual feed", symbol)
			}
		case "http":
			if strings.TrimSpace(col.FeedEndpoint) == "" {
				return fmt.Errorf("config: collateral %s needs a FeedEndpoint for an http feed", symbol)
			}
		default:
			return fmt.Errorf("config: collateral %s has unknown FeedKind %q", symbol, col.FeedKind)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Journal.Driver)) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported journal driver %q", c.Journal.Driver)
	}
	return nil
}

// createDefault writes and returns a runnable local configuration with a
// freshly generated custody address.
func createDefault(path string) (*Config, error) {
	custody, err := crypto.GenerateAddress()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./stablemint-data",
		EngineAddress: custody.String(),
		StableSymbol:  "USDM",
		Environment:   "local",
		LogLevel:      "info",
		Journal: JournalConfig{
			Driver: "sqlite",
			DSN:    filepath.Join("./stablemint-data", "journal.db"),
		},
		Collateral: []CollateralConfig{{
			Symbol:          "WETH",
			FeedKind:        "manual",
			InitialPriceUSD: 2000,
		}},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
