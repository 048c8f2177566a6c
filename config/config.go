package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Alloc credits an address at genesis. Balance is a decimal string so large
// amounts survive the TOML round trip.
type Alloc struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

type NodeConfig struct {
	RPCAddress string  `toml:"RPCAddress"`
	DataDir    string  `toml:"DataDir"`
	Backend    string  `toml:"Backend"`
	FeePercent uint64  `toml:"FeePercent"`
	Treasury   string  `toml:"Treasury"`
	RPCToken   string  `toml:"RPCToken"`
	LogFile    string  `toml:"LogFile"`
	Alloc      []Alloc `toml:"Alloc"`
}

type GatewayConfig struct {
	ListenAddress     string   `toml:"ListenAddress"`
	NodeURL           string   `toml:"NodeURL"`
	NodeRPCToken      string   `toml:"NodeRPCToken"`
	Verifier          string   `toml:"Verifier"`
	AuthEnabled       bool     `toml:"AuthEnabled"`
	JWTSecret         string   `toml:"JWTSecret"`
	JWTIssuer         string   `toml:"JWTIssuer"`
	JWTAudience       string   `toml:"JWTAudience"`
	RequestsPerMinute float64  `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	AllowedOrigins    []string `toml:"AllowedOrigins"`
}

type TelemetryConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

type Config struct {
	Node      NodeConfig      `toml:"node"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists. Unknown keys are rejected so typos fail fast.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Node.RPCAddress) == "" {
		cfg.Node.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.Node.DataDir) == "" {
		cfg.Node.DataDir = "./camp-data"
	}
	if strings.TrimSpace(cfg.Node.Backend) == "" {
		cfg.Node.Backend = "leveldb"
	}
	if cfg.Node.Alloc == nil {
		cfg.Node.Alloc = []Alloc{}
	}
	if strings.TrimSpace(cfg.Gateway.ListenAddress) == "" {
		cfg.Gateway.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.Gateway.NodeURL) == "" {
		cfg.Gateway.NodeURL = "http://localhost:8545"
	}
	if cfg.Gateway.RequestsPerMinute <= 0 {
		cfg.Gateway.RequestsPerMinute = 120
	}
	if cfg.Gateway.Burst <= 0 {
		cfg.Gateway.Burst = 20
	}
	if cfg.Gateway.AllowedOrigins == nil {
		cfg.Gateway.AllowedOrigins = []string{}
	}
	if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
}

// Validate checks cross-field constraints that TOML decoding cannot express.
func (c *Config) Validate() error {
	switch c.Node.Backend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Node.Backend)
	}
	if c.Node.FeePercent > 100 {
		return fmt.Errorf("fee percent %d exceeds 100", c.Node.FeePercent)
	}
	if c.Node.FeePercent > 0 {
		if !common.IsHexAddress(strings.TrimSpace(c.Node.Treasury)) {
			return fmt.Errorf("treasury address %q invalid", c.Node.Treasury)
		}
	}
	for _, entry := range c.Node.Alloc {
		if !common.IsHexAddress(strings.TrimSpace(entry.Address)) {
			return fmt.Errorf("genesis alloc address %q invalid", entry.Address)
		}
	}
	if verifier := strings.TrimSpace(c.Gateway.Verifier); verifier != "" {
		if !common.IsHexAddress(verifier) {
			return fmt.Errorf("gateway verifier address %q invalid", c.Gateway.Verifier)
		}
	}
	if c.Gateway.AuthEnabled && strings.TrimSpace(c.Gateway.JWTSecret) == "" {
		return fmt.Errorf("gateway auth enabled without JWTSecret")
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

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
