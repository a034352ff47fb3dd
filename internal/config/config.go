// Package config defines all configuration for PerplBot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via PERPL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run" yaml:"dry_run"`
	Chain     ChainConfig     `mapstructure:"chain" yaml:"chain"`
	Wallet    WalletConfig    `mapstructure:"wallet" yaml:"wallet"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ChainConfig identifies the EVM chain and the exchange deployment on it.
type ChainConfig struct {
	RPCURL          string `mapstructure:"rpc_url" yaml:"rpc_url"`
	ChainID         int64  `mapstructure:"chain_id" yaml:"chain_id"`
	ExchangeAddress string `mapstructure:"exchange_address" yaml:"exchange_address"`
	CollateralToken string `mapstructure:"collateral_token" yaml:"collateral_token"`
}

// WalletConfig holds the two keys the hybrid router's contract path signs
// with: a cold owner key (used only for proxy/allowlist setup, never for
// trading) and a hot operator key (used for every trading transaction once
// the proxy is configured), plus the proxy address writes are tunneled
// through.
type WalletConfig struct {
	OwnerPrivateKey         string `mapstructure:"owner_private_key" yaml:"owner_private_key"`
	OperatorPrivateKey      string `mapstructure:"operator_private_key" yaml:"operator_private_key"`
	DelegatedAccountAddress string `mapstructure:"delegated_account_address" yaml:"delegated_account_address"`
}

// APIConfig holds the REST/WebSocket base URLs and the read-path preference.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	WSURL   string `mapstructure:"ws_url" yaml:"ws_url"`
	UseAPI  bool   `mapstructure:"use_api" yaml:"use_api"`
}

// AgentConfig configures the LLM tool-execution loop.
type AgentConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	ChatbotModel    string `mapstructure:"chatbot_model" yaml:"chatbot_model"`
}

// SimulatorConfig configures the liquidation fork simulator.
//
//   - AnvilPath: path to the fork binary.
//   - AnvilTimeout: how long to wait for the forked node to come up.
//   - PriceRangePct: the sweep's symmetric range around the current mark.
//   - PriceSteps: number of coarse sweep points across that range.
//   - BinarySearchIterations: refinement passes once a boundary is bracketed.
//   - MaintenanceMargin: fraction used in the closed-form estimate.
type SimulatorConfig struct {
	AnvilPath              string        `mapstructure:"anvil_path" yaml:"anvil_path"`
	AnvilTimeout           time.Duration `mapstructure:"anvil_timeout" yaml:"anvil_timeout"`
	PriceRangePct          float64       `mapstructure:"price_range_pct" yaml:"price_range_pct"`
	PriceSteps             int           `mapstructure:"price_steps" yaml:"price_steps"`
	BinarySearchIterations int           `mapstructure:"binary_search_iterations" yaml:"binary_search_iterations"`
	MaintenanceMargin      float64       `mapstructure:"maintenance_margin" yaml:"maintenance_margin"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: PERPL_OWNER_PRIVATE_KEY, PERPL_OPERATOR_PRIVATE_KEY,
// PERPL_ANTHROPIC_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PERPL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("PERPL_OWNER_PRIVATE_KEY"); key != "" {
		cfg.Wallet.OwnerPrivateKey = key
	}
	if key := os.Getenv("PERPL_OPERATOR_PRIVATE_KEY"); key != "" {
		cfg.Wallet.OperatorPrivateKey = key
	}
	if key := os.Getenv("PERPL_ANTHROPIC_API_KEY"); key != "" {
		cfg.Agent.AnthropicAPIKey = key
	}
	if os.Getenv("PERPL_DRY_RUN") == "true" || os.Getenv("PERPL_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("api.use_api", true)
	v.SetDefault("simulator.anvil_timeout", 30*time.Second)
	v.SetDefault("simulator.price_range_pct", 30.0)
	v.SetDefault("simulator.price_steps", 20)
	v.SetDefault("simulator.binary_search_iterations", 10)
	v.SetDefault("simulator.maintenance_margin", 0.05)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id is required")
	}
	if c.Chain.ExchangeAddress == "" {
		return fmt.Errorf("chain.exchange_address is required")
	}
	if c.Wallet.OperatorPrivateKey == "" {
		return fmt.Errorf("wallet.operator_private_key is required (set PERPL_OPERATOR_PRIVATE_KEY)")
	}
	if c.API.UseAPI && (c.API.BaseURL == "" || c.API.WSURL == "") {
		return fmt.Errorf("api.base_url and api.ws_url are required when api.use_api is true")
	}
	if c.Simulator.PriceSteps <= 0 {
		return fmt.Errorf("simulator.price_steps must be > 0")
	}
	if c.Simulator.MaintenanceMargin <= 0 || c.Simulator.MaintenanceMargin >= 1 {
		return fmt.Errorf("simulator.maintenance_margin must be in (0, 1)")
	}
	return nil
}

// defaultExample returns a Config populated with safe, non-secret defaults
// suitable for a fresh deployment's starting config.yaml.
func defaultExample() Config {
	return Config{
		DryRun: true,
		Chain: ChainConfig{
			RPCURL:          "https://rpc.example-chain.io",
			ChainID:         1,
			ExchangeAddress: "0x0000000000000000000000000000000000000000",
			CollateralToken: "0x0000000000000000000000000000000000000000",
		},
		API: APIConfig{
			BaseURL: "https://api.example-exchange.io",
			WSURL:   "wss://ws.example-exchange.io",
			UseAPI:  true,
		},
		Agent: AgentConfig{
			ChatbotModel: "claude-sonnet-4-5",
		},
		Simulator: SimulatorConfig{
			AnvilPath:              "anvil",
			AnvilTimeout:           30 * time.Second,
			PriceRangePct:          30.0,
			PriceSteps:             20,
			BinarySearchIterations: 10,
			MaintenanceMargin:      0.05,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// WriteExample writes a starter config.yaml with blank secrets to path,
// for `perplbot init`-style first-run setups. Private keys are deliberately
// left blank — they're meant to come from PERPL_OWNER_PRIVATE_KEY /
// PERPL_OPERATOR_PRIVATE_KEY / PERPL_ANTHROPIC_API_KEY instead.
func WriteExample(path string) error {
	data, err := yaml.Marshal(defaultExample())
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	return nil
}
