package extension

// FeeConfig is the per-network fee policy as it appears in YAML.
type FeeConfig struct {
	// RateBps is the fee rate in integer basis points (100 = 1%).
	RateBps int64 `json:"rate_bps" mapstructure:"rate_bps" yaml:"rate_bps"`

	// DiscountFeeBy selects who absorbs the fee: "amount_to_send"
	// deducts it from the forwarded amount, "balance" charges it on top.
	DiscountFeeBy string `json:"discount_fee_by" mapstructure:"discount_fee_by" yaml:"discount_fee_by"`
}

// Config holds the Custody extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.custody" or "custody" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Fees maps network names to their fee policies. Networks without
	// an entry pay no fee.
	Fees map[string]FeeConfig `json:"fees" mapstructure:"fees" yaml:"fees"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Fees: map[string]FeeConfig{},
	}
}
