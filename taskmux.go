package taskmux

// Channel is one of the three call paths to a provider. A provider is
// reached through its vendor SDK, through a CLI subprocess, or through
// protocol-level tool calls; latency and reliability differ per path, so
// metrics are kept separately for each.
type Channel string

const (
	ChannelSDK      Channel = "sdk"
	ChannelCLI      Channel = "cli"
	ChannelProtocol Channel = "protocol"
)

// Valid reports whether c is one of the known call channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSDK, ChannelCLI, ChannelProtocol:
		return true
	}
	return false
}

// CircuitState is the last-known breaker classification for a provider.
// The router never derives this itself; an external circuit breaker pushes
// state changes in at whatever cadence the operator configures.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitHalfOpen CircuitState = "half_open"
	CircuitOpen     CircuitState = "open"
)

// ProviderProfiles maps provider names to their configured attributes.
type ProviderProfiles map[string]*ProviderProfile

// ProviderProfile carries the static per-provider attributes that cannot be
// observed from execution outcomes. Latency and availability are measured;
// cost and quality come from configuration.
type ProviderProfile struct {
	// Cost in USD per 1K units of work. E.g., 0.015
	CostPerUnit float64 `yaml:"cost_per_unit" json:"cost_per_unit"`

	// Quality rating between 0 and 1. E.g., 0.9 for a flagship model,
	// 0.4 for a small local one.
	Quality float64 `yaml:"quality" json:"quality"`
}
