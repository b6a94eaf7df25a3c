package network

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by ResolveConfig.
const (
	EnvServers    = "CASHTX_ELECTRUM_SERVERS"
	EnvConfidence = "CASHTX_ELECTRUM_CONFIDENCE"
)

const (
	DefaultClientName       = "libcashtx-go"
	DefaultProtocolVersion  = "1.4.3"
	DefaultHandshakeTimeout = 10 * time.Second
)

// ClusterConfig describes the Electrum servers used for one network.
type ClusterConfig struct {
	Network string   `json:"network"`
	Servers []string `json:"servers"`

	// Confidence is how many peers must return an identical response.
	Confidence int `json:"confidence"`

	// Distribution is how many peers each request is sent to. Zero sends to
	// every connected peer.
	Distribution int `json:"distribution"`

	ClientName       string        `json:"client_name,omitempty"`
	ProtocolVersion  string        `json:"protocol_version,omitempty"`
	HandshakeTimeout time.Duration `json:"handshake_timeout,omitempty"`
}

// NetworkPresets holds the default Fulcrum endpoints per network.
var NetworkPresets = map[string]ClusterConfig{
	"mainnet": {
		Servers: []string{
			"wss://bch.imaginary.cash:50004",
			"wss://electroncash.dk:50004",
			"wss://bch.loping.net:50004",
		},
		Confidence: 1,
	},
	"chipnet": {
		Servers:    []string{"wss://chipnet.imaginary.cash:50004", "wss://chipnet.bch.ninja:50004"},
		Confidence: 1,
	},
	"testnet4": {
		Servers:    []string{"wss://testnet4.imaginary.cash:50004"},
		Confidence: 1,
	},
	"regtest": {
		Servers:    []string{"ws://localhost:60003"},
		Confidence: 1,
	},
}

// ResolveConfig merges cluster configuration from three sources with decreasing priority:
//  1. CLI flags (highest priority)
//  2. Environment variables (CASHTX_ELECTRUM_SERVERS, comma separated, and
//     CASHTX_ELECTRUM_CONFIDENCE)
//  3. Network presets (lowest priority)
func ResolveConfig(flags *ClusterConfig, env map[string]string, network string) (*ClusterConfig, error) {
	result := ClusterConfig{Network: network}

	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Servers = append([]string(nil), preset.Servers...)
		result.Network = network
	}

	if env != nil {
		if v := env[EnvServers]; v != "" {
			result.Servers = splitServers(v)
		}
		if v := env[EnvConfidence]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("network: %s: %w", EnvConfidence, err)
			}
			result.Confidence = n
		}
	}

	if flags != nil {
		if len(flags.Servers) > 0 {
			result.Servers = append([]string(nil), flags.Servers...)
		}
		if flags.Confidence > 0 {
			result.Confidence = flags.Confidence
		}
		if flags.Distribution > 0 {
			result.Distribution = flags.Distribution
		}
		if flags.ClientName != "" {
			result.ClientName = flags.ClientName
		}
		if flags.ProtocolVersion != "" {
			result.ProtocolVersion = flags.ProtocolVersion
		}
		if flags.HandshakeTimeout > 0 {
			result.HandshakeTimeout = flags.HandshakeTimeout
		}
	}

	result.applyDefaults()
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate checks that the cluster can satisfy its confidence requirement.
func (c *ClusterConfig) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("network: %s requires at least one server (set --server or %s)", c.Network, EnvServers)
	}
	if c.Confidence < 1 {
		return fmt.Errorf("network: confidence must be at least 1, got %d", c.Confidence)
	}
	if c.Confidence > len(c.Servers) {
		return fmt.Errorf("network: confidence %d exceeds %d servers", c.Confidence, len(c.Servers))
	}
	if c.Distribution < 0 || c.Distribution > len(c.Servers) {
		return fmt.Errorf("network: distribution %d out of range", c.Distribution)
	}
	if c.Distribution > 0 && c.Distribution < c.Confidence {
		return fmt.Errorf("network: distribution %d below confidence %d", c.Distribution, c.Confidence)
	}
	for _, s := range c.Servers {
		if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
			return fmt.Errorf("network: server %q must be a ws:// or wss:// URL", s)
		}
	}
	return nil
}

func (c *ClusterConfig) applyDefaults() {
	if c.Confidence == 0 {
		c.Confidence = 1
	}
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = DefaultProtocolVersion
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
}

func splitServers(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
