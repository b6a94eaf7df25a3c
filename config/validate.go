package config

import (
	"fmt"
	"net"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validNetworks lists the accepted network names.
var validNetworks = map[string]bool{
	"mainnet":  true,
	"chipnet":  true,
	"testnet4": true,
	"regtest":  true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if !validNetworks[cfg.Network] {
		return ErrInvalidNetwork
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	for _, s := range cfg.Servers {
		if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
			return fmt.Errorf("%w: %q", ErrInvalidServer, s)
		}
	}

	if cfg.Confidence < 0 || cfg.Distribution < 0 {
		return ErrInvalidQuorum
	}

	if cfg.FeePerByte == 0 || cfg.MaxIterations < 1 {
		return ErrInvalidFeeSettings
	}

	// The metrics listener is optional.
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMetricsAddr, err)
		}
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
