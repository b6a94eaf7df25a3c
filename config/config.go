// Package config loads and saves the cashtx key=value configuration file.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitfsorg/libcashtx-go/network"
	"github.com/bitfsorg/libcashtx-go/tx"
)

const configFileName = "config"

// Config holds the settings shared by the cashtx commands.
type Config struct {
	DataDir  string
	Network  string
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Servers overrides the network preset when non-empty.
	Servers []string
	// SeedDomain, when set, is resolved through DNSSEC SRV lookups for
	// additional Electrum servers.
	SeedDomain    string
	Confidence    int
	Distribution  int
	ManualConnect bool

	FeePerByte    uint64
	MaxIterations int

	// MetricsAddr is a host:port for the Prometheus listener. Empty disables it.
	MetricsAddr string
}

// DefaultDataDir returns ~/.cashtx, falling back to ./.cashtx when the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cashtx"
	}
	return filepath.Join(home, ".cashtx")
}

// DefaultConfig returns a mainnet configuration with the default fee policy.
func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		Network:       "mainnet",
		LogLevel:      "info",
		FeePerByte:    tx.DefaultFeePerByte,
		MaxIterations: tx.DefaultMaxIterations,
	}
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), configFileName)
}

// KeystorePath returns the bbolt keystore path.
func (c Config) KeystorePath() string { return filepath.Join(c.DataDir, c.Network, "keys.db") }

// RegistryPath returns the SQLite contract registry path.
func (c Config) RegistryPath() string { return filepath.Join(c.DataDir, c.Network, "contracts.db") }

// CachePath returns the bbolt UTXO cache path.
func (c Config) CachePath() string { return filepath.Join(c.DataDir, c.Network, "utxos.db") }

// ClusterFlags returns the cluster settings this file overrides. The result
// is meant as the flags argument of network.ResolveConfig.
func (c Config) ClusterFlags() *network.ClusterConfig {
	return &network.ClusterConfig{
		Network:      c.Network,
		Servers:      append([]string(nil), c.Servers...),
		Confidence:   c.Confidence,
		Distribution: c.Distribution,
	}
}

// LoadConfig reads path on top of DefaultConfig. Blank lines and lines
// starting with '#' are skipped; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %w", ErrInvalidConfigLine, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits a line on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "datadir":
		c.DataDir = value
	case "network":
		c.Network = value
	case "loglevel":
		c.LogLevel = value
	case "logfile":
		c.LogFile = value
	case "logjson":
		c.LogJSON, err = parseBool(value)
	case "servers":
		c.Servers = splitList(value)
	case "seeddomain":
		c.SeedDomain = value
	case "confidence":
		c.Confidence, err = strconv.Atoi(value)
	case "distribution":
		c.Distribution, err = strconv.Atoi(value)
	case "manualconnect":
		c.ManualConnect, err = parseBool(value)
	case "feeperbyte":
		c.FeePerByte, err = strconv.ParseUint(value, 10, 64)
	case "maxiterations":
		c.MaxIterations, err = strconv.Atoi(value)
	case "metrics":
		c.MetricsAddr = value
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SaveConfig writes cfg to path, creating parent directories as needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# cashtx configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "network = %s\n", cfg.Network)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	fmt.Fprintf(&b, "logjson = %t\n", cfg.LogJSON)
	b.WriteString("\n# Electrum cluster\n")
	fmt.Fprintf(&b, "servers = %s\n", strings.Join(cfg.Servers, ","))
	fmt.Fprintf(&b, "seeddomain = %s\n", cfg.SeedDomain)
	fmt.Fprintf(&b, "confidence = %d\n", cfg.Confidence)
	fmt.Fprintf(&b, "distribution = %d\n", cfg.Distribution)
	fmt.Fprintf(&b, "manualconnect = %t\n", cfg.ManualConnect)
	b.WriteString("\n# Fee policy\n")
	fmt.Fprintf(&b, "feeperbyte = %d\n", cfg.FeePerByte)
	fmt.Fprintf(&b, "maxiterations = %d\n", cfg.MaxIterations)
	b.WriteString("\n")
	fmt.Fprintf(&b, "metrics = %s\n", cfg.MetricsAddr)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
