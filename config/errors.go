package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"chipnet\", \"testnet4\", or \"regtest\")")

	// ErrInvalidMetricsAddr indicates the metrics listen address is malformed.
	ErrInvalidMetricsAddr = errors.New("config: invalid metrics address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrInvalidServer indicates an Electrum server entry is not a websocket URL.
	ErrInvalidServer = errors.New("config: server must be a ws:// or wss:// URL")

	// ErrInvalidFeeSettings indicates a zero fee rate or iteration bound.
	ErrInvalidFeeSettings = errors.New("config: fee rate and max iterations must be at least 1")

	// ErrInvalidQuorum indicates negative confidence or distribution.
	ErrInvalidQuorum = errors.New("config: confidence and distribution must not be negative")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)
