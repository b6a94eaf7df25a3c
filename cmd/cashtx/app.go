package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gcash/bchd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitfsorg/libcashtx-go/config"
	"github.com/bitfsorg/libcashtx-go/engine"
	"github.com/bitfsorg/libcashtx-go/keystore"
	"github.com/bitfsorg/libcashtx-go/log"
	"github.com/bitfsorg/libcashtx-go/network"
	"github.com/bitfsorg/libcashtx-go/registry"
	"github.com/bitfsorg/libcashtx-go/tx"
	"github.com/bitfsorg/libcashtx-go/unlock"
	"github.com/bitfsorg/libcashtx-go/utxocache"
)

// envPassword holds the keystore password.
const envPassword = "CASHTX_PASSWORD"

// app holds the resources a command opened. close releases them in reverse
// order of acquisition.
type app struct {
	ctx    context.Context
	cfg    config.Config
	params *chaincfg.Params

	provider *network.Provider
	closers  []func() error
}

// loadConfig reads the config file, applies command-line overrides and
// validates the result. A missing file yields the defaults.
func loadConfig(o *globalOptions) (config.Config, error) {
	dataDir := o.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	path := o.ConfigFile
	if path == "" {
		path = config.ConfigPath(dataDir)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return cfg, err
	}
	if o.DataDir != "" || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if o.Network != "" {
		cfg.Network = o.Network
	}
	if len(o.Servers) > 0 {
		cfg.Servers = o.Servers
	}
	if o.Confidence > 0 {
		cfg.Confidence = o.Confidence
	}
	if o.SeedDomain != "" {
		cfg.SeedDomain = o.SeedDomain
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogJSON {
		cfg.LogJSON = true
	}
	if o.MetricsAddr != "" {
		cfg.MetricsAddr = o.MetricsAddr
	}
	return cfg, config.ValidateConfig(cfg)
}

// setup loads configuration, initializes logging and starts the metrics
// listener. Stores and the network provider are opened on demand.
func setup() (*app, error) {
	cfg, err := loadConfig(&opts)
	if err != nil {
		return nil, err
	}
	if err := log.Init(strings.ToLower(cfg.LogLevel), cfg.LogJSON, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	params, err := tx.NetworkParams(cfg.Network)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, cfg.Network), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{ctx: ctx, cfg: cfg, params: params}
	a.closers = append(a.closers, func() error { cancel(); return nil })

	if cfg.MetricsAddr != "" {
		if err := network.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			a.close()
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener stopped")
			}
		}()
		a.closers = append(a.closers, srv.Close)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Logger.Warn().Err(err).Msg("shutdown")
		}
	}
	a.closers = nil
}

// network returns the provider, creating it on first use. In manual mode the
// cluster is connected here and disconnected on close; otherwise close waits
// for the automatic disconnect to finish.
func (a *app) network() (*network.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}

	flagsCfg := a.cfg.ClusterFlags()
	if a.cfg.SeedDomain != "" {
		d := &network.Discoverer{}
		found, err := d.DiscoverPeers(a.ctx, a.cfg.SeedDomain)
		if err != nil {
			return nil, err
		}
		flagsCfg.Servers = append(flagsCfg.Servers, found...)
	}
	cc, err := network.ResolveConfig(flagsCfg, environ(), a.cfg.Network)
	if err != nil {
		return nil, err
	}
	p, err := network.NewClusterProvider(cc)
	if err != nil {
		return nil, err
	}

	if a.cfg.ManualConnect {
		p.SetManualMode(true)
		if err := p.Connect(a.ctx); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Disconnect)
	} else {
		a.closers = append(a.closers, func() error { return p.Settle(context.Background()) })
	}
	a.provider = p
	return p, nil
}

// environ returns the environment variables network.ResolveConfig reads.
func environ() map[string]string {
	env := make(map[string]string)
	for _, k := range []string{network.EnvServers, network.EnvConfidence} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env
}

func (a *app) keystore() (*keystore.Store, error) {
	password := os.Getenv(envPassword)
	if password == "" {
		return nil, fmt.Errorf("%s is not set: %w", envPassword, keystore.ErrEmptyPassword)
	}
	ks, err := keystore.Open(a.cfg.KeystorePath(), password, keystore.Options{Params: a.params})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, ks.Close)
	return ks, nil
}

func (a *app) registry() (*registry.Store, error) {
	reg, err := registry.Open(a.cfg.RegistryPath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, reg.Close)
	return reg, nil
}

func (a *app) cache() (*utxocache.Store, error) {
	c, err := utxocache.Open(a.cfg.CachePath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, c.Close)
	return c, nil
}

// engine wires the provider, cache and builder. withSigner adds the keystore
// and contract registry for commands that sign.
func (a *app) engine(withSigner bool) (*engine.Engine, error) {
	p, err := a.network()
	if err != nil {
		return nil, err
	}
	cache, err := a.cache()
	if err != nil {
		return nil, err
	}

	var resolver tx.Resolver
	if withSigner {
		ks, err := a.keystore()
		if err != nil {
			return nil, err
		}
		reg, err := a.registry()
		if err != nil {
			return nil, err
		}
		resolver = unlock.NewResolver(ks, reg, a.params)
	}
	builder := tx.NewBuilder(resolver, a.params)
	builder.FeePerByte = a.cfg.FeePerByte
	return engine.New(p, cache, builder), nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
