package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libcashtx-go/log"
)

// Cluster multiplexes requests over several Electrum peers. A response is
// accepted once Confidence peers return it byte-for-byte (after JSON
// compaction).
type Cluster struct {
	cfg    ClusterConfig
	logger zerolog.Logger
	rr     atomic.Uint64

	mu    sync.RWMutex
	peers []*Peer

	subMu    sync.RWMutex
	handlers map[string][]NotificationHandler
}

var _ Transport = (*Cluster)(nil)

// NewCluster validates cfg and returns an unconnected cluster.
func NewCluster(cfg *ClusterConfig) (*Cluster, error) {
	if cfg == nil {
		return nil, fmt.Errorf("network: nil cluster config")
	}
	c := *cfg
	c.Servers = append([]string(nil), cfg.Servers...)
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Cluster{
		cfg:      c,
		logger:   log.Network,
		handlers: make(map[string][]NotificationHandler),
	}, nil
}

// Config returns the effective configuration.
func (c *Cluster) Config() ClusterConfig { return c.cfg }

// Connect dials every server in parallel. It succeeds when at least
// Confidence peers complete the handshake.
func (c *Cluster) Connect(ctx context.Context) error {
	peers := make([]*Peer, len(c.cfg.Servers))
	errs := make([]error, len(c.cfg.Servers))

	var g errgroup.Group
	for i, url := range c.cfg.Servers {
		g.Go(func() error {
			peers[i], errs[i] = DialPeer(ctx, url, &c.cfg, c.dispatch)
			return nil
		})
	}
	_ = g.Wait()

	var connected []*Peer
	for i, p := range peers {
		if errs[i] != nil {
			c.logger.Warn().Err(errs[i]).Str("peer", c.cfg.Servers[i]).Msg("peer unavailable")
			continue
		}
		connected = append(connected, p)
	}
	if len(connected) < c.cfg.Confidence {
		for _, p := range connected {
			_ = p.Close()
		}
		return fmt.Errorf("%w: %d of %d peers connected, need %d: %w",
			ErrConnectionFailed, len(connected), len(c.cfg.Servers), c.cfg.Confidence, errors.Join(errs...))
	}

	c.mu.Lock()
	old := c.peers
	c.peers = connected
	c.mu.Unlock()
	for _, p := range old {
		_ = p.Close()
	}

	c.logger.Info().Int("peers", len(connected)).Msg("cluster connected")
	return nil
}

// Disconnect closes every peer. It is safe to call on an unconnected cluster.
func (c *Cluster) Disconnect() error {
	c.mu.Lock()
	peers := c.peers
	c.peers = nil
	c.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(peers) > 0 {
		c.logger.Info().Int("peers", len(peers)).Msg("cluster disconnected")
	}
	return errors.Join(errs...)
}

// Peers returns the live peers.
func (c *Cluster) Peers() []*Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Peer
	for _, p := range c.peers {
		select {
		case <-p.Done():
		default:
			out = append(out, p)
		}
	}
	return out
}

type peerAnswer struct {
	result json.RawMessage
	err    error
	key    string
}

// Request sends method to Distribution peers (all when zero) and returns the
// first answer backed by Confidence identical responses. Identical RPC
// errors count as an answer and are returned as *RPCError.
func (c *Cluster) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	targets := c.targets()
	if len(targets) < c.cfg.Confidence {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNoPeers, len(targets), c.cfg.Confidence)
	}

	answers := make([]peerAnswer, len(targets))
	var g errgroup.Group
	for i, p := range targets {
		g.Go(func() error {
			res, err := p.Request(ctx, method, params...)
			answers[i] = answerFor(res, err)
			return nil
		})
	}
	_ = g.Wait()

	tally := make(map[string]int)
	var lastErr error
	for _, a := range answers {
		if a.key == "" {
			lastErr = a.err
			continue
		}
		tally[a.key]++
		if tally[a.key] >= c.cfg.Confidence {
			return a.result, a.err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tally) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s: %d distinct answers from %d peers, need %d matching",
		ErrNoConsensus, method, len(tally), len(targets), c.cfg.Confidence)
}

// answerFor keys a peer's reply for the consensus tally. Transport failures
// get no key and never count toward consensus.
func answerFor(res json.RawMessage, err error) peerAnswer {
	var rpcErr *RPCError
	switch {
	case errors.As(err, &rpcErr):
		return peerAnswer{err: rpcErr, key: fmt.Sprintf("error:%d:%s", rpcErr.Code, rpcErr.Message)}
	case err != nil:
		return peerAnswer{err: err}
	}
	var buf bytes.Buffer
	if json.Compact(&buf, res) != nil {
		return peerAnswer{err: fmt.Errorf("%w: not JSON", ErrInvalidResponse)}
	}
	return peerAnswer{result: res, key: "result:" + buf.String()}
}

func (c *Cluster) targets() []*Peer {
	peers := c.Peers()
	n := c.cfg.Distribution
	if n == 0 || n > len(peers) {
		return peers
	}
	start := int(c.rr.Add(1)) % len(peers)
	out := make([]*Peer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, peers[(start+i)%len(peers)])
	}
	return out
}

// Subscribe registers handler for notifications named method.
func (c *Cluster) Subscribe(method string, handler NotificationHandler) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.handlers[method] = append(c.handlers[method], handler)
}

func (c *Cluster) dispatch(method string, params json.RawMessage) {
	c.subMu.RLock()
	handlers := append([]NotificationHandler(nil), c.handlers[method]...)
	c.subMu.RUnlock()
	for _, h := range handlers {
		h(method, params)
	}
}
