package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libcashtx-go/log"
)

// Transport is the connection a Provider manages.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// Subscriber is implemented by transports that deliver push notifications.
type Subscriber interface {
	Subscribe(method string, handler NotificationHandler)
}

// lifecycleOp is one connect or disconnect. Ops run strictly in the order
// they were started.
type lifecycleOp struct {
	done chan struct{}
	err  error
}

// Provider shares one transport between concurrent requests. The connection
// is opened by the first request, kept open while any request is in flight,
// and closed after the last one finishes. In manual mode the caller opens and
// closes it with Connect and Disconnect.
type Provider struct {
	transport Transport
	Logger    zerolog.Logger

	mu       sync.Mutex
	inflight int
	manual   bool
	session  *lifecycleOp // connect op the current requests wait on
	last     chan struct{}
}

// NewProvider wraps a transport.
func NewProvider(t Transport) *Provider {
	return &Provider{transport: t, Logger: log.Network}
}

// NewClusterProvider builds a Cluster from cfg and wraps it.
func NewClusterProvider(cfg *ClusterConfig) (*Provider, error) {
	c, err := NewCluster(cfg)
	if err != nil {
		return nil, err
	}
	return NewProvider(c), nil
}

// SetManualMode turns automatic connect and disconnect off or on.
func (p *Provider) SetManualMode(manual bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manual = manual
}

// InFlight returns the number of requests currently in progress.
func (p *Provider) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// Connect opens the transport and waits for it. Used in manual mode.
func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	op := p.startConnect()
	p.session = op
	p.mu.Unlock()

	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the transport and waits for it. Used in manual mode.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	op := p.startDisconnect()
	p.session = nil
	p.mu.Unlock()
	<-op.done
	return op.err
}

// Settle waits until every connect and disconnect started so far has run.
func (p *Provider) Settle(ctx context.Context) error {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil {
		return nil
	}
	select {
	case <-last:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PerformRequest issues one request, connecting first if this is the only
// request in flight. Cleanup always runs, and the last request out begins
// the disconnect.
func (p *Provider) PerformRequest(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	if p.inflight == 0 && !p.manual {
		p.session = p.startConnect()
	}
	p.inflight++
	session := p.session
	providerInFlight.Inc()
	p.mu.Unlock()

	defer p.release()

	res, err := p.do(ctx, session, method, params)
	providerRequestsTotal.WithLabelValues(method, outcome(err)).Inc()
	return res, err
}

func (p *Provider) do(ctx context.Context, session *lifecycleOp, method string, params []interface{}) (json.RawMessage, error) {
	if session != nil {
		select {
		case <-session.done:
			if session.err != nil {
				return nil, session.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	res, err := p.transport.Request(ctx, method, params...)
	if err != nil {
		p.Logger.Debug().Err(err).Str("method", method).Msg("request failed")
		return nil, err
	}
	return res, nil
}

func (p *Provider) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight--
	providerInFlight.Dec()
	if p.inflight == 0 && !p.manual {
		p.startDisconnect()
		p.session = nil
	}
}

// Call performs a request and decodes the result into out.
func (p *Provider) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	raw, err := p.PerformRequest(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, method, err)
	}
	return nil
}

// startConnect and startDisconnect must be called with p.mu held.
func (p *Provider) startConnect() *lifecycleOp {
	return p.enqueue(func() error {
		// The connection outlives the request that triggered it.
		err := p.transport.Connect(context.Background())
		providerConnectsTotal.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			p.Logger.Warn().Err(err).Msg("connect failed")
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil
	})
}

func (p *Provider) startDisconnect() *lifecycleOp {
	return p.enqueue(func() error {
		providerDisconnectsTotal.Inc()
		return p.transport.Disconnect()
	})
}

func (p *Provider) enqueue(fn func() error) *lifecycleOp {
	prev := p.last
	op := &lifecycleOp{done: make(chan struct{})}
	p.last = op.done
	go func() {
		if prev != nil {
			<-prev
		}
		op.err = fn()
		close(op.done)
	}()
	return op
}
