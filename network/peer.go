package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bitfsorg/libcashtx-go/log"
)

// rpcRequest is a JSON-RPC 2.0 request frame.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcMessage is any frame received from the server: a response when ID is
// set, a subscription notification otherwise.
type rpcMessage struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// NotificationHandler receives server push notifications.
type NotificationHandler func(method string, params json.RawMessage)

// Peer is one Electrum server connection. Requests may be issued
// concurrently; responses are matched by id.
type Peer struct {
	url      string
	conn     *websocket.Conn
	onNotify NotificationHandler
	logger   zerolog.Logger
	nextID   atomic.Int64

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[int64]chan rpcMessage
	closed   bool
	closeErr error
	done     chan struct{}

	serverVersion []string
}

// DialPeer connects to url and performs the server.version handshake.
func DialPeer(ctx context.Context, url string, cfg *ClusterConfig, onNotify NotificationHandler) (*Peer, error) {
	c := *cfg
	c.applyDefaults()

	dialer := websocket.Dialer{HandshakeTimeout: c.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, url, err)
	}

	p := &Peer{
		url:      url,
		conn:     conn,
		onNotify: onNotify,
		logger:   log.Network.With().Str("peer", url).Logger(),
		pending:  make(map[int64]chan rpcMessage),
		done:     make(chan struct{}),
	}
	go p.readLoop()

	hctx, cancel := context.WithTimeout(ctx, c.HandshakeTimeout)
	defer cancel()
	raw, err := p.Request(hctx, "server.version", c.ClientName, c.ProtocolVersion)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: handshake with %s: %w", ErrConnectionFailed, url, err)
	}
	if err := json.Unmarshal(raw, &p.serverVersion); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: server.version from %s: %w", ErrInvalidResponse, url, err)
	}
	p.logger.Debug().Strs("version", p.serverVersion).Msg("peer connected")
	return p, nil
}

// URL returns the server address.
func (p *Peer) URL() string { return p.url }

// ServerVersion returns the [software, protocol] pair from the handshake.
func (p *Peer) ServerVersion() []string { return p.serverVersion }

// Done is closed when the connection is gone.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Request sends one JSON-RPC call and waits for its response.
func (p *Peer) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	id := p.nextID.Add(1)
	ch := make(chan rpcMessage, 1)

	p.mu.Lock()
	if p.closed {
		err := p.closeErr
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerClosed, p.url, err)
	}
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("network: marshal request: %w", err)
	}
	p.writeMu.Lock()
	err = p.conn.WriteMessage(websocket.TextMessage, data)
	p.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: write to %s: %w", ErrConnectionFailed, p.url, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-p.done:
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerClosed, p.url, p.err())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the connection. Pending requests fail with ErrPeerClosed.
func (p *Peer) Close() error {
	p.writeMu.Lock()
	_ = p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	p.writeMu.Unlock()
	p.shutdown(errors.New("closed by client"))
	return p.conn.Close()
}

func (p *Peer) readLoop() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.shutdown(err)
			return
		}
		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if msg.ID == nil {
			if msg.Method != "" && p.onNotify != nil {
				p.onNotify(msg.Method, msg.Params)
			}
			continue
		}
		p.mu.Lock()
		ch := p.pending[*msg.ID]
		p.mu.Unlock()
		if ch != nil {
			ch <- msg
		}
	}
}

func (p *Peer) shutdown(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.closeErr = err
	close(p.done)
}

func (p *Peer) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeErr
}
