package network

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// electrumHandler answers one method. Returning a non-nil *RPCError sends an
// error object instead of a result.
type electrumHandler func(params []json.RawMessage) (interface{}, *RPCError)

type serverConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *serverConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// fakeElectrum is an in-process Electrum WebSocket server.
type fakeElectrum struct {
	URL      string
	server   *httptest.Server
	handlers map[string]electrumHandler

	accepted atomic.Int32
	calls    atomic.Int32

	mu    sync.Mutex
	conns []*serverConn
}

func newFakeElectrum(t *testing.T, handlers map[string]electrumHandler) *fakeElectrum {
	t.Helper()
	f := &fakeElectrum{handlers: handlers}
	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		f.accepted.Add(1)
		sc := &serverConn{conn: conn}
		f.mu.Lock()
		f.conns = append(f.conns, sc)
		f.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     int64             `json:"id"`
				Method string            `json:"method"`
				Params []json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			switch h, ok := f.handlers[req.Method]; {
			case req.Method == "server.version":
				resp["result"] = []string{"Fulcrum 1.11.0", "1.5"}
			case ok:
				f.calls.Add(1)
				result, rpcErr := h(req.Params)
				if rpcErr != nil {
					resp["error"] = rpcErr
				} else {
					resp["result"] = result
				}
			default:
				resp["error"] = &RPCError{Code: -32601, Message: "unknown method " + req.Method}
			}
			if err := sc.write(resp); err != nil {
				return
			}
		}
	}))
	f.URL = "ws" + strings.TrimPrefix(f.server.URL, "http")
	t.Cleanup(f.server.Close)
	return f
}

// notify pushes a notification to every open connection.
func (f *fakeElectrum) notify(method string, params interface{}) {
	f.mu.Lock()
	conns := append([]*serverConn(nil), f.conns...)
	f.mu.Unlock()
	for _, c := range conns {
		_ = c.write(map[string]interface{}{"jsonrpc": "2.0", "method": method, "params": params})
	}
}

func fixed(result interface{}) electrumHandler {
	return func([]json.RawMessage) (interface{}, *RPCError) { return result, nil }
}

func testClusterConfig(urls ...string) *ClusterConfig {
	return &ClusterConfig{
		Network:          "regtest",
		Servers:          urls,
		Confidence:       1,
		HandshakeTimeout: 5 * time.Second,
	}
}
