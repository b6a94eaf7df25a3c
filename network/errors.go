package network

import (
	"errors"
	"fmt"
)

// ErrNetwork is the root of every transport or protocol failure.
var ErrNetwork = errors.New("network: request failed")

var (
	// ErrConnectionFailed indicates no connection to the indexer could be made.
	ErrConnectionFailed = fmt.Errorf("%w: connection failed", ErrNetwork)

	// ErrNoPeers indicates the cluster has no connected peers.
	ErrNoPeers = fmt.Errorf("%w: no connected peers", ErrNetwork)

	// ErrPeerClosed indicates a peer connection closed with requests pending.
	ErrPeerClosed = fmt.Errorf("%w: peer closed", ErrNetwork)

	// ErrInvalidResponse indicates the server returned a malformed or unexpected response.
	ErrInvalidResponse = fmt.Errorf("%w: invalid response", ErrNetwork)

	// ErrNoConsensus indicates fewer than Confidence peers returned the same answer.
	ErrNoConsensus = fmt.Errorf("%w: peers disagree", ErrNetwork)

	// ErrDiscovery indicates DNS peer discovery failed.
	ErrDiscovery = fmt.Errorf("%w: peer discovery failed", ErrNetwork)
)

// RPCError is an error object returned by an Electrum server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("network: rpc error %d: %s", e.Code, e.Message)
}

// Unwrap makes every RPCError match ErrNetwork.
func (e *RPCError) Unwrap() error { return ErrNetwork }
