// Package broadcast submits finished transactions and reports the outcome in
// a form the UI layer can show directly.
package broadcast

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libcashtx-go/log"
	"github.com/bitfsorg/libcashtx-go/network"
)

// ErrBroadcast indicates a transaction was not accepted.
var ErrBroadcast = errors.New("broadcast: rejected")

// Broadcaster submits a raw transaction and returns its txid.
type Broadcaster interface {
	BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error)
}

// Result is the outcome of one submission. Exactly one field is set; the
// other encodes as JSON null.
type Result struct {
	TxID         string
	ErrorMessage string
}

type resultJSON struct {
	TxID         *string `json:"txid"`
	ErrorMessage *string `json:"errorMessage"`
}

// MarshalJSON encodes empty fields as null.
func (r Result) MarshalJSON() ([]byte, error) {
	var out resultJSON
	if r.TxID != "" {
		out.TxID = &r.TxID
	}
	if r.ErrorMessage != "" {
		out.ErrorMessage = &r.ErrorMessage
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts null or absent fields.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{}
	if in.TxID != nil {
		r.TxID = *in.TxID
	}
	if in.ErrorMessage != nil {
		r.ErrorMessage = *in.ErrorMessage
	}
	return nil
}

// OK reports whether the transaction was accepted.
func (r Result) OK() bool { return r.ErrorMessage == "" && r.TxID != "" }

// Err returns nil for an accepted transaction and an ErrBroadcast otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	msg := r.ErrorMessage
	if msg == "" {
		msg = "no txid returned"
	}
	return fmt.Errorf("%w: %s", ErrBroadcast, msg)
}

// Gateway sends transactions through a Broadcaster. It never retries: a
// failed submission may still have reached the network.
type Gateway struct {
	backend Broadcaster
	Logger  zerolog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(b Broadcaster) *Gateway {
	return &Gateway{backend: b, Logger: log.Broadcast}
}

// Send submits rawTxHex once and normalizes any failure into the result.
func (g *Gateway) Send(ctx context.Context, rawTxHex string) Result {
	rawTxHex = strings.TrimSpace(rawTxHex)
	if rawTxHex == "" {
		return Result{ErrorMessage: "empty transaction"}
	}
	if _, err := hex.DecodeString(rawTxHex); err != nil {
		return Result{ErrorMessage: "transaction is not valid hex: " + err.Error()}
	}

	txid, err := g.backend.BroadcastTransaction(ctx, rawTxHex)
	if err != nil {
		msg := errorMessage(err)
		g.Logger.Warn().Err(err).Msg("broadcast failed")
		return Result{ErrorMessage: msg}
	}
	if txid == "" {
		return Result{ErrorMessage: "server returned no txid"}
	}
	g.Logger.Info().Str("txid", txid).Msg("transaction broadcast")
	return Result{TxID: txid}
}

// errorMessage prefers the server's own wording for RPC rejections.
func errorMessage(err error) string {
	var rpcErr *network.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return err.Error()
}
