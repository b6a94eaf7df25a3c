package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bitfsorg/libcashtx-go/broadcast"
	"github.com/bitfsorg/libcashtx-go/contract"
	"github.com/bitfsorg/libcashtx-go/engine"
	"github.com/bitfsorg/libcashtx-go/registry"
	"github.com/bitfsorg/libcashtx-go/tx"
)

type utxosCommand struct {
	Refresh bool `short:"r" long:"refresh" description:"Rescan the network before listing"`
	Args    struct {
		Address string `positional-arg-name:"address" required:"yes"`
	} `positional-args:"yes"`
}

func (c *utxosCommand) Execute(_ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	eng, err := a.engine(false)
	if err != nil {
		return err
	}
	var utxos []*tx.UTXO
	if c.Refresh {
		utxos, err = eng.Refresh(a.ctx, c.Args.Address)
	} else {
		utxos, err = eng.Spendable(a.ctx, c.Args.Address)
	}
	if err != nil {
		return err
	}
	if utxos == nil {
		utxos = []*tx.UTXO{}
	}
	return printJSON(utxos)
}

type sendCommand struct {
	From     string   `short:"f" long:"from" required:"yes" description:"Address whose coins are spent"`
	To       []string `short:"t" long:"to" description:"Recipient as address:satoshis (repeatable)"`
	OpReturn []string `long:"op-return" description:"Hex data push for a single OP_RETURN output (repeatable)"`
	Change   string   `long:"change" description:"Change address (default --from)"`
	DryRun   bool     `long:"dry-run" description:"Build and sign without broadcasting"`
}

func (c *sendCommand) Execute(_ []string) error {
	outputs, err := parseOutputs(c.To, c.OpReturn)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	eng, err := a.engine(true)
	if err != nil {
		return err
	}
	utxos, err := eng.Spendable(a.ctx, c.From)
	if err != nil {
		return err
	}
	inputs, err := engine.SelectCoins(utxos, outputs, a.cfg.FeePerByte)
	if err != nil {
		return err
	}
	req := &tx.BuildRequest{
		Inputs:        inputs,
		Outputs:       outputs,
		ChangeAddress: c.Change,
		MaxIterations: a.cfg.MaxIterations,
	}

	if c.DryRun {
		built, err := eng.Builder.Build(a.ctx, req)
		if err != nil {
			return err
		}
		return printJSON(built)
	}
	res, err := eng.Send(a.ctx, req)
	if res != nil {
		if perr := printJSON(res); perr != nil {
			return perr
		}
	}
	return err
}

// parseOutputs turns address:satoshis pairs and OP_RETURN pushes into output
// specs. CashAddr prefixes contain a colon, so the amount follows the last one.
func parseOutputs(to []string, opReturn []string) ([]*tx.OutputSpec, error) {
	var outputs []*tx.OutputSpec
	for _, s := range to {
		i := strings.LastIndex(s, ":")
		if i <= 0 || i == len(s)-1 {
			return nil, fmt.Errorf("%w: output %q must be address:satoshis", tx.ErrInvalidOutput, s)
		}
		sats, err := strconv.ParseUint(s[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: output %q: %w", tx.ErrInvalidOutput, s, err)
		}
		outputs = append(outputs, &tx.OutputSpec{To: s[:i], Satoshis: sats})
	}
	if len(opReturn) > 0 {
		pushes := make([][]byte, len(opReturn))
		for i, h := range opReturn {
			b, err := hex.DecodeString(h)
			if err != nil {
				return nil, fmt.Errorf("%w: op-return push %d: %w", tx.ErrInvalidOutput, i, err)
			}
			pushes[i] = b
		}
		outputs = append(outputs, &tx.OutputSpec{OpReturn: pushes})
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: nothing to send", tx.ErrInvalidOutput)
	}
	for i, out := range outputs {
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}
	return outputs, nil
}

type broadcastCommand struct {
	Args struct {
		RawTx string `positional-arg-name:"rawtx" description:"Transaction hex, or - for stdin"`
	} `positional-args:"yes"`
}

func (c *broadcastCommand) Execute(_ []string) error {
	raw := c.Args.RawTx
	if raw == "" || raw == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		raw = string(b)
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.network()
	if err != nil {
		return err
	}
	res := broadcast.NewGateway(p).Send(a.ctx, raw)
	if err := printJSON(res); err != nil {
		return err
	}
	return res.Err()
}

type importKeyCommand struct {
	WIF string `long:"wif" description:"Key in wallet import format"`
	Hex string `long:"hex" description:"32-byte key as hex"`
}

func (c *importKeyCommand) Execute(_ []string) error {
	if c.WIF != "" && c.Hex != "" {
		return errors.New("use only one of --wif and --hex")
	}
	wif, rawHex := c.WIF, c.Hex
	if wif == "" && rawHex == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		line = strings.TrimSpace(line)
		if len(line) == 64 {
			rawHex = line
		} else {
			wif = line
		}
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ks, err := a.keystore()
	if err != nil {
		return err
	}
	var address string
	if wif != "" {
		address, err = ks.ImportWIF(wif)
	} else {
		var raw []byte
		if raw, err = hex.DecodeString(rawHex); err == nil {
			address, err = ks.Import(raw)
		}
	}
	if err != nil {
		return err
	}
	fmt.Println(address)
	return nil
}

type contractAddCommand struct {
	Artifact string   `short:"a" long:"artifact" required:"yes" description:"Path to the compiled artifact JSON"`
	Args     []string `long:"arg" description:"Constructor argument in declaration order: decimal int, true/false, or hex bytes (repeatable)"`
}

func (c *contractAddCommand) Execute(_ []string) error {
	data, err := os.ReadFile(c.Artifact)
	if err != nil {
		return err
	}
	artifact, err := contract.ParseArtifact(data)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	args := make([]interface{}, len(c.Args))
	for i, v := range c.Args {
		args[i] = v
	}
	ct, err := registry.Instantiate(artifact, args, a.params)
	if err != nil {
		return err
	}
	reg, err := a.registry()
	if err != nil {
		return err
	}
	if err := reg.Put(a.ctx, ct); err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"name":         ct.Name,
		"address":      ct.Address,
		"tokenAddress": ct.TokenAddress,
		"byteSize":     ct.ByteSize,
		"opCount":      ct.OpCount,
	})
}

type contractListCommand struct{}

func (c *contractListCommand) Execute(_ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := a.registry()
	if err != nil {
		return err
	}
	contracts, err := reg.List(a.ctx)
	if err != nil {
		return err
	}
	type row struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
	}
	rows := make([]row, len(contracts))
	for i, ct := range contracts {
		rows[i] = row{Name: ct.Name, Address: ct.Address, Balance: ct.Balance}
	}
	return printJSON(rows)
}
