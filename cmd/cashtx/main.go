// Command cashtx scans, builds, signs and broadcasts Bitcoin Cash
// transactions through an Electrum cluster.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// globalOptions are shared by every command. Zero values leave the config
// file setting in place.
type globalOptions struct {
	DataDir     string   `long:"datadir" description:"Data directory (default ~/.cashtx)"`
	ConfigFile  string   `short:"C" long:"config" description:"Config file (default <datadir>/config)"`
	Network     string   `short:"n" long:"network" description:"mainnet, chipnet, testnet4 or regtest"`
	Servers     []string `short:"s" long:"server" description:"Electrum WebSocket server URL (repeatable)"`
	Confidence  int      `long:"confidence" description:"Peers that must agree on each response"`
	SeedDomain  string   `long:"seed-domain" description:"Discover servers from DNSSEC SRV records under this domain"`
	LogLevel    string   `long:"loglevel" description:"debug, info, warn or error"`
	LogJSON     bool     `long:"log-json" description:"Write JSON logs"`
	MetricsAddr string   `long:"metrics" description:"Serve Prometheus metrics on host:port"`
}

var opts globalOptions

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts = globalOptions{}
	parser := newParser()
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, ferr.Message)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.SubcommandsOptional = false

	mustAdd(parser.AddCommand("utxos", "List spendable outputs of an address",
		"Prints the cached UTXO set of an address as JSON, scanning the network when the address is not cached or --refresh is given.",
		&utxosCommand{}))
	mustAdd(parser.AddCommand("send", "Build, sign and broadcast a payment",
		"Selects coins from --from, pays every --to output and returns change to --change (default --from).",
		&sendCommand{}))
	mustAdd(parser.AddCommand("broadcast", "Broadcast a raw transaction",
		"Submits a hex transaction once and prints {txid, errorMessage}.",
		&broadcastCommand{}))
	mustAdd(parser.AddCommand("import-key", "Import a private key into the keystore",
		"Reads a WIF or 32-byte hex key from --wif, --hex or stdin. The keystore password comes from "+envPassword+".",
		&importKeyCommand{}))

	contractCmd, err := parser.AddCommand("contract", "Manage the contract registry",
		"Instantiates and lists registered contracts.", &struct{}{})
	mustAdd(contractCmd, err)
	mustAdd(contractCmd.AddCommand("add", "Instantiate an artifact and register it",
		"Coerces --arg values against the artifact constructor and stores the contract under its P2SH address.",
		&contractAddCommand{}))
	mustAdd(contractCmd.AddCommand("list", "List registered contracts", "", &contractListCommand{}))
	return parser
}

func mustAdd(_ *flags.Command, err error) {
	if err != nil {
		panic(err)
	}
}
