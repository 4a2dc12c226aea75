package app

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/commands/server"
	"github.com/iov-one/weave/crypto"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/x/cash"
	abci "github.com/tendermint/tendermint/abci/types"

	"github.com/escheq/escheqd/x/fund"
	"github.com/escheq/escheqd/x/token"
)

// GenInitOptions will produce some basic options for one rich account, to
// use for dev mode.
func GenInitOptions(args []string) (json.RawMessage, error) {
	ticker := "ESQ"
	if len(args) > 0 {
		ticker = args[0]
	}

	var addr string
	if len(args) > 1 {
		addr = args[1]
	} else {
		// if no address provided, auto-generate one
		// and print out the placeholder recovery phrase
		bz, phrase, err := GenerateCoinKey()
		if err != nil {
			return nil, err
		}
		addr = bz.String()
		fmt.Println(phrase)
	}

	type (
		dict  map[string]interface{}
		array []interface{}
	)
	return json.Marshal(dict{
		"cash": array{
			dict{
				"address": addr,
				"coins": array{
					dict{
						"whole":  123456789,
						"ticker": ticker,
					},
				},
			},
		},
		"token": array{
			dict{
				"ticker": ticker,
				"name":   "escheq token",
			},
		},
		"conf": dict{
			"cash": cash.Configuration{
				CollectorAddress: weave.NewCondition("dist", "revenue", []byte("collector")).Address(),
				MinimalFee:       coin.Coin{}, // no fee
			},
			"migration": dict{
				"admin": addr,
			},
			"fund": dict{
				"owner":                addr,
				"admin":                addr,
				"maintenance_interval": 86400,
			},
		},
		"initialize_schema": []dict{
			{"pkg": "cash", "ver": 1},
			{"pkg": "sigs", "ver": 1},
			{"pkg": "multisig", "ver": 1},
			{"pkg": "utils", "ver": 1},
			{"pkg": "token", "ver": 1},
			{"pkg": "cheque", "ver": 1},
			{"pkg": "fund", "ver": 1},
		},
	})
}

// GenerateApp is used to create a stub for server/start.go command.
func GenerateApp(options *server.Options) (abci.Application, error) {
	// db goes in a subdir, but "" -> "" for memdb
	var dbPath string
	if options.Home != "" {
		dbPath = filepath.Join(options.Home, "abci.db")
	}

	stack := Stack(nil)
	application, err := Application("escheqd", stack, TxDecoder, dbPath, options.Debug)
	if err != nil {
		return nil, err
	}
	application.WithInit(app.ChainInitializers(
		&migration.Initializer{},
		&cash.Initializer{},
		&token.Initializer{},
		&fund.Initializer{},
	))

	// set the logger and return
	application.WithLogger(options.Logger)
	return application, nil
}

// GenerateCoinKey returns the address of a freshly generated public key,
// along with a fixed placeholder string in place of a recovery phrase. The
// private key is not returned or stored, so it cannot be recovered.
func GenerateCoinKey() (weave.Address, string, error) {
	privKey := crypto.GenPrivKeyEd25519()
	addr := privKey.PublicKey().Address()
	return addr, "TODO: add a recovery phrase", nil
}
