package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	weave "github.com/iov-one/weave"
	"github.com/iov-one/weave/commands/server"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/escheq/escheqd/app"
)

var (
	varHome        *string
	varHistoryDays *uint
)

func init() {
	defaultHome := filepath.Join(os.ExpandEnv("$HOME"), ".escheqd")
	varHome = flag.String("home", defaultHome, "directory to store files under")
	varHistoryDays = flag.Uint("history-days", 30, "days of fund history to retain, 0 keeps everything")

	flag.CommandLine.Usage = helpMessage
}

func helpMessage() {
	fmt.Println("escheqd")
	fmt.Println("        Cheque and deposit fund ABCI application")
	fmt.Println("")
	fmt.Println("help    Print this message")
	fmt.Println("init    Initialize app options in genesis file")
	fmt.Println("start   Run the abci server")
	fmt.Println("version Print the app version")
	fmt.Println(`
  -home string
        directory to store files under (default "$HOME/.escheqd")
  -history-days uint
        days of fund history to retain, 0 keeps everything (default 30)`)
}

func main() {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).
		With("module", "escheq")

	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Println("Missing command:")
		helpMessage()
		os.Exit(1)
	}

	app.HistoryDays = uint32(*varHistoryDays)

	cmd := flag.Arg(0)
	rest := flag.Args()[1:]

	var err error
	switch cmd {
	case "help":
		helpMessage()
	case "init":
		err = server.InitCmd(app.GenInitOptions, logger, *varHome, rest)
	case "start":
		err = server.StartCmd(app.GenerateApp, logger, *varHome, rest)
	case "version":
		fmt.Println(weave.Version)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		helpMessage()
		os.Exit(1)
	}
}
