package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cradle5/cradlesync/internal/buildinfo"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/cradle5/cradlesync/internal/server"
	"github.com/cradle5/cradlesync/internal/server/config"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/term"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	cmd := server.ParseCommand(os.Args[1:])
	switch cmd.Name {
	case "":
		if err := app.Run(ctx); err != nil {
			log.Printf("%v", err)
		}
		return
	case "useradd", "passwd":
		if cmd.UserName == "" {
			log.Printf("usage: %s %s <username>", os.Args[0], cmd.Name)
			return
		}
	}

	password, err := readPassword()
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if cmd.Name == "useradd" {
		err = app.AddUser(ctx, cmd.UserName, password)
	} else {
		err = app.SetPassword(ctx, cmd.UserName, password)
	}
	if err != nil {
		log.Printf("%v", err)
	}
}

// readPassword reads from the terminal without echo, or a line from stdin
// when it is not a terminal.
func readPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return pw, err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
