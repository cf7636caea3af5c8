package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/cradle5/cradlesync/internal/client/services"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Add(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Backup(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: login, help, exit"
	helpLoggedIn  = "Available commands: add <kind>, edit <id>, (l)ist [kind], show <id>, delete <id>, " +
		"history <id>, sync, status, backup, logout, exit\n" +
		"Kinds: patient, outcomes, training, bpinfo"
)

// runREPL reads commands from reader until EOF or "exit"/"quit".
//
// The first token of a line is the command, the rest are its arguments.
// Errors from handlers are printed as user messages and the loop goes on.
// Record commands require a logged-in user.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("cradle5 %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var run func() error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "login":
			run = func() error { return a.Login(ctx) }
		case "logout":
			run = func() error { return a.Logout(ctx) }
		case "add":
			run = func() error { return a.Add(ctx, args) }
		case "edit":
			run = func() error { return a.Edit(ctx, args) }
		case "l", "list":
			run = func() error { return a.List(ctx, args) }
		case "show":
			run = func() error { return a.Show(ctx, args) }
		case "delete":
			run = func() error { return a.Delete(ctx, args) }
		case "history":
			run = func() error { return a.History(ctx, args) }
		case "sync":
			run = func() error { return a.Sync(ctx) }
		case "status":
			run = func() error { return a.Status(ctx) }
		case "backup":
			run = func() error { return a.Backup(ctx) }
		default:
			printlnFn("Unknown command:", cmd)
			continue
		}

		if cmd != "login" && !a.isLoggedIn() {
			printlnFn("Please log in first.")
			continue
		}
		if err := run(); err != nil {
			printlnFn("Error:", services.UserMessage(err))
		}
	}
}
