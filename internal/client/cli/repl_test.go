package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	err      error

	calls []string
	args  [][]string
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	return f.err
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login", nil)
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout", nil)
}
func (f *fakeExec) Add(ctx context.Context, args []string) error    { return f.record("add", args) }
func (f *fakeExec) Edit(ctx context.Context, args []string) error   { return f.record("edit", args) }
func (f *fakeExec) List(ctx context.Context, args []string) error   { return f.record("list", args) }
func (f *fakeExec) Show(ctx context.Context, args []string) error   { return f.record("show", args) }
func (f *fakeExec) Delete(ctx context.Context, args []string) error { return f.record("delete", args) }
func (f *fakeExec) History(ctx context.Context, args []string) error {
	return f.record("history", args)
}
func (f *fakeExec) Sync(ctx context.Context) error   { return f.record("sync", nil) }
func (f *fakeExec) Status(ctx context.Context) error { return f.record("status", nil) }
func (f *fakeExec) Backup(ctx context.Context) error { return f.record("backup", nil) }

func capturePrints(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	out := capturePrints(t)

	input := strings.Join([]string{
		"help",
		"list",
		"login",
		"help",
		"add patient",
		"l outcomes",
		"show 12",
		"edit 12",
		"history 12",
		"delete 12",
		"sync",
		"status",
		"backup",
		"foobar",
		"logout",
		"exit",
		"list",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "(status)" }, rdr(input))

	assert.Equal(t, []string{"login", "add", "list", "show", "edit", "history", "delete", "sync", "status", "backup", "logout"}, exec.calls)
	assert.Equal(t, []string{"patient"}, exec.args[1])
	assert.Equal(t, []string{"outcomes"}, exec.args[2])
	assert.Equal(t, []string{"12"}, exec.args[3])

	assert.Contains(t, *out, helpLoggedOut)
	assert.Contains(t, *out, helpLoggedIn)
	assert.Contains(t, *out, "Please log in first.")
	assert.Contains(t, *out, "Unknown command: foobar")
	assert.Contains(t, *out, "cradle5 (status)> ")
	assert.Equal(t, "Bye!", (*out)[len(*out)-1])
}

func TestRunREPL_PrintsUserMessages(t *testing.T) {
	out := capturePrints(t)

	exec := &fakeExec{loggedIn: true, err: fmt.Errorf("post: %w", client.ErrUnavailable)}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("sync\n"))

	assert.Contains(t, *out, "Error: The server cannot be reached. Your data is saved on this device and will be sent later.")
}

func TestRunREPL_EOFStops(t *testing.T) {
	capturePrints(t)

	exec := &fakeExec{loggedIn: true, err: errors.New("x")}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("status"))

	assert.Equal(t, []string{"status"}, exec.calls)
}
