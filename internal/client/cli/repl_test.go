package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  [][]string
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Status(ctx context.Context) error {
	f.calls = append(f.calls, "status")
	return nil
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.calls = append(f.calls, "login")
	f.loggedIn = true
	return nil
}
func (f *fakeExec) Provision(ctx context.Context, args []string) error {
	f.calls = append(f.calls, "provision")
	f.args = append(f.args, args)
	return nil
}
func (f *fakeExec) Show(ctx context.Context) error { f.calls = append(f.calls, "show"); return nil }
func (f *fakeExec) URLs(ctx context.Context, args []string) error {
	f.calls = append(f.calls, "urls")
	f.args = append(f.args, args)
	return nil
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.calls = append(f.calls, "logout")
	f.loggedIn = false
	return nil
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	out := captureOutput(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"show",
		"login",
		"",
		"help",
		"status",
		"provision 11111111-1111-4111-8111-111111111111",
		"show",
		"urls a.jpg b.jpg",
		"foobar",
		"logout",
		"urls c.jpg",
		"exit",
		"status",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewScanner(input))

	assert.Equal(t, []string{"login", "status", "provision", "show", "urls", "logout"}, exec.calls)
	assert.Equal(t, [][]string{{"11111111-1111-4111-8111-111111111111"}, {"a.jpg", "b.jpg"}}, exec.args)

	got := out.String()
	assert.Contains(t, got, "Please login first")
	assert.Contains(t, got, "Unknown command: foobar")
	assert.Contains(t, got, "Bye!")
}

func TestRunREPL_EOF(t *testing.T) {
	captureOutput(t)
	exec := &fakeExec{loggedIn: true}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("show")))
	assert.Equal(t, []string{"show"}, exec.calls)
}
