package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Status(ctx context.Context) error
	Login(ctx context.Context) error
	Provision(ctx context.Context, args []string) error
	Show(ctx context.Context) error
	URLs(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
}

// runREPL reads a line from the scanner, parses the first token as the
// command and dispatches to methods on a. The loop exits on scanner EOF or
// when the user types "exit" or "quit".
//
//	Always:
//	  - help               show available commands
//	  - status             probe the server
//	  - exit | quit        leave the program
//
//	Without a token:
//	  - login              enter an access token
//
//	With a token:
//	  - provision [id]     provision the caller's identity
//	  - show               show the caller's identity
//	  - urls [name...]     request upload authorizations
//	  - logout             forget the token
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("gb (%s) > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if requiresToken(cmd) && !a.isLoggedIn() {
			printlnFn("Please login first")
			continue
		}

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, provision, show, urls, logout, exit")
			} else {
				printlnFn("Available commands: status, login, exit")
			}

		case "status":
			_ = a.Status(ctx)

		case "login":
			_ = a.Login(ctx)

		case "provision":
			_ = a.Provision(ctx, args)

		case "show":
			_ = a.Show(ctx)

		case "urls":
			_ = a.URLs(ctx, args)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func requiresToken(cmd string) bool {
	switch cmd {
	case "provision", "show", "urls", "logout":
		return true
	}
	return false
}
