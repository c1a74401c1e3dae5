package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	resume(ctx context.Context)
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Add(ctx context.Context) error
	AddRemote(ctx context.Context) error
	List(ctx context.Context) error
	Edit(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Attach(ctx context.Context, id, path string) error
	Receipt(ctx context.Context, id string) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Stuck(ctx context.Context) error
	Purge(ctx context.Context) error
	Retry(ctx context.Context) error
}

// runREPL starts a read–eval–print loop.
//
// It reads a line from reader, parses the first token as the command and
// dispatches to methods on a. Commands that take a record id accept it as
// the first argument and prompt for it otherwise. Errors returned by
// handlers are printed and the loop continues. The loop exits on EOF, on
// "exit" or "quit", or when ctx is done.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(w, "spendsync %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			fmt.Fprintln(w, "Bye!")
			return
		}
		a.resume(ctx)
		if err := dispatch(ctx, a, cmd, args, w); err != nil {
			fmt.Fprintln(w, "Error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string, w io.Writer) error {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			fmt.Fprintln(w, "Available commands: add, add-remote, (l)ist, edit <id>, delete <id>, attach <id> <file>, receipt <id>, sync, status, stuck, purge, retry, logout, exit")
		} else {
			fmt.Fprintln(w, "Available commands: login, status, exit")
		}
		return nil
	case "login":
		return a.Login(ctx)
	case "status":
		return a.Status(ctx)
	}

	if !a.isLoggedIn() {
		if isKnown(cmd) {
			fmt.Fprintln(w, "Please login first")
		} else {
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
		return nil
	}

	switch cmd {
	case "add":
		return a.Add(ctx)
	case "add-remote":
		return a.AddRemote(ctx)
	case "l", "list":
		return a.List(ctx)
	case "edit":
		return a.Edit(ctx, arg(args, 0))
	case "delete", "rm":
		return a.Delete(ctx, arg(args, 0))
	case "attach":
		return a.Attach(ctx, arg(args, 0), arg(args, 1))
	case "receipt":
		return a.Receipt(ctx, arg(args, 0))
	case "sync":
		return a.Sync(ctx)
	case "stuck":
		return a.Stuck(ctx)
	case "purge":
		return a.Purge(ctx)
	case "retry":
		return a.Retry(ctx)
	case "logout":
		return a.Logout(ctx)
	default:
		fmt.Fprintln(w, "Unknown command:", cmd)
		return nil
	}
}

var knownCommands = map[string]struct{}{
	"add": {}, "add-remote": {}, "l": {}, "list": {}, "edit": {}, "delete": {}, "rm": {},
	"attach": {}, "receipt": {}, "sync": {}, "stuck": {}, "purge": {}, "retry": {}, "logout": {},
}

func isKnown(cmd string) bool {
	_, ok := knownCommands[cmd]
	return ok
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
