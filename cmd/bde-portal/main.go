package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/config"
	"github.com/noah-isme/bde-portal/pkg/logger"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":               {"sign in and remember the session", cmdLogin},
	"logout":              {"sign out and forget the session", cmdLogout},
	"whoami":              {"print the signed-in user", cmdWhoami},
	"signup":              {"create a student account", cmdSignup},
	"reset-password":      {"email a password reset link", cmdResetPassword},
	"confirm-reset":       {"set a new password from a reset link", cmdConfirmReset},
	"route":               {"show where the session lands or whether a page is reachable", cmdRoute},
	"dashboard":           {"first page of every list at once", cmdDashboard},
	"mute":                {"mute notification sounds", cmdMute(true)},
	"unmute":              {"unmute notification sounds", cmdMute(false)},
	"list":                {"show one page of a list", cmdList},
	"create-announcement": {"post an announcement", cmdCreateAnnouncement},
	"update":              {"edit fields of an item", cmdUpdate},
	"pin":                 {"pin an item", cmdPin(true)},
	"unpin":               {"unpin an item", cmdPin(false)},
	"delete":              {"delete an item", cmdDelete},
	"bulk-delete":         {"delete several items", cmdBulkDelete},
	"export":              {"write a page to csv or pdf", cmdExport},
	"watch":               {"poll a list and print changes", cmdWatch},
}

// errUsage marks bad invocations; main exits 2 for them.
var errUsage = errors.New("usage")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			if err != errUsage {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", appErrors.UserMessage(err, err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return errUsage
	}

	a, err := newApp(ctx, cfg, logr, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, a, args[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: bde-portal <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-20s %s\n", name, commands[name].summary)
	}
}

// newFlags returns a flag set that reports errors instead of exiting. The flag package prints
// parse errors itself, so parse returns the bare errUsage for them.
func newFlags(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}
