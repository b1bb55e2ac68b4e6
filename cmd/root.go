package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version is overridden at build time with -ldflags "-X apprentice-gateway/cmd.Version=...".
var Version = "dev"

const usage = `apprentice-gateway relays short chat messages to a text-generation provider.

Usage:
  apprentice-gateway serve [flags]

Commands:
  serve    Start the HTTP server
  version  Print the build version

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "version", "--version":
		return printVersion(os.Stdout)
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

func printVersion(w io.Writer) error {
	_, err := fmt.Fprintf(w, "apprentice-gateway %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return err
}
