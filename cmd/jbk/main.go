// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Command jbk is a thin CLI driver over lib/jbk: check a container's
// integrity, rewrite a pack's locator for split-file deployment, or
// walk its internal structure by a slash-separated key path.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jbk-format/jbk/lib/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	for _, arg := range args {
		if arg == "--version" {
			fmt.Printf("jbk %s\n", version.Info())
			return 0
		}
	}

	if len(args) == 0 {
		printUsage()
		return 2
	}

	logger := newLogger(args)

	switch args[0] {
	case "check":
		return cmdCheck(logger, args[1:])
	case "locate":
		return cmdLocate(logger, args[1:])
	case "explore":
		return cmdExplore(logger, args[1:])
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[0])
		printUsage()
		return 2
	}
}

// newLogger builds the default stderr text-handler logger, honoring a
// -v/-q flag found anywhere among args (subcommands re-parse args for
// their own flags; this pass only looks for verbosity).
func newLogger(args []string) *slog.Logger {
	level := slog.LevelInfo
	for _, arg := range args {
		switch arg {
		case "-v", "--verbose":
			level = slog.LevelDebug
		case "-q", "--quiet":
			level = slog.LevelWarn
		}
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `usage: jbk <command> [arguments]

commands:
  check <file>                         verify a container's integrity
  locate <file> <uuid> <new-location>  rewrite a pack's locator
  explore <file> [<key-path>]          walk the container's structure

global flags:
  --version   print version information and exit
  -v          verbose (debug-level) logging
  -q          quiet (warnings and errors only)

exit codes:
  0  success
  1  check found a problem (check only)
  2  usage or I/O error
`)
}
