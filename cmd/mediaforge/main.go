// mediaforge manages a personal media library: re-encodes oversized videos,
// finds duplicate files, keeps secrets in an encrypted vault, and packages
// media scripts into standalone executables using a build container.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitUsageError   = 2
	ExitCommandError = 3
)

var errUsage = errors.New("usage error")

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("mediaforge %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return ExitUsageError
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger := SetupLogger(cfg)

	if err := dispatch(args[0], args[1:], cfg, logger); err != nil {
		if errors.Is(err, errUsage) {
			return ExitUsageError
		}
		fmt.Fprintf(os.Stderr, "mediaforge: %v\n", err)
		return ExitCommandError
	}
	return ExitSuccess
}

func usage() {
	fmt.Fprintf(os.Stderr, `mediaforge %s

Usage:
  mediaforge [flags] <command> [args]

Commands:
  optimize [dir]               Re-encode oversized videos in a folder
  dupes [-delete] [dir]        Find (and optionally delete) duplicate files
  vault <subcommand> ...       Manage an encrypted file vault
  pack [manifest]              Build a standalone executable from a manifest
  builds                       Show recent build history
  version                      Print version information

Flags:
  -config string   Path to config file
  -version         Print version and exit

Environment overrides use the MEDIAFORGE_ prefix, e.g. MEDIAFORGE_LOG_LEVEL=debug.
`, Version)
}
