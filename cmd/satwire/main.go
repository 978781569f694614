// Command satwire runs a Bitcoin P2P node that accepts and dials peers,
// negotiates versions and keeps channels alive.
//
// Usage:
//
//	satwire [flags]
//
// Flags:
//
//	--config     TOML config file
//	--port       P2P listening port (default: network port)
//	--network    mainnet, testnet3, regtest, signet, simnet (default: mainnet)
//	--connect    Peer host:port to dial, repeatable
//	--loglevel   debug, info, warn, error (default: info)
//	--logformat  text, json (default: text)
//	--maxconns   Maximum number of channels (default: 125)
//	--proxy      SOCKS5 proxy for outbound connections
//	--version    Print version and exit
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/satwire/satwire/log"
	"github.com/satwire/satwire/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args, os.Stdout, os.Stderr)
	if exit {
		return code
	}

	logger := cfg.Logger()
	log.SetDefault(logger)
	logger.Info("satwire starting", "version", version, "commit", commit,
		"network", cfg.Network, "port", cfg.Port, "peers", len(cfg.Peers))

	n, err := node.New(&cfg)
	if err != nil {
		logger.Error("failed to create node", "err", err)
		return 1
	}
	if err := n.Start(); err != nil {
		logger.Error("failed to start node", "err", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	if err := n.Stop(); err != nil {
		logger.Error("shutdown failed", "err", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// parseFlags builds the node config from defaults, the optional config file
// and the command line, in that order. Returns the config, whether the
// caller should exit immediately, and the exit code.
func parseFlags(args []string, stdout, stderr io.Writer) (node.Config, bool, int) {
	var opts options
	fs := newFlagSet(&opts)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return node.Config{}, true, 0
		}
		return node.Config{}, true, 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %v\n", fs.Args())
		return node.Config{}, true, 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "satwire %s (commit %s)\n", version, commit)
		return node.Config{}, true, 0
	}

	cfg := node.DefaultConfig()
	if opts.config != "" {
		loaded, err := node.LoadConfig(opts.config)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return node.Config{}, true, 1
		}
		cfg = loaded
	}
	opts.apply(fs, &cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return node.Config{}, true, 1
	}
	return cfg, false, 0
}
