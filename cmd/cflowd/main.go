// Package main implements the codeflow daemon (cflowd). It serves the
// diagram API over HTTP until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3aro/codeflow/cmd/cflow/commands"
	"github.com/l3aro/codeflow/internal/config"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Config file path")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cflowd version %s\n", version)
		return
	}

	if err := run(*configPath, *addr, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "cflowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, verbose bool) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return commands.Serve(ctx, cfg, verbose, version)
}
