// Command radio-calico runs the RadioCalico rating server.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"

	"github.com/shaynemeyer/radio-calico/internal/config"
	"github.com/shaynemeyer/radio-calico/internal/ratings"
	"github.com/shaynemeyer/radio-calico/internal/web"
	webfs "github.com/shaynemeyer/radio-calico/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "radio-calico",
	})

	store, err := ratings.Open(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("opening rating store: %w", err)
	}
	defer store.Close()

	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:     cfg.Addr,
		Store:    store,
		Logger:   logger,
		StaticFS: static,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run()
}
