// Command radio-client is a headless RadioCalico listener: it follows
// the live HLS stream, keeps the now-playing panels in sync, and lets
// the listener rate tracks from the keyboard.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/shaynemeyer/radio-calico/internal/apiclient"
	"github.com/shaynemeyer/radio-calico/internal/config"
	"github.com/shaynemeyer/radio-calico/internal/metadata"
	"github.com/shaynemeyer/radio-calico/internal/player"
	"github.com/shaynemeyer/radio-calico/internal/ratings"
	"github.com/shaynemeyer/radio-calico/internal/session"
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
		Prefix: "radio-client",
	})

	store, err := session.DefaultFileStore()
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	token, err := session.NewProvider(store).Token()
	if err != nil {
		return fmt.Errorf("establishing listener session: %w", err)
	}

	// One identifier per run; the session token persists across runs.
	instanceID := uuid.NewString()
	logger.Info("starting listener", "session", token, "instance", instanceID)

	api := apiclient.New(cfg.APIBaseURL, token, apiclient.WithInstanceID(instanceID))
	display := newTermDisplay(os.Stdout)
	loop := metadata.NewLoop(
		metadata.NewClient(cfg.MetadataURL),
		api,
		display,
		logger,
		metadata.WithInterval(cfg.PollInterval),
	)

	transport := player.NewHLSTransport(cfg.StreamURL, logger)
	p := player.New(transport, loop, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting player: %w", err)
	}
	defer func() {
		loop.Stop()
		transport.Destroy()
	}()

	fmt.Println("Commands: [p]lay/pause, [u]p vote, [d]own vote, [q]uit")
	return commandLoop(ctx, p, api, display, logger)
}

// commandLoop reads single-letter commands from stdin until the
// context ends or the listener quits.
func commandLoop(ctx context.Context, p *player.Player, api *apiclient.Client, display *termDisplay, logger *log.Logger) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(strings.ToLower(scanner.Text()))
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "p":
				if err := p.Toggle(ctx); err != nil {
					logger.Error("playback toggle failed", "err", err)
				}
				fmt.Println(p.Status())

			case "u":
				vote(ctx, api, display, ratings.ThumbsUp, logger)

			case "d":
				vote(ctx, api, display, ratings.ThumbsDown, logger)

			case "q":
				return nil

			case "":
				// ignore blank lines

			default:
				fmt.Println("Commands: [p]lay/pause, [u]p vote, [d]own vote, [q]uit")
			}
		}
	}
}

func vote(ctx context.Context, api *apiclient.Client, display *termDisplay, rating int, logger *log.Logger) {
	key := display.CurrentKey()
	if key == "" {
		fmt.Println("No track to rate yet")
		return
	}

	if err := api.Submit(ctx, key, rating); err != nil {
		if errors.Is(err, apiclient.ErrRejected) {
			fmt.Println(err)
			return
		}
		logger.Error("rating submission failed", "err", err)
		return
	}

	summary, err := api.Aggregate(ctx, key)
	if err != nil {
		logger.Error("rating refresh failed", "err", err)
		return
	}
	display.ShowRatingPanel(summary, rating, true)
}
