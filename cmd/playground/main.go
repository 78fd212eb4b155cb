// Package main is a terminal player for a running kabutune server. It
// searches, plays through ffmpeg and keeps the queue filled with related
// tracks.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kabutune/internal/client"
	"kabutune/internal/config"
	"kabutune/internal/logger"
	"kabutune/internal/network"
	"kabutune/internal/player"
	"kabutune/internal/player/ffmpeg"
	"kabutune/internal/track"
	"kabutune/pkg/deps"
)

type action int

const (
	actionNext action = iota
	actionPrev
	actionQuit
)

func main() {
	serverURL := flag.String("server", "http://localhost:4000", "kabutune server address")
	query := flag.String("q", "", "Search query to start from")
	volume := flag.Float64("volume", 1.0, "Volume multiplier 0.0-2.0")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()
	if *query == "" && flag.NArg() > 0 {
		*query = strings.Join(flag.Args(), " ")
	}
	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: playground [-server URL] -q <query>")
		os.Exit(2)
	}

	log := logger.New(config.LoggingConfig{LogLevel: *logLevel})

	if err := deps.NewChecker("ffmpeg").CheckAndLog(log); err != nil {
		log.WithError(err).Fatal("ffmpeg is required for playback")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient, err := network.SetupHTTPClient(network.NewAPIClientConfig(config.NewHTTPConfig(""), 20*time.Second), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up HTTP client")
	}
	api := client.New(*serverURL, httpClient)

	cfg := player.DefaultConfig()
	cfg.Volume = *volume
	out := ffmpeg.New(cfg, log)

	// ─── Step 1: Search and load the queue ───
	tracks, _, err := api.Search(ctx, *query, "")
	if err != nil {
		log.WithError(err).Fatal("Search failed")
	}
	if len(tracks) == 0 {
		log.WithField("query", *query).Fatal("No results")
	}
	queue := player.NewQueue()
	queue.PlayAll(tracks)

	fmt.Println("Commands: n=next  p=prev  s=shuffle  r=repeat  l=list  q=quit")
	commands := readCommands()

	// ─── Step 2: Play until the queue runs dry or the user quits ───
	for ctx.Err() == nil {
		cur, ok := queue.Current()
		if !ok {
			return
		}
		refill(ctx, queue, api, log)

		fmt.Printf("▶ %s | %s [%s]\n", cur.Title, cur.Channel, cur.Duration)
		act := play(ctx, out, api.StreamURL(cur.ID), queue, commands, log)

		switch act {
		case actionQuit:
			return
		case actionPrev:
			queue.Prev()
		case actionNext:
			if next, _ := queue.Next(); next.ID == cur.ID {
				// held at the end: only new related tracks can move us on
				if n, err := queue.Refill(ctx, api); err != nil || n == 0 {
					log.Info("Queue finished")
					return
				}
				queue.Next()
			}
		}
	}
}

// play blocks until the track ends or a command interrupts it.
func play(ctx context.Context, out player.AudioPlayer, url string, queue *player.Queue, commands <-chan string, log logger.Logger) action {
	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- out.Play(playCtx, url) }()

	interrupt := func(a action) action {
		cancel()
		<-done
		return a
	}

	for {
		select {
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Playback failed, skipping")
			}
			return actionNext
		case <-ctx.Done():
			return interrupt(actionQuit)
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			switch cmd {
			case "n":
				return interrupt(actionNext)
			case "p":
				return interrupt(actionPrev)
			case "q":
				return interrupt(actionQuit)
			case "s":
				fmt.Printf("shuffle: %v\n", queue.ToggleShuffle())
			case "r":
				fmt.Printf("repeat: %v\n", queue.ToggleRepeat())
			case "l":
				printQueue(queue.State())
			}
		}
	}
}

func refill(ctx context.Context, queue *player.Queue, api *client.Client, log logger.Logger) {
	if !queue.NeedsRefill() {
		return
	}
	n, err := queue.Refill(ctx, api)
	if err != nil {
		log.WithError(err).Warn("Auto refill failed")
		return
	}
	log.WithField("added", n).Debug("Queue refilled")
}

func printQueue(st player.State) {
	for i, t := range st.Tracks {
		marker := "  "
		if i == st.Index {
			marker = "▶ "
		}
		fmt.Printf("%s%2d. %s\n", marker, i+1, label(t))
	}
}

func label(t track.Track) string {
	if t.Channel == "" {
		return t.Title
	}
	return t.Title + " | " + t.Channel
}

func readCommands() <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if cmd := strings.ToLower(strings.TrimSpace(scanner.Text())); cmd != "" {
				ch <- cmd
			}
		}
	}()
	return ch
}
