package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/logger"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/poller"
)

func main() {
	proxyURL := flag.String("url", envOr("STATWATCH_URL", "http://localhost:8080"), "base URL of the stats proxy")
	fallback := flag.Duration("fallback", poller.DefaultFallbackRetry, "retry delay after a failed poll")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	level := flag.String("log-level", envOr("STATWATCH_LOG_LEVEL", "warn"), "log level")
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, *level)

	client, err := poller.NewClient(*proxyURL, &http.Client{Timeout: *timeout})
	if err != nil {
		log.Error("init client", "error", err)
		os.Exit(1)
	}

	p := poller.New(client, poller.NewTextDisplay(os.Stdout), poller.Options{FallbackRetry: *fallback}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 forces an immediate refresh.
	refresh := make(chan os.Signal, 1)
	signal.Notify(refresh, syscall.SIGUSR1)
	defer signal.Stop(refresh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh:
				if !p.Trigger() {
					log.Debug("refresh already in progress")
				}
			}
		}
	}()

	if err := p.Run(ctx); err != nil {
		log.Error("poller stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
