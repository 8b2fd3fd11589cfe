// Matchwatch — terminal viewer for a matching job's update timeline. Fetches
// the persisted update log, follows the live WebSocket stream, and prints the
// merged timeline as it grows.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/matchable/matchstream/pkg/cache"
	"github.com/matchable/matchstream/pkg/config"
	"github.com/matchable/matchstream/pkg/stream"
	"github.com/matchable/matchstream/pkg/updates"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "matchwatch",
		Usage: "Follow a matching job's update timeline",
		Commands: []*cli.Command{
			{
				Name:  "updates",
				Usage: "Print the persisted update timeline for a job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "Path to environment file",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "job",
						Usage:    "Matching job id",
						Required: true,
					},
				},
				Action: updatesAction,
			},
			{
				Name:  "watch",
				Usage: "Follow the live stream merged with the persisted timeline",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "Path to environment file",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "job",
						Usage:    "Matching job id",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "poll",
						Usage: "How often to re-render the merged timeline",
						Value: 500 * time.Millisecond,
					},
				},
				Action: watchAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(envPath string) (config.Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("Could not load env file", "path", envPath, "error", err)
	}
	return config.LoadFromEnv()
}

func updatesAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	jobID := cmd.String("job")

	loader := updates.NewLoader(cfg.APIBaseURL, cfg.FetchLimit)
	entries, err := loader.Load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load persisted updates: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("no updates recorded for this job")
		return nil
	}
	for _, entry := range entries {
		printEntry(entry)
	}
	return nil
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	jobID := cmd.String("job")

	// Dependent collection caches, refreshed when the stream signals that
	// jobs or matches changed.
	store := cache.NewStore()
	store.Register(cache.KeyJobs, collectionFetcher(cfg.APIBaseURL, "matching-jobs"))
	store.Register(cache.KeyMatches, collectionFetcher(cfg.APIBaseURL, "matches"))
	invalidator := cache.NewInvalidator(store)

	loader := updates.NewLoader(cfg.APIBaseURL, cfg.FetchLimit)
	persisted, err := loader.Load(ctx, jobID)
	if err != nil {
		slog.Warn("Could not load persisted updates, continuing with live stream only",
			"job_id", jobID, "error", err)
	}

	streamURL, err := stream.ResolveStreamURL(cfg.APIBaseURL, cfg.StreamBaseURL, jobID)
	if err != nil {
		return err
	}

	session := stream.NewJobSession(jobID, streamURL, stream.SessionConfig{
		Invalidator: invalidator,
	})
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	slog.Info("Watching matching job", "job_id", jobID, "stream_url", streamURL)

	printed := make(map[string]bool)
	var lastStatus stream.JobStatus

	ticker := time.NewTicker(cmd.Duration("poll"))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("stopped")
			return nil
		case <-ticker.C:
		}

		merged := stream.Merge(persisted, session.Entries())
		// Oldest first so new entries append to the terminal naturally.
		for i := len(merged) - 1; i >= 0; i-- {
			if printed[merged[i].ID] {
				continue
			}
			printed[merged[i].ID] = true
			printEntry(merged[i])
		}

		if snapshot := session.Status(); snapshot != nil && snapshot.Status != lastStatus {
			lastStatus = snapshot.Status
			fmt.Printf("== job is now %s ==\n", snapshot.Status.Label())
			if snapshot.Status.Terminal() {
				reportCollections(ctx, store)
				if state, _ := session.State(); state != stream.StateOpen {
					return nil
				}
			}
		}
	}
}

// collectionFetcher builds a cache fetcher for one REST collection.
func collectionFetcher(apiBase, collection string) cache.Fetcher {
	base := strings.TrimRight(apiBase, "/")
	client := &http.Client{Timeout: 10 * time.Second}
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+collection+"/", nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: unexpected status %d", collection, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}

// reportCollections refreshes the dependent caches after a terminal status.
// Fetch failures are reported and skipped: the feed server may not expose
// these collections in every deployment.
func reportCollections(ctx context.Context, store *cache.Store) {
	for _, key := range []string{cache.KeyJobs, cache.KeyMatches} {
		data, err := store.Get(ctx, key)
		if err != nil {
			slog.Warn("Could not refresh collection", "key", key, "error", err)
			continue
		}
		slog.Info("Collection refreshed", "key", key, "bytes", len(data))
	}
}

func printEntry(entry stream.Entry) {
	timestamp := entry.Timestamp
	if timestamp == "" {
		timestamp = "unknown time"
	}
	if entry.Description != "" {
		fmt.Printf("[%s] %s — %s\n", timestamp, entry.Title, entry.Description)
		return
	}
	fmt.Printf("[%s] %s\n", timestamp, entry.Title)
}
