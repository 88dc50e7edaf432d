package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pulsefeed/pulse/internal/config"
	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/internal/queue"
)

// NewFeedCmd creates the feed command group
func NewFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect and manage feed snapshots",
	}

	cmd.AddCommand(newFeedShowCmd())
	cmd.AddCommand(newFeedHistoryCmd())
	cmd.AddCommand(newFeedRefreshCmd())

	return cmd
}

func newFeedShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show the user's current feed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			feedRepo := database.NewFeedRepository(db)
			snap, err := feedRepo.GetLatest(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to load latest snapshot: %w", err)
			}

			printSnapshot(snap, true)
			return nil
		},
	}
}

func newFeedHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "List the user's feed snapshot versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			feedRepo := database.NewFeedRepository(db)
			snaps, err := feedRepo.GetHistory(context.Background(), userID, limit)
			if err != nil {
				return fmt.Errorf("failed to load snapshot history: %w", err)
			}

			if len(snaps) == 0 {
				fmt.Println("No feed snapshots for this user")
				return nil
			}

			for _, snap := range snaps {
				printSnapshot(snap, false)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of versions to list")
	return cmd
}

func newFeedRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <user-id>",
		Short: "Force an immediate regeneration for the user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer func() {
				if err := jobQueue.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close RabbitMQ connection: %v\n", err)
				}
			}()

			job := queue.NewJob(queue.JobTypeRegenerateFeed, userID, queue.ReasonManual)
			if err := jobQueue.Enqueue(context.Background(), job); err != nil {
				return fmt.Errorf("failed to enqueue regeneration job: %w", err)
			}

			fmt.Printf("Regeneration job enqueued: %s\n", job.ID)
			return nil
		},
	}
}

func openDatabase() (*database.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	return db, closeDB, nil
}

func printSnapshot(snap *models.FeedSnapshot, withItems bool) {
	fmt.Printf("Version %d (created %s)\n", snap.FeedVersion, snap.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  Watermark: entry %d\n", snap.LastProcessedEntryID)
	fmt.Printf("  Items: %d\n", len(snap.Items))
	fmt.Printf("  Cache hit rate: %.1f%%  estimated cost: $%.6f\n",
		snap.Cache.CacheHitRate*100, snap.Cache.EstimatedCostUSD)

	if !withItems {
		fmt.Println()
		return
	}

	for _, item := range snap.Items {
		fmt.Printf("  - [%s] %s (priority %.2f)\n", item.Type, item.Content, item.Priority())
	}
	fmt.Println()
}
