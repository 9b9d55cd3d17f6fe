package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SorgKs/homeplanner-sub002/internal/config"
	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/planner"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "plannerd",
	Short: "Offline sync engine for the household planner",
	Long: `plannerd runs the offline cache and mutation-queue engine of the
household planner: a bounded local task cache, a bounded queue of pending
mutations, day-boundary recomputation for recurring tasks, and the flush
protocol that drains the queue against the remote task service.`,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the periodic flush loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadEnv()
		if err != nil {
			return err
		}
		eng, err := planner.Open(cfg, log)
		if err != nil {
			return err
		}
		defer eng.Close()

		eng.StartAutoFlush()
		log.Infof("plannerd: daemon started, flushing every %s", cfg.SyncInterval())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Infof("plannerd: shutting down")
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Submit one batch of pending mutations now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlanner(func(ctx context.Context, eng *planner.Planner) error {
			summary, err := eng.FlushNow(ctx)
			if err != nil {
				return fmt.Errorf("flush failed (%d submitted, queue untouched): %w", summary.Submitted, err)
			}
			fmt.Printf("Flushed %d of %d pending mutations\n", summary.Removed, summary.Submitted)
			return nil
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Seed the local cache from the remote task list",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlanner(func(ctx context.Context, eng *planner.Planner) error {
			n, err := eng.Seed(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Cached %d tasks from server\n", n)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local storage usage and pending mutations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlanner(func(ctx context.Context, eng *planner.Planner) error {
			meta := eng.StorageMetadata(ctx)
			pending, err := eng.PendingCount(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Cache:   %d bytes\n", meta.CacheSizeBytes)
			fmt.Printf("Queue:   %d bytes (%d pending mutations)\n", meta.QueueSizeBytes, pending)
			fmt.Printf("Total:   %d bytes (%.1f%% of budget)\n", meta.TotalSizeBytes, meta.Percentage)
			return nil
		})
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List cached tasks after the day-rollover check",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlanner(func(ctx context.Context, eng *planner.Planner) error {
			tasks := eng.Tasks(ctx)
			if len(tasks) == 0 {
				fmt.Println("No cached tasks")
				return nil
			}
			for _, t := range tasks {
				state := " "
				if t.Completed {
					state = "x"
				}
				suffix := ""
				if !t.Enabled {
					suffix = " (inactive)"
				}
				fmt.Printf("[%s] %d  %s  due %s%s\n", state, t.ID, t.Title, t.ReminderTime.Format("2006-01-02 15:04"), suffix)
			}
			return nil
		})
	},
}

func loadEnv() (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	var log *logging.Logger
	if cfg.Log.File != "" {
		log = logging.NewRotating(cfg.Log.Level, cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	} else {
		log = logging.New(cfg.Log.Level, os.Stderr)
	}
	return cfg, log, nil
}

func withPlanner(fn func(context.Context, *planner.Planner) error) error {
	cfg, log, err := loadEnv()
	if err != nil {
		return err
	}
	eng, err := planner.Open(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return fn(ctx, eng)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(daemonCmd, flushCmd, pullCmd, statusCmd, tasksCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "plannerd: %v\n", err)
		os.Exit(1)
	}
}
