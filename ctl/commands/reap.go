package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediaPipeline/cache"
	"mediaPipeline/database"
	"mediaPipeline/engine"
	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/repository"
)

var reapOlderThan time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Fail running pipelines that made no progress",
	Long: `reap marks every running pipeline whose last update is older than --older-than
as failed. Use it after a worker crash left pipelines without a job.`,
	Args: cobra.NoArgs,
	RunE: runReap,
}

func init() {
	reapCmd.Flags().DurationVar(&reapOlderThan, "older-than", 30*time.Minute, "minimum time since the last update")
}

func runReap(cmd *cobra.Command, args []string) error {
	if reapOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive, got %s", reapOlderThan)
	}

	logger := newLogger()
	defer logger.Sync()

	db, err := connectDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	var repo repository.Repository = repository.NewPostgresRepo(db)
	notifier := notify.Multi{notify.NewLogNotifier(logger)}

	if redisAddr != "" {
		redisCache, err := database.ConnectCache(redisAddr)
		if err != nil {
			logger.Warn("Redis unavailable, status cache and events skipped", zap.Error(err))
		} else {
			defer redisCache.Close()
			repo = cache.TrackStatus(repo, cache.NewStatusCache(redisCache, 0), logger)
			notifier = append(notifier, notify.NewRedisPublisher(redisCache.Client()))
		}
	}

	return reap(cmd.Context(), cmd.OutOrStdout(), repo, notifier, logger, reapOlderThan)
}

// reap needs no dispatcher: failing a pipeline queues nothing.
func reap(ctx context.Context, w io.Writer, repo repository.Repository, notifier notify.Notifier, logger *zap.Logger, olderThan time.Duration) error {
	controls := engine.NewControls(repo, nil, notifier, metrics.New(), logger)

	reaped, err := controls.Reap(ctx, olderThan)
	for _, p := range reaped {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.ProjectID, p.ErrorMessage)
	}
	if err != nil {
		return err
	}
	if len(reaped) == 0 {
		fmt.Fprintln(w, "No stale pipelines.")
	}
	return nil
}
