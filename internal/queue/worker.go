package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	results, summary, err := q.publisher.Publish(ctx, payload.UserID, payload.PostID, payload.TargetAccountIDs)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	for _, result := range results {
		if !result.Success {
			slog.Info("publish failed",
				"post_id", payload.PostID,
				"account_id", result.AccountID,
				"provider", result.Provider,
				"error", result.Error)
		}
	}
	slog.Info("scheduled publish finished",
		"post_id", payload.PostID,
		"successful", summary.Successful,
		"failed", summary.Failed)

	// Best effort: the posted content gets a first metrics pull once
	// early engagement has had time to land.
	if summary.Successful > 0 {
		if err := EnqueueAnalyticsRefresh(q.client, RefreshAnalyticsPayload{UserID: payload.UserID}, AnalyticsSyncDelay); err != nil {
			slog.Info(err.Error())
		}
	}
	return nil
}

func (q *Queue) HandleRefreshAnalyticsTask(ctx context.Context, task *asynq.Task) error {
	var payload RefreshAnalyticsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if _, err := q.analytics.RefreshAll(ctx, payload.UserID, "", nil, nil); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
