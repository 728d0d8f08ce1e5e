package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AnalyticsSyncDelay leaves enough time for early engagement to land
// before the first metrics pull.
const AnalyticsSyncDelay = 15 * time.Minute

func EnqueuePublish(client Enqueuer, payload PublishPostPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = client.Enqueue(task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	slog.Info("publish task scheduled", "post_id", payload.PostID, "delay", delay)
	return nil
}

func EnqueueAnalyticsRefresh(client Enqueuer, payload RefreshAnalyticsPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeRefreshAnalytics, taskPayload)

	_, err = client.Enqueue(task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	slog.Info("analytics refresh scheduled", "user_id", payload.UserID, "delay", delay)
	return nil
}
