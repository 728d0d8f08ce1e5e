package queue

import (
	"github.com/hibiken/asynq"
	"github.com/relaypost/relaypost/internal/service"
)

// Enqueuer is the slice of *asynq.Client the queue needs to schedule
// follow-up tasks.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Queue struct {
	publisher service.PublishService
	analytics service.AnalyticsService
	client    Enqueuer
}

func NewQueue(publisher service.PublishService, analytics service.AnalyticsService, client Enqueuer) *Queue {
	return &Queue{
		publisher: publisher,
		analytics: analytics,
		client:    client,
	}
}

const (
	TaskTypePublishPost      = "publish:post"
	TaskTypeRefreshAnalytics = "analytics:refresh"
)

type PublishPostPayload struct {
	UserID           int64   `json:"user_id"`
	PostID           int64   `json:"post_id"`
	TargetAccountIDs []int64 `json:"target_account_ids"`
}

type RefreshAnalyticsPayload struct {
	UserID int64 `json:"user_id"`
}
