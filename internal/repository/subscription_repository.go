package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/relaypost/relaypost/internal/models"
)

type SubscriptionRepository interface {
	GetPlanByUserID(ctx context.Context, userID int64) (string, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetPlanByUserID returns the user's active plan. Users without a
// subscription row are on the free plan.
func (r *subscriptionRepository) GetPlanByUserID(ctx context.Context, userID int64) (string, error) {
	query := `
		SELECT plan FROM subscriptions
		WHERE user_id = $1 AND status = 'active' AND end_date > CURRENT_TIMESTAMP
		ORDER BY end_date DESC LIMIT 1
	`

	var plan string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&plan)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.PlanFree, nil
		}
		slog.Info(err.Error())
		return "", err
	}
	return plan, nil
}
