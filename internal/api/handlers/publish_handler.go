package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/relaypost/relaypost/internal/queue"
	"github.com/relaypost/relaypost/internal/service"
	"github.com/relaypost/relaypost/internal/transfer"
)

type PublishHandler struct {
	s           service.PublishService
	AsynqClient queue.Enqueuer
}

func NewPublishHandler(s service.PublishService, asynqClient queue.Enqueuer) *PublishHandler {
	return &PublishHandler{s: s, AsynqClient: asynqClient}
}

// PublishPost creates the outbound post and either fans out immediately or
// enqueues it for its scheduled time.
func (h *PublishHandler) PublishPost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.CreatePost(c.Context(), userID, &req.Post)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if post.ScheduledTime != nil {
		delay := time.Until(*post.ScheduledTime)
		if delay < 0 {
			delay = 0
		}
		err = queue.EnqueuePublish(h.AsynqClient, queue.PublishPostPayload{
			UserID:           userID,
			PostID:           post.ID,
			TargetAccountIDs: req.TargetAccountIDs,
		}, delay)
		if err != nil {
			slog.Info(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error scheduling post",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Post scheduled successfully",
			"postId":  post.ID,
		})
	}

	results, summary, err := h.s.Publish(c.Context(), userID, post.ID, req.TargetAccountIDs)
	if err != nil {
		var quotaErr *service.QuotaExceededError
		if errors.As(err, &quotaErr) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": quotaErr.Error(),
			})
		}
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Best effort: freshly posted content gets a delayed first metrics
	// pull.
	if summary.Successful > 0 {
		if err := queue.EnqueueAnalyticsRefresh(h.AsynqClient, queue.RefreshAnalyticsPayload{UserID: userID}, queue.AnalyticsSyncDelay); err != nil {
			slog.Info(err.Error())
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"postId":  post.ID,
		"results": results,
		"summary": summary,
	})
}

func (h *PublishHandler) ListHistory(c *fiber.Ctx) error {
	userID := GetUserID(c)

	records, err := h.s.ListHistory(c.Context(), userID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list publish history",
		})
	}

	return c.Status(fiber.StatusOK).JSON(records)
}
