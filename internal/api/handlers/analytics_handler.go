package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/relaypost/relaypost/internal/service"
)

type AnalyticsHandler struct {
	s service.AnalyticsService
}

func NewAnalyticsHandler(s service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{s: s}
}

// GetSummary aggregates engagement metrics, optionally filtered by
// provider and a from/to window (RFC 3339 dates).
func (h *AnalyticsHandler) GetSummary(c *fiber.Ctx) error {
	userID := GetUserID(c)
	provider := c.Query("provider")

	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid from date",
			})
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid to date",
			})
		}
		to = &parsed
	}

	summary, err := h.s.RefreshAll(c.Context(), userID, provider, from, to)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to aggregate analytics",
		})
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *AnalyticsHandler) RefreshPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postedContentID, err := c.ParamsInt("id", 0)
	if err != nil || postedContentID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid posted content id",
		})
	}

	metrics, err := h.s.Refresh(c.Context(), userID, int64(postedContentID))
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to refresh analytics",
		})
	}

	return c.Status(fiber.StatusOK).JSON(metrics)
}
