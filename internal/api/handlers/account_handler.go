package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/repository"
	"github.com/relaypost/relaypost/internal/service"
	"github.com/relaypost/relaypost/internal/transfer"
)

type AccountHandler struct {
	s    service.AccountService
	subs repository.SubscriptionRepository
	cfg  config.Config
}

func NewAccountHandler(s service.AccountService, subs repository.SubscriptionRepository, cfg config.Config) *AccountHandler {
	return &AccountHandler{s: s, subs: subs, cfg: cfg}
}

func (h *AccountHandler) ListProviders(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"providers": h.s.Providers(),
	})
}

func (h *AccountHandler) GetAuthURL(c *fiber.Ctx) error {
	userID := GetUserID(c)
	provider := c.Params("provider")
	redirectURI := c.Query("redirect_uri")

	plan, err := h.subs.GetPlanByUserID(c.Context(), userID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to resolve subscription plan",
		})
	}

	authURL, err := h.s.BeginAuthorization(c.Context(), userID, plan, provider, redirectURI)
	if err != nil {
		var limitErr *service.AccountLimitError
		if errors.As(err, &limitErr) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": limitErr.Error(),
			})
		}
		var notAvailable *service.PlatformNotAvailableError
		if errors.As(err, &notAvailable) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": notAvailable.Error(),
			})
		}
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to start authorization",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"authUrl": authURL,
	})
}

// CallbackHandler receives the provider redirect, which carries only code
// and state. Everything else needed for the exchange lives in the stored
// state payload.
func (h *AccountHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	provider := c.Params("provider")

	if code == "" || state == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing code or state",
		})
	}

	_, err := h.s.CompleteAuthorization(c.Context(), provider, code, state)
	if err != nil {
		var stateErr *service.InvalidStateError
		if errors.As(err, &stateErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid or expired authorization state",
			})
		}
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.s.List(c.Context(), userID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch linked accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *AccountHandler) UpdateAccountSettings(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID, err := c.ParamsInt("id", 0)
	if err != nil || accountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account id",
		})
	}

	var req transfer.AccountSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	account, err := h.s.UpdateSettings(c.Context(), userID, int64(accountID), &req)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to update account settings",
		})
	}

	return c.Status(fiber.StatusOK).JSON(account)
}

func (h *AccountHandler) DisconnectAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID, err := c.ParamsInt("id", 0)
	if err != nil || accountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account id",
		})
	}

	if _, err := h.s.Disconnect(c.Context(), userID, int64(accountID)); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to disconnect account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
