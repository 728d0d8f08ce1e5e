package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAccountService records CompleteAuthorization calls.
type stubAccountService struct {
	completeErr error

	gotProvider string
	gotCode     string
	gotState    string
}

func (s *stubAccountService) Providers() []string { return []string{"twitter"} }

func (s *stubAccountService) BeginAuthorization(ctx context.Context, userID int64, plan, provider, redirectURI string) (string, error) {
	return "https://auth.example.com/authorize", nil
}

func (s *stubAccountService) CompleteAuthorization(ctx context.Context, provider, code, state string) (*models.LinkedAccount, error) {
	s.gotProvider = provider
	s.gotCode = code
	s.gotState = state
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &models.LinkedAccount{ID: 1, UserID: 1, Provider: provider, Status: models.AccountStatusActive}, nil
}

func (s *stubAccountService) List(ctx context.Context, userID int64) ([]*models.LinkedAccount, error) {
	return nil, nil
}

func (s *stubAccountService) UpdateSettings(ctx context.Context, userID, accountID int64, req *transfer.AccountSettingsRequest) (*models.LinkedAccount, error) {
	return nil, nil
}

func (s *stubAccountService) Disconnect(ctx context.Context, userID, accountID int64) (*models.LinkedAccount, error) {
	return nil, nil
}

func (s *stubAccountService) SyncProfile(ctx context.Context, account *models.LinkedAccount) error {
	return nil
}

type stubSubscriptionRepo struct{}

func (r *stubSubscriptionRepo) GetPlanByUserID(ctx context.Context, userID int64) (string, error) {
	return models.PlanFree, nil
}

func newCallbackApp(svc *stubAccountService) *fiber.App {
	cfg := config.Config{FrontendURL: "https://app.example.com"}
	handler := NewAccountHandler(svc, &stubSubscriptionRepo{}, cfg)

	app := fiber.New()
	app.Get("/social/:provider/callback", handler.CallbackHandler)
	return app
}

// The provider redirect carries only code and state; the callback must
// complete on those alone and send the browser to the dashboard.
func TestCallbackHandlerCompletesWithCodeAndStateOnly(t *testing.T) {
	svc := &stubAccountService{}
	app := newCallbackApp(svc)

	req := httptest.NewRequest("GET", "/social/twitter/callback?code=the-code&state=the-state", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://app.example.com/dashboard/accounts", resp.Header.Get("Location"))

	assert.Equal(t, "twitter", svc.gotProvider)
	assert.Equal(t, "the-code", svc.gotCode)
	assert.Equal(t, "the-state", svc.gotState)
}

func TestCallbackHandlerRejectsMissingCode(t *testing.T) {
	svc := &stubAccountService{}
	app := newCallbackApp(svc)

	req := httptest.NewRequest("GET", "/social/twitter/callback?state=the-state", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, svc.gotState)
}
