package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rocket-relations/internal/engine"
)

const secret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := GenerateAccessToken("u-1", []string{"admin"}, secret, 0)
	require.NoError(t, err)

	claims, err := ParseAccessToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Roles)

	_, err = ParseAccessToken(tok, "other-secret")
	assert.Error(t, err)

	fallback, err := GenerateAccessToken("u-1", nil, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(fallback, secret)
	assert.NoError(t, err, "non-positive ttl falls back to the default")
}

func TestMiddleware(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: engine.NewErrorHandler(zap.NewNop())})
	app.Get("/me", AuthMiddleware(secret), func(c *fiber.Ctx) error {
		return c.SendString(GetUser(c).ID)
	})
	app.Get("/admin", AuthMiddleware(secret), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(204)
	})

	admin, err := GenerateAccessToken("root", []string{"admin"}, secret, time.Minute)
	require.NoError(t, err)
	reader, err := GenerateAccessToken("ann", []string{"reader"}, secret, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		path   string
		header string
		status int
	}{
		{"/me", "", 401},
		{"/me", "Token abc", 401},
		{"/me", "Bearer not-a-jwt", 401},
		{"/me", "Bearer " + reader, 200},
		{"/admin", "Bearer " + reader, 403},
		{"/admin", "bearer " + admin, 204},
	}
	for _, tc := range tests {
		req, _ := http.NewRequest("GET", tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, "%s %q", tc.path, tc.header)
	}
}
