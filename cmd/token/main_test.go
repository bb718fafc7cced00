package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocket-relations/internal/auth"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("ROCKET_JWT_SECRET", "cli-secret")

	var out bytes.Buffer
	cmd := newCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"u-7", "admin", "reader", "--ttl", "2m"})
	require.NoError(t, cmd.Execute())

	claims, err := auth.ParseAccessToken(strings.TrimSpace(out.String()), "cli-secret")
	require.NoError(t, err)
	assert.Equal(t, "u-7", claims.Subject)
	assert.Equal(t, []string{"admin", "reader"}, claims.Roles)
	assert.WithinDuration(t, time.Now().Add(2*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokenCommand_RequiresUser(t *testing.T) {
	cmd := newCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)
	assert.Error(t, cmd.Execute())
}
