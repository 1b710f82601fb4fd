package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken("finance-1", []string{RoleOperator}, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "finance-1", claims.UserID)
	assert.Equal(t, []string{RoleOperator}, claims.Roles)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken("finance-1", nil, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestActorFromContext(t *testing.T) {
	assert.Equal(t, SystemActor, ActorFromContext(context.Background()))
	assert.Equal(t, "finance-1", ActorFromContext(WithActor(context.Background(), "finance-1")))
}
