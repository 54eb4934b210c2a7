package task

import (
	"testing"
	"time"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallbackSigner(t *testing.T) {
	_, err := NewCallbackSigner("short")
	assert.ErrorIs(t, err, ErrWeakSigningSecret)

	s, err := NewCallbackSigner(testSecret)
	require.NoError(t, err)
	assert.Equal(t, defaultTokenLifetime, s.tokenLifetime)
}

func TestCallbackSignerRoundTrip(t *testing.T) {
	s, err := NewCallbackSigner(testSecret)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.timeFunc = func() time.Time { return now }

	token, err := s.Sign("task-s", domain.TaskStatusFailed)
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "task-s", claims.TaskID)
	assert.Equal(t, domain.TaskStatusFailed, claims.Status)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(defaultTokenLifetime).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestCallbackSignerRejects(t *testing.T) {
	s, err := NewCallbackSigner(testSecret)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.timeFunc = func() time.Time { return now }

	token, err := s.Sign("task-s", domain.TaskStatusCompleted)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		s.timeFunc = func() time.Time { return now.Add(time.Hour) }
		defer func() { s.timeFunc = func() time.Time { return now } }()

		_, err := s.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewCallbackSigner("ffffffffffffffffffffffffffffffff")
		require.NoError(t, err)
		other.timeFunc = s.timeFunc

		_, err = other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := s.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
