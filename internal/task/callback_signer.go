package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/imagerelay/internal/domain"
)

// Callback token errors
var (
	ErrWeakSigningSecret = errors.New("callback signing secret must be at least 32 characters")
	ErrInvalidToken      = errors.New("invalid callback token")
	ErrExpiredToken      = errors.New("callback token expired")
)

const defaultTokenLifetime = 5 * time.Minute

// CallbackClaims are the claims carried by a signed callback.
type CallbackClaims struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
	jwt.RegisteredClaims
}

// CallbackSigner issues and checks HS256 tokens that let callback receivers
// verify a notification came from this service.
type CallbackSigner struct {
	signingKey    []byte
	tokenLifetime time.Duration
	timeFunc      func() time.Time // Injectable for testing
}

// NewCallbackSigner creates a signer for secret.
func NewCallbackSigner(secret string) (*CallbackSigner, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSigningSecret
	}
	return &CallbackSigner{
		signingKey:    []byte(secret),
		tokenLifetime: defaultTokenLifetime,
		timeFunc:      time.Now,
	}, nil
}

// Sign returns a token for the given task and status.
func (s *CallbackSigner) Sign(taskID string, status domain.TaskStatus) (string, error) {
	now := s.timeFunc()

	claims := CallbackClaims{
		TaskID: taskID,
		Status: status,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenLifetime)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign callback token with HMAC-SHA256: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns its claims if the signature and
// expiry check out.
func (s *CallbackSigner) Verify(tokenString string) (*CallbackClaims, error) {
	now := s.timeFunc()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&CallbackClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CallbackClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
