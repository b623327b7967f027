package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/learnova/learnova-backend/internal/database"
)

// Sessions are the identity collaborator's contract with the messaging core:
// the auth service mints an opaque token mapped to a verified user id in
// Redis, and the core only ever resolves tokens back to ids.

// SessionKeyPrefix is the Redis key prefix the auth service stores sessions
// under.
const SessionKeyPrefix = "session:"

// ValidateSession resolves a session token to the user id it was issued for.
// An unknown or expired token is not an error; it just doesn't authenticate.
func ValidateSession(sessionToken string) (uuid.UUID, bool, error) {
	if sessionToken == "" {
		return uuid.Nil, false, nil
	}

	ctx := context.Background()
	sessionKey := SessionKeyPrefix + sessionToken

	userIDStr, err := database.RedisClient.Get(ctx, sessionKey).Result()
	if err != nil {
		return uuid.Nil, false, nil
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false, err
	}

	return userID, true, nil
}
