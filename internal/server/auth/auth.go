// Package auth implements S1: bearer token to user identity, storing
// only a bcrypt hash of the issued token per spec §3 User ("salted hash
// of issued bearer token"). Grounded on gophkeeper's bcrypt-based
// credential storage, adapted to a token rather than a password.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"todosync/internal/server/models"
	"todosync/internal/server/store"
)

var ErrUnauthorized = errors.New("unauthorized")

type Authenticator struct {
	st   store.Store
	cost int
}

func New(st store.Store, bcryptCost int) *Authenticator {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Authenticator{st: st, cost: bcryptCost}
}

// IssueToken creates a new user with a fresh id on every call and
// returns that id with a fresh opaque bearer token; only the token's
// bcrypt hash is persisted. Existing users with the same name are not
// looked up or reused.
func (a *Authenticator) IssueToken(ctx context.Context, name string) (userID, token string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), a.cost)
	if err != nil {
		return "", "", fmt.Errorf("hash token: %w", err)
	}

	userID = uuid.NewString()
	if err := a.st.PutUser(ctx, models.User{ID: userID, Name: name, TokenHash: string(hash)}); err != nil {
		return "", "", fmt.Errorf("persist user: %w", err)
	}
	return userID, token, nil
}

// Authenticate resolves a bearer token to a user identity by scanning
// stored hashes. The user set is expected to be small (one per device
// owner), so a linear bcrypt comparison is acceptable; a deployment
// with many users would key on a token prefix instead.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	users, err := a.st.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if bcrypt.CompareHashAndPassword([]byte(u.TokenHash), []byte(token)) == nil {
			return &u, nil
		}
	}
	return nil, ErrUnauthorized
}
