package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"seroest/models"
)

// UserSource lists the accounts credentials are checked against.
type UserSource interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Authenticator verifies name/password pairs.
type Authenticator struct {
	users UserSource
	log   logrus.FieldLogger
}

func NewAuthenticator(users UserSource, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{users: users, log: log.WithField("component", "auth")}
}

// Authenticate returns the active user whose name matches (trimmed,
// case-insensitive) and whose password verifies. Several accounts may share a
// name; the first one the password unlocks wins. When the user list cannot be
// read the built-in demo accounts are used instead.
func (a *Authenticator) Authenticate(ctx context.Context, name, password string) (models.User, error) {
	candidates, err := a.users.ListUsers(ctx)
	if err != nil {
		a.log.WithError(err).Warn("user lookup failed, using demo accounts")
		candidates = DemoUsers()
	}

	wanted := strings.ToLower(strings.TrimSpace(name))
	for _, u := range candidates {
		if strings.ToLower(strings.TrimSpace(u.Name)) != wanted || !u.Active {
			continue
		}
		if passwordMatches(password, u.Password) {
			a.log.WithFields(logrus.Fields{"user": u.ID, "role": u.Role}).Info("user authenticated")
			return u.Public(), nil
		}
	}

	a.log.WithField("name", wanted).Info("authentication rejected")
	return models.User{}, models.ErrInvalidCredentials
}

// Recheck re-reads the account a token was issued for. A deleted or inactive
// account gives models.ErrNotAuthenticated. When the accounts cannot be read,
// the user carried by the claims is returned together with the read error.
func Recheck(ctx context.Context, users UserSource, claims *Claims) (models.User, error) {
	all, err := users.ListUsers(ctx)
	if err != nil {
		return claims.User(), fmt.Errorf("recheck %s: %w", claims.UserID, err)
	}
	found, ok := lo.Find(all, func(u models.User) bool { return u.ID == claims.UserID })
	if !ok || !found.Active {
		return models.User{}, fmt.Errorf("account %s: %w", claims.UserID, models.ErrNotAuthenticated)
	}
	return found.Public(), nil
}

// passwordMatches accepts bcrypt hashes and, for records written before
// hashing was introduced, plaintext.
func passwordMatches(password, stored string) bool {
	if IsHash(stored) {
		return CheckPassword(password, stored) == nil
	}
	return stored != "" && subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}
