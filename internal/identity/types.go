// Package identity is the account service demo users are provisioned in:
// email/secret accounts, bcrypt-hashed secrets and JWT session tokens held by
// independent authentication contexts.
package identity

import "time"

// Account is a registered identity.
type Account struct {
	UID         string
	Email       string
	SecretHash  string
	DisplayName string
	CreatedAt   time.Time
}

// MinSecretLength is the shortest secret CreateAccount accepts.
const MinSecretLength = 6
