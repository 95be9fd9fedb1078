package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MinSecretLength is the minimum accepted token length.
const MinSecretLength = 12

var ErrSecretTooShort = errors.New("secret must be at least 12 characters")

// Secret signs outgoing requests of one subscription. The newest one wins.
type Secret struct {
	ID             int64     `db:"id"              json:"id"`
	SubscriptionID int64     `db:"subscription_id" json:"-"`
	Token          string    `db:"token"           json:"-"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}

// Masked returns the token with everything but the last four characters hidden.
func (s Secret) Masked() string {
	r := []rune(s.Token)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

// ValidateSecretToken enforces the minimum length in characters, not bytes.
func ValidateSecretToken(token string) error {
	if utf8.RuneCountInString(strings.TrimSpace(token)) < MinSecretLength {
		return ErrSecretTooShort
	}
	return nil
}
