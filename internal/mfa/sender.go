package mfa

import (
	"context"
	"errors"
)

// ErrNoDestination is returned by a Sender when the recipient lacks the address it delivers to.
var ErrNoDestination = errors.New("mfa: recipient has no delivery address for this channel")

// Recipient is where a one-time code is delivered.
type Recipient struct {
	Username string
	Email    string
	Phone    string
}

// Sender delivers a one-time code out of band. Implementations must not log the code.
type Sender interface {
	Send(ctx context.Context, to Recipient, otp string) error
}
