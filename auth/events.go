package auth

import (
	"context"
	"log/slog"
	"time"
)

type accountCreatedMessage struct {
	ID       ID        `json:"id"`
	PublicID string    `json:"publicId"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Created  time.Time `json:"created"`
}

func newAccountCreatedMessage(acc *Account) accountCreatedMessage {
	return accountCreatedMessage{
		ID:       acc.ID,
		PublicID: acc.PublicID,
		Username: acc.Credentials.Username,
		Email:    acc.Credentials.Email,
		Created:  acc.CreatedAt,
	}
}

type logEvents struct {
	logger *slog.Logger
}

// NewLogEvents returns Events that only record account creation in the log.
func NewLogEvents(l *slog.Logger) Events {
	return &logEvents{logger: l}
}

func (e *logEvents) AccountCreated(ctx context.Context, acc *Account) error {
	e.logger.InfoContext(ctx, "account created",
		"id", acc.ID,
		"public_id", acc.PublicID,
		"username", acc.Credentials.Username,
	)
	return nil
}
