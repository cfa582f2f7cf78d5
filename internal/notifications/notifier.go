package notifications

import "context"

type SendWelcomeInput struct {
	Email    string
	FullName string
	UserID   string
}

type Notifier interface {
	SendWelcome(ctx context.Context, input SendWelcomeInput) error
}
