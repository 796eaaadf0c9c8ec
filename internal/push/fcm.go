package push

import (
	"context"

	"firebase.google.com/go/v4/messaging"
	"github.com/anonto42/socio/backend/internal/repositories"
	"go.uber.org/zap"
)

// Sender is the subset of *messaging.Client used for delivery.
type Sender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMPusher delivers notifications to every registered device of a user and
// forgets tokens Firebase reports as unregistered.
type FCMPusher struct {
	sender Sender
	tokens repositories.DeviceTokenRepository
	log    *zap.Logger
}

func NewFCMPusher(sender Sender, tokens repositories.DeviceTokenRepository, log *zap.Logger) *FCMPusher {
	return &FCMPusher{sender: sender, tokens: tokens, log: log}
}

func (p *FCMPusher) Push(ctx context.Context, userID uint, title, body string, data map[string]string) error {
	tokens, err := p.tokens.GetTokens(userID)
	if err != nil || len(tokens) == 0 {
		return err
	}
	resp, err := p.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return err
	}

	var stale []string
	for i, r := range resp.Responses {
		if r.Success {
			continue
		}
		if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
			stale = append(stale, tokens[i])
		}
	}
	if len(stale) > 0 {
		p.log.Info("removing stale device tokens", zap.Uint("user_id", userID), zap.Int("count", len(stale)))
		return p.tokens.DeleteTokens(stale)
	}
	return nil
}
