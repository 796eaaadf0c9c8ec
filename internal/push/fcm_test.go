package push

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTokens struct {
	tokens  map[uint][]string
	deleted []string
}

func (f *fakeTokens) Register(*models.DeviceToken) error { return nil }
func (f *fakeTokens) GetTokens(userID uint) ([]string, error) {
	return f.tokens[userID], nil
}
func (f *fakeTokens) DeleteTokens(tokens []string) error {
	f.deleted = append(f.deleted, tokens...)
	return nil
}

type fakeSender struct {
	sent []*messaging.MulticastMessage
	err  error
}

func (f *fakeSender) SendEachForMulticast(ctx context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, m)
	resp := &messaging.BatchResponse{}
	for range m.Tokens {
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true})
		resp.SuccessCount++
	}
	return resp, nil
}

func TestPushSendsToEveryDevice(t *testing.T) {
	tokens := &fakeTokens{tokens: map[uint][]string{7: {"a", "b"}}}
	sender := &fakeSender{}
	p := NewFCMPusher(sender, tokens, zap.NewNop())

	err := p.Push(context.Background(), 7, "Socio", "bob liked your post", map[string]string{"type": "like"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"a", "b"}, sender.sent[0].Tokens)
	assert.Equal(t, "bob liked your post", sender.sent[0].Notification.Body)
	assert.Equal(t, "like", sender.sent[0].Data["type"])
	assert.Empty(t, tokens.deleted)
}

func TestPushWithoutDevicesIsNoop(t *testing.T) {
	sender := &fakeSender{}
	p := NewFCMPusher(sender, &fakeTokens{}, zap.NewNop())

	require.NoError(t, p.Push(context.Background(), 1, "t", "b", nil))
	assert.Empty(t, sender.sent)
}

func TestPushReturnsSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("quota exceeded")}
	p := NewFCMPusher(sender, &fakeTokens{tokens: map[uint][]string{1: {"x"}}}, zap.NewNop())

	assert.EqualError(t, p.Push(context.Background(), 1, "t", "b", nil), "quota exceeded")
}
