package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	sent   []tgbotapi.MessageConfig
	failOn int64
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if msg.ChatID == m.failOn {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	m.sent = append(m.sent, msg)
	return tgbotapi.Message{MessageID: len(m.sent)}, nil
}

func TestSink_Notify(t *testing.T) {
	sender := &mockSender{}
	s, err := NewWithSender(sender, []int64{100, 200}, nil)
	require.NoError(t, err)
	assert.Equal(t, "telegram", s.Name())

	err = s.Notify(context.Background(), "com.video", "You have used com.video for 30 minutes today")
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(100), sender.sent[0].ChatID)
	assert.Equal(t, int64(200), sender.sent[1].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, sender.sent[0].ParseMode)
	assert.Contains(t, sender.sent[0].Text, "30 minutes today")
}

func TestSink_NotifyPartialFailure(t *testing.T) {
	sender := &mockSender{failOn: 100}
	s, err := NewWithSender(sender, []int64{100, 200}, nil)
	require.NoError(t, err)

	err = s.Notify(context.Background(), "a", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 100")
	assert.Len(t, sender.sent, 1, "remaining chats still receive the message")
}

func TestSink_NotifyCancelled(t *testing.T) {
	sender := &mockSender{}
	s, err := NewWithSender(sender, []int64{100}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Notify(ctx, "a", "msg")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sender.sent)
}

func TestNewWithSender_RequiresChats(t *testing.T) {
	_, err := NewWithSender(&mockSender{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoChats)
}

func TestFormatNudge(t *testing.T) {
	tests := []struct {
		name      string
		packageID string
		message   string
		contains  []string
		excludes  []string
	}{
		{
			name:      "package in message",
			packageID: "com.video",
			message:   "You have used com.video for 30 minutes today",
			contains:  []string{"*Screen time*", "You have used com.video for 30 minutes today"},
			excludes:  []string{"App:"},
		},
		{
			name:      "underscores are escaped",
			packageID: "com.my_app",
			message:   "You have used com.my_app for 60 minutes today",
			contains:  []string{`com.my\_app`},
		},
		{
			name:      "package appended when missing",
			packageID: "com.video",
			message:   "Break ends in 5 minutes",
			contains:  []string{"App: `com.video`"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatNudge(tt.packageID, tt.message)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, got, s)
			}
		})
	}
}
