package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockMessageSenderRecordsMessages(t *testing.T) {
	sender := NewMockMessageSender()

	result := sender.Send(context.Background(), SendMessageRequest{
		LineNumber:  "+983000001",
		Destination: "+989121234567",
		Content:     "hello",
	})

	require.True(t, result.Success)
	require.NotNil(t, result.ProviderMessageID)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+983000001", sent[0].LineNumber)
	assert.Equal(t, "+989121234567", sent[0].Destination)
	assert.Equal(t, "hello", sent[0].Content)
	assert.False(t, sent[0].SentAt.IsZero())
}

func TestMockMessageSenderPrimedFailure(t *testing.T) {
	sender := NewMockMessageSender()
	sender.FailNext = 1
	sender.FailReason = "provider unavailable"

	result := sender.Send(context.Background(), SendMessageRequest{Destination: "+989121234567"})
	require.False(t, result.Success)
	require.NotNil(t, result.ErrorMessage)
	assert.Equal(t, "provider unavailable", *result.ErrorMessage)
	assert.Empty(t, sender.Sent(), "failed sends are not recorded")

	// The failure budget is consumed
	result = sender.Send(context.Background(), SendMessageRequest{Destination: "+989121234567"})
	assert.True(t, result.Success)
	assert.Len(t, sender.Sent(), 1)
}

func TestMockMessageSenderDefaultFailureReason(t *testing.T) {
	sender := NewMockMessageSender()
	sender.FailNext = 1

	result := sender.Send(context.Background(), SendMessageRequest{})
	require.False(t, result.Success)
	require.NotNil(t, result.ErrorMessage)
	assert.Equal(t, "mock transport failure", *result.ErrorMessage)
}
