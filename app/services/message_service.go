// Package services provides external service integrations and technical concerns like transport and contact sources
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/utils"
)

// SendMessageRequest is one outbound message
type SendMessageRequest struct {
	LineNumber  string
	Destination string
	Content     string
}

// SendMessageResult is the transport-level outcome. A non-success result is
// terminal for the queue entry that produced it; the caller still records the
// attempt.
type SendMessageResult struct {
	Success           bool
	ProviderMessageID *string
	ErrorMessage      *string
}

// MessageSender delivers one message through the outbound provider
type MessageSender interface {
	Send(ctx context.Context, req SendMessageRequest) SendMessageResult
}

// MessageSenderImpl implements MessageSender against the provider's HTTP API
type MessageSenderImpl struct {
	config *config.ProviderConfig
	client *http.Client
}

// providerRequest represents the request payload for the provider API
type providerRequest struct {
	SrcNum         string `json:"srcNum"`
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
	RetryCount     int    `json:"retryCount"`
	Type           int    `json:"type"` // Always 1
	ValidityPeriod int    `json:"validityPeriod"`
}

// providerResponse represents one message result from the provider API
type providerResponse struct {
	MessageID  int64  `json:"messageId"`
	Recipient  string `json:"recipient"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}

// NewMessageSender creates a new provider-backed message sender
func NewMessageSender(cfg *config.ProviderConfig) MessageSender {
	return &MessageSenderImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Send delivers one message and maps any failure into the result
func (s *MessageSenderImpl) Send(ctx context.Context, req SendMessageRequest) SendMessageResult {
	payload := []providerRequest{{
		SrcNum:         req.LineNumber,
		Recipient:      req.Destination,
		Body:           req.Content,
		RetryCount:     s.config.RetryCount,
		Type:           1,
		ValidityPeriod: s.config.ValidityPeriod,
	}}

	body, err := json.Marshal(payload)
	if err != nil {
		return failedResult(fmt.Sprintf("failed to marshal send request: %v", err))
	}

	url := fmt.Sprintf("https://%s/api/v3.0.1/send", s.config.Domain)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return failedResult(fmt.Sprintf("failed to create HTTP request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.config.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return failedResult(fmt.Sprintf("failed to reach provider: %v", err))
	}
	defer resp.Body.Close()

	var results []providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return failedResult(fmt.Sprintf("failed to decode provider response: %v", err))
	}
	if len(results) == 0 {
		return failedResult("provider returned no results")
	}

	r := results[0]
	if r.StatusCode != 200 || r.Status != "ACCEPTED" {
		return failedResult(fmt.Sprintf("delivery rejected for %s: %s (%d)", r.Recipient, r.Status, r.StatusCode))
	}

	id := fmt.Sprintf("%d", r.MessageID)
	return SendMessageResult{Success: true, ProviderMessageID: &id}
}

func failedResult(reason string) SendMessageResult {
	return SendMessageResult{Success: false, ErrorMessage: &reason}
}

// MockMessageSender implements MessageSender for testing
type MockMessageSender struct {
	mu           sync.Mutex
	SentMessages []MockSentMessage

	// FailNext makes the next sends fail with the given reason
	FailNext   int
	FailReason string
}

// MockSentMessage represents a mock outbound message
type MockSentMessage struct {
	LineNumber  string
	Destination string
	Content     string
	SentAt      time.Time
}

// NewMockMessageSender creates a new mock message sender
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{
		SentMessages: make([]MockSentMessage, 0),
	}
}

// Send records the message and succeeds unless a failure was primed
func (m *MockMessageSender) Send(ctx context.Context, req SendMessageRequest) SendMessageResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext > 0 {
		m.FailNext--
		reason := m.FailReason
		if reason == "" {
			reason = "mock transport failure"
		}
		return SendMessageResult{Success: false, ErrorMessage: &reason}
	}

	m.SentMessages = append(m.SentMessages, MockSentMessage{
		LineNumber:  req.LineNumber,
		Destination: req.Destination,
		Content:     req.Content,
		SentAt:      utils.UTCNow(),
	})

	id := fmt.Sprintf("mock-%d", len(m.SentMessages))
	return SendMessageResult{Success: true, ProviderMessageID: &id}
}

// Sent returns a copy of all recorded messages
func (m *MockMessageSender) Sent() []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSentMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}
