package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// OutcomeMessage is the event emitted for every terminal call attempt.
// Downstream consumers (analytics, CRM sync, webhooks) subscribe to the
// outcome topic instead of polling campaign state.
type OutcomeMessage struct {
	AttemptID       uuid.UUID `json:"attempt_id"`
	CampaignID      uuid.UUID `json:"campaign_id"`
	ContactID       uuid.UUID `json:"contact_id"`
	PhoneNumber     string    `json:"phone_number"`
	AttemptNum      int       `json:"attempt_num"`
	Status          string    `json:"status"`
	DurationSeconds int       `json:"duration_seconds"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	ProviderCallID  string    `json:"provider_call_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// OutcomePublisher publishes attempt outcome events.
type OutcomePublisher struct {
	writer *kafka.Writer
}

// NewOutcomePublisher constructs a publisher for the outcome topic.
func NewOutcomePublisher(k *Kafka, topic string) *OutcomePublisher {
	return &OutcomePublisher{writer: k.NewWriter(topic)}
}

// PublishOutcome emits one outcome event, keyed by campaign so per-campaign
// ordering is preserved for consumers.
func (p *OutcomePublisher) PublishOutcome(ctx context.Context, msg OutcomeMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("outcome publisher: marshal message: %w", err)
	}
	record := kafka.Message{
		Key:   msg.CampaignID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("outcome publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *OutcomePublisher) Close() error {
	return p.writer.Close()
}
