// Package publisher announces finished dealership records on a message topic.
package publisher

import (
	"context"
	"fmt"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Publisher sends a JSON payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordMessage is the payload published per record.
type RecordMessage struct {
	ID          string       `json:"id"`
	RunID       string       `json:"run_id"`
	Domain      string       `json:"domain"`
	CompanyName string       `json:"company_name"`
	Status      intel.Status `json:"status"`
	Contacts    int          `json:"contacts"`
	// TopScore is the best contact score, zero without contacts.
	TopScore float64               `json:"top_score"`
	Record   intel.DealershipIntel `json:"record"`
}

// NewRecordMessage summarises rec for publishing.
func NewRecordMessage(rec intel.DealershipIntel) RecordMessage {
	msg := RecordMessage{
		ID:          rec.ID,
		RunID:       rec.RunID,
		Domain:      rec.Domain,
		CompanyName: rec.CompanyName,
		Status:      rec.Status,
		Contacts:    len(rec.Contacts),
		Record:      rec,
	}
	for _, c := range rec.Contacts {
		msg.TopScore = max(msg.TopScore, c.Score)
	}
	return msg
}

// Sink publishes every record it receives to one topic.
type Sink struct {
	pub   Publisher
	topic string
}

// NewSink builds a Sink.
func NewSink(pub Publisher, topic string) (*Sink, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &Sink{pub: pub, topic: topic}, nil
}

// Write implements the pipeline record sink.
func (s *Sink) Write(ctx context.Context, rec intel.DealershipIntel) error {
	if _, err := s.pub.Publish(ctx, s.topic, NewRecordMessage(rec)); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}
