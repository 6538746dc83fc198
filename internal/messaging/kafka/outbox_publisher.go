package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/alebrije/pos/internal/domain"
)

// Заголовки сообщений, по которым потребители фильтруют события без разбора тела.
const (
	HeaderEventType = "x-event-type"
	HeaderOutboxID  = "x-outbox-id"
	HeaderTerminal  = "x-terminal-id"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer   *Producer
	topic      string
	terminalID string
}

// NewOutboxPublisher создаёт Kafka-паблишер outbox. Ключ сообщения: id черновика,
// поэтому события одной продажи попадают в одну партицию.
func NewOutboxPublisher(producer *Producer, topic, terminalID string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicSaleEvents
	}
	return &OutboxTopicPublisher{
		producer:   producer,
		topic:      topic,
		terminalID: terminalID,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	terminalID := event.TerminalID
	if terminalID == "" {
		terminalID = p.terminalID
	}

	envelope := struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		TerminalID    string          `json:"terminal_id,omitempty"`
		Payload       json.RawMessage `json:"payload"`
		PublishedAt   time.Time       `json:"published_at"`
	}{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		TerminalID:    terminalID,
		Payload:       rawPayload(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
		{Key: []byte(HeaderOutboxID), Value: []byte(event.ID)},
	}
	if terminalID != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte(HeaderTerminal), Value: []byte(terminalID)})
	}

	return p.producer.PublishEvent(p.topic, key, envelope, headers...)
}

// rawPayload подставляет null вместо пустого тела: пустой json.RawMessage не сериализуется.
func rawPayload(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(payload)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
