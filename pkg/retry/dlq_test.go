package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingProducer struct {
	topic   string
	key     string
	data    interface{}
	headers map[string]string
	err     error
}

func (p *recordingProducer) ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error {
	p.topic, p.key, p.data, p.headers = topic, key, data, headers
	return p.err
}

func TestKafkaDLQPublisher_PublishToDLQ(t *testing.T) {
	producer := &recordingProducer{}
	publisher := NewKafkaDLQPublisher(producer, &DLQConfig{TopicSuffix: ".dlq", Source: "reconcile-worker"})

	err := publisher.PublishToDLQ(context.Background(), &DLQMessage{
		ID:            "run-1:R1",
		OriginalTopic: "reconcile.corrections",
		OriginalKey:   "R1",
		Operation:     "update",
		Error:         "write failed",
		Attempts:      3,
	})
	if err != nil {
		t.Fatalf("PublishToDLQ() error = %v", err)
	}

	if producer.topic != "reconcile.corrections.dlq" {
		t.Errorf("topic = %s, want reconcile.corrections.dlq", producer.topic)
	}
	if producer.key != "R1" {
		t.Errorf("key = %s, want R1", producer.key)
	}
	if producer.headers["operation"] != "update" || producer.headers["attempts"] != "3" {
		t.Errorf("headers = %v", producer.headers)
	}
	msg := producer.data.(*DLQMessage)
	if msg.Source != "reconcile-worker" || msg.MovedToDLQAt.IsZero() {
		t.Errorf("message not stamped: %+v", msg)
	}
}

func TestKafkaDLQPublisher_NilMessage(t *testing.T) {
	publisher := NewKafkaDLQPublisher(&recordingProducer{}, nil)
	if err := publisher.PublishToDLQ(context.Background(), nil); err == nil {
		t.Error("PublishToDLQ(nil) error = nil, want error")
	}
}

type capturingPublisher struct {
	NoOpDLQPublisher
	messages []*DLQMessage
	err      error
}

func (p *capturingPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	p.messages = append(p.messages, msg)
	return p.err
}

func TestDLQHandler_ProcessWithDLQ(t *testing.T) {
	writeErr := errors.New("write failed")

	t.Run("success does not publish", func(t *testing.T) {
		publisher := &capturingPublisher{}
		handler := NewDLQHandler(publisher, &DLQHandlerConfig{RetryConfig: fastConfig(2), Source: "test"})

		err := handler.ProcessWithDLQ(context.Background(), &MessageContext{ID: "1"}, func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Errorf("ProcessWithDLQ() error = %v", err)
		}
		if len(publisher.messages) != 0 {
			t.Errorf("published %d messages, want 0", len(publisher.messages))
		}
	})

	t.Run("exhausted retries publish", func(t *testing.T) {
		publisher := &capturingPublisher{}
		var onDLQ *DLQMessage
		handler := NewDLQHandler(publisher, &DLQHandlerConfig{
			RetryConfig: fastConfig(2),
			Source:      "test",
			OnDLQ:       func(msg *DLQMessage) { onDLQ = msg },
		})

		err := handler.ProcessWithDLQ(context.Background(), &MessageContext{
			ID:        "run-1:R1",
			Topic:     "reconcile.corrections",
			Key:       "R1",
			Operation: "update",
		}, func(ctx context.Context) error {
			return writeErr
		})
		if err != writeErr {
			t.Errorf("ProcessWithDLQ() error = %v, want %v", err, writeErr)
		}
		if len(publisher.messages) != 1 {
			t.Fatalf("published %d messages, want 1", len(publisher.messages))
		}
		msg := publisher.messages[0]
		if msg.Attempts != 3 || msg.Error != "write failed" || msg.Operation != "update" {
			t.Errorf("unexpected DLQ message: %+v", msg)
		}
		if onDLQ != msg {
			t.Error("OnDLQ callback not invoked with the published message")
		}
		if msg.FirstAttemptAt.After(msg.LastAttemptAt) || time.Since(msg.FirstAttemptAt) > time.Minute {
			t.Errorf("attempt timestamps out of order: %v %v", msg.FirstAttemptAt, msg.LastAttemptAt)
		}
	})

	t.Run("publish failure is reported", func(t *testing.T) {
		publisher := &capturingPublisher{err: errors.New("broker down")}
		handler := NewDLQHandler(publisher, &DLQHandlerConfig{RetryConfig: fastConfig(0)})

		err := handler.ProcessWithDLQ(context.Background(), &MessageContext{ID: "1"}, func(ctx context.Context) error {
			return writeErr
		})
		if err == nil || err == writeErr {
			t.Errorf("ProcessWithDLQ() error = %v, want publish failure", err)
		}
		if !errors.Is(err, writeErr) {
			t.Errorf("errors.Is(err, writeErr) = %v, want %v", false, true)
		}
	})
}

func TestNoOpDLQPublisher(t *testing.T) {
	p := NewNoOpDLQPublisher()
	if err := p.PublishToDLQ(context.Background(), &DLQMessage{}); err != nil {
		t.Errorf("PublishToDLQ() error = %v", err)
	}
	if got := p.GetDLQTopic("reconcile.corrections"); got != "reconcile.corrections.dlq" {
		t.Errorf("GetDLQTopic() = %s", got)
	}
}
